// Package config loads the bootstrap configuration from a YAML file or
// command-line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/stelmark/bookmaker/internal/services/bootstrap"
)

const (
	defaultHorizonURL  = "https://horizon-testnet.stellar.org"
	defaultPassphrase  = "Test SDF Network ; September 2015"
	defaultAssetCode   = "USD"
	defaultCallTimeout = 15 * time.Second
	defaultJournalDir  = "journaldata"
)

// Config is the fully parsed process configuration.
type Config struct {
	HorizonURL        string
	NetworkPassphrase string

	IssuerSeed string
	BuyerSeed  string
	SellerSeed string

	AssetCode     string
	FundingAmount decimal.Decimal

	BuyAmount   decimal.Decimal
	BuyPrice    decimal.Decimal
	SellAmount  decimal.Decimal
	SellPrice   decimal.Decimal
	PriceJitter decimal.Decimal

	Policy      bootstrap.Policy
	CallTimeout time.Duration
	JournalDir  string
}

type configTmp struct {
	HorizonURL        string        `yaml:"horizon_url"`
	NetworkPassphrase string        `yaml:"network_passphrase"`
	IssuerSeed        string        `yaml:"issuer_seed"`
	BuyerSeed         string        `yaml:"buyer_seed"`
	SellerSeed        string        `yaml:"seller_seed"`
	AssetCode         string        `yaml:"asset_code"`
	FundingAmount     string        `yaml:"funding_amount"`
	BuyAmount         string        `yaml:"buy_amount"`
	BuyPrice          string        `yaml:"buy_price"`
	SellAmount        string        `yaml:"sell_amount"`
	SellPrice         string        `yaml:"sell_price"`
	PriceJitter       string        `yaml:"price_jitter,omitempty"`
	Policy            string        `yaml:"policy,omitempty"`
	CallTimeout       time.Duration `yaml:"call_timeout,omitempty"`
	JournalDir        string        `yaml:"journal_dir,omitempty"`
}

// Get parses configuration from the -config YAML file if provided,
// falling back to individual flags.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")

	horizonURL := flag.String("horizon", defaultHorizonURL, "horizon server URL")
	passphrase := flag.String("network-passphrase", defaultPassphrase, "network passphrase")
	issuerSeed := flag.String("issuer-seed", "", "issuer account secret seed")
	buyerSeed := flag.String("buyer-seed", "", "buyer account secret seed")
	sellerSeed := flag.String("seller-seed", "", "seller account secret seed")
	assetCode := flag.String("asset", defaultAssetCode, "credit asset code")
	funding := flag.String("funding-amount", "25", "amount of the asset paid to buyer and seller")
	buyAmount := flag.String("buy-amount", "5000", "buy offer amount in base units")
	buyPrice := flag.String("buy-price", "0.0023", "buy offer price in counter units per base unit")
	sellAmount := flag.String("sell-amount", "4000", "sell offer amount in base units")
	sellPrice := flag.String("sell-price", "0.0025", "sell offer price in counter units per base unit")
	jitter := flag.String("price-jitter", "0.001", "random price band added to buys and subtracted from sells")
	policy := flag.String("policy", string(bootstrap.PolicyAbort), "failure policy: abort or best_effort")
	timeout := flag.Duration("call-timeout", defaultCallTimeout, "per ledger call timeout")
	journalDir := flag.String("journal-dir", defaultJournalDir, "bootstrap journal directory")

	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	tmp := configTmp{
		HorizonURL:        *horizonURL,
		NetworkPassphrase: *passphrase,
		IssuerSeed:        *issuerSeed,
		BuyerSeed:         *buyerSeed,
		SellerSeed:        *sellerSeed,
		AssetCode:         *assetCode,
		FundingAmount:     *funding,
		BuyAmount:         *buyAmount,
		BuyPrice:          *buyPrice,
		SellAmount:        *sellAmount,
		SellPrice:         *sellPrice,
		PriceJitter:       *jitter,
		Policy:            *policy,
		CallTimeout:       *timeout,
		JournalDir:        *journalDir,
	}
	return tmp.parse()
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}
	return tmp.parse()
}

func (t configTmp) parse() (Config, error) {
	c := Config{
		HorizonURL:        t.HorizonURL,
		NetworkPassphrase: t.NetworkPassphrase,
		IssuerSeed:        t.IssuerSeed,
		BuyerSeed:         t.BuyerSeed,
		SellerSeed:        t.SellerSeed,
		AssetCode:         t.AssetCode,
		Policy:            bootstrap.Policy(t.Policy),
		CallTimeout:       t.CallTimeout,
		JournalDir:        t.JournalDir,
	}

	if c.HorizonURL == "" {
		c.HorizonURL = defaultHorizonURL
	}
	if c.NetworkPassphrase == "" {
		c.NetworkPassphrase = defaultPassphrase
	}
	if c.AssetCode == "" {
		c.AssetCode = defaultAssetCode
	}
	if c.Policy == "" {
		c.Policy = bootstrap.PolicyAbort
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.JournalDir == "" {
		c.JournalDir = defaultJournalDir
	}

	if c.IssuerSeed == "" || c.BuyerSeed == "" || c.SellerSeed == "" {
		return Config{}, fmt.Errorf("issuer_seed, buyer_seed and seller_seed are required")
	}
	if len(c.AssetCode) > 12 {
		return Config{}, fmt.Errorf("incorrect 'asset_code' param: %q is longer than 12 characters", c.AssetCode)
	}
	if !c.Policy.IsValid() {
		return Config{}, fmt.Errorf("incorrect 'policy' param: %q (expected abort or best_effort)", t.Policy)
	}

	var err error
	if c.FundingAmount, err = parsePositive("funding_amount", t.FundingAmount); err != nil {
		return Config{}, err
	}
	if c.BuyAmount, err = parsePositive("buy_amount", t.BuyAmount); err != nil {
		return Config{}, err
	}
	if c.BuyPrice, err = parsePositive("buy_price", t.BuyPrice); err != nil {
		return Config{}, err
	}
	if c.SellAmount, err = parsePositive("sell_amount", t.SellAmount); err != nil {
		return Config{}, err
	}
	if c.SellPrice, err = parsePositive("sell_price", t.SellPrice); err != nil {
		return Config{}, err
	}

	if t.PriceJitter == "" {
		c.PriceJitter = decimal.Zero
	} else {
		c.PriceJitter, err = decimal.NewFromString(t.PriceJitter)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'price_jitter' param (must be a decimal): %w", err)
		}
		if c.PriceJitter.IsNegative() {
			return Config{}, fmt.Errorf("incorrect 'price_jitter' param: must not be negative")
		}
		if c.PriceJitter.GreaterThanOrEqual(c.SellPrice) {
			return Config{}, fmt.Errorf("incorrect 'price_jitter' param: jitter %s would push the sell price below zero", c.PriceJitter)
		}
	}

	return c, nil
}

func parsePositive(name, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param (must be a decimal): %w", name, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param: must be positive, got %s", name, d)
	}
	return d, nil
}
