package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"go.uber.org/zap"

	"github.com/stelmark/bookmaker/config"
	"github.com/stelmark/bookmaker/internal/domain"
	"github.com/stelmark/bookmaker/internal/gateway/horizon"
	"github.com/stelmark/bookmaker/internal/journal"
	"github.com/stelmark/bookmaker/internal/services/bootstrap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	conf, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	issuer, err := keypair.ParseFull(conf.IssuerSeed)
	if err != nil {
		logger.Fatal("invalid issuer seed", zap.Error(err))
	}
	buyer, err := keypair.ParseFull(conf.BuyerSeed)
	if err != nil {
		logger.Fatal("invalid buyer seed", zap.Error(err))
	}
	seller, err := keypair.ParseFull(conf.SellerSeed)
	if err != nil {
		logger.Fatal("invalid seller seed", zap.Error(err))
	}

	gw, err := horizon.New(conf.HorizonURL, conf.NetworkPassphrase, conf.CallTimeout,
		conf.IssuerSeed, conf.BuyerSeed, conf.SellerSeed)
	if err != nil {
		logger.Fatal("failed to create horizon gateway", zap.Error(err))
	}

	jrnl, err := journal.Open(conf.JournalDir)
	if err != nil {
		logger.Fatal("failed to open bootstrap journal", zap.Error(err))
	}
	defer jrnl.Close()

	asset := domain.CreditAsset(conf.AssetCode, issuer.Address())
	orch, err := bootstrap.New(gw, jrnl, logger, bootstrap.Params{
		IssuerID:      issuer.Address(),
		BuyerID:       buyer.Address(),
		SellerID:      seller.Address(),
		Asset:         asset,
		Base:          domain.NativeAsset(),
		FundingAmount: conf.FundingAmount,
		BuyAmount:     conf.BuyAmount,
		BuyPrice:      jitterUp(conf.BuyPrice, conf.PriceJitter),
		SellAmount:    conf.SellAmount,
		SellPrice:     jitterDown(conf.SellPrice, conf.PriceJitter),
		Policy:        conf.Policy,
	})
	if err != nil {
		logger.Fatal("failed to create orchestrator", zap.Error(err))
	}

	logger.Info("starting order book bootstrap",
		zap.String("horizon", conf.HorizonURL),
		zap.String("asset", asset.String()),
		zap.String("policy", conf.Policy.String()))

	snap, runErr := orch.Run(context.Background())
	if len(snap.Bids) > 0 || len(snap.Asks) > 0 {
		printOrderBook(snap)
	}
	if runErr != nil {
		logger.Error("bootstrap failed", zap.Error(runErr))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("bootstrap complete",
		zap.Int("bids", len(snap.Bids)),
		zap.Int("asks", len(snap.Asks)))
}

// jitterUp shifts the configured price up by a random fraction of the
// band, jitterDown shifts it down. Randomness stays in basis points so no
// floating point ever reaches the transaction boundary.
func jitterUp(price, band decimal.Decimal) decimal.Decimal {
	return price.Add(randomFraction().Mul(band))
}

func jitterDown(price, band decimal.Decimal) decimal.Decimal {
	return price.Sub(randomFraction().Mul(band))
}

func randomFraction() decimal.Decimal {
	return decimal.New(int64(rand.Intn(10001)), -4) // 0.0000 .. 1.0000
}

func printOrderBook(snap domain.OrderBookSnapshot) {
	fmt.Printf("order book %s / %s\n", snap.Base, snap.Counter)
	fmt.Println("  bids:")
	for _, lvl := range snap.Bids {
		fmt.Printf("    %s @ %s\n", lvl.Amount, lvl.Price)
	}
	fmt.Println("  asks:")
	for _, lvl := range snap.Asks {
		fmt.Printf("    %s @ %s\n", lvl.Amount, lvl.Price)
	}
}
