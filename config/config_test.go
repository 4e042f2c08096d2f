package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelmark/bookmaker/internal/services/bootstrap"
)

func writeYaml(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetYaml(t *testing.T) {
	path := writeYaml(t, `
horizon_url: "https://horizon.example.org"
network_passphrase: "Standalone Network"
issuer_seed: "SISSUER"
buyer_seed: "SBUYER"
seller_seed: "SSELLER"
asset_code: "EURT"
funding_amount: "50"
buy_amount: "1000"
buy_price: "0.01"
sell_amount: "900"
sell_price: "0.012"
price_jitter: "0.002"
policy: "best_effort"
call_timeout: 30s
journal_dir: "/var/lib/bookmaker"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	assert.Equal(t, "https://horizon.example.org", cfg.HorizonURL)
	assert.Equal(t, "Standalone Network", cfg.NetworkPassphrase)
	assert.Equal(t, "EURT", cfg.AssetCode)
	assert.True(t, cfg.FundingAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, cfg.BuyPrice.Equal(decimal.NewFromFloat(0.01)))
	assert.True(t, cfg.PriceJitter.Equal(decimal.NewFromFloat(0.002)))
	assert.Equal(t, bootstrap.PolicyBestEffort, cfg.Policy)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, "/var/lib/bookmaker", cfg.JournalDir)
}

func TestGetYamlDefaults(t *testing.T) {
	path := writeYaml(t, `
issuer_seed: "SISSUER"
buyer_seed: "SBUYER"
seller_seed: "SSELLER"
funding_amount: "25"
buy_amount: "5000"
buy_price: "0.0023"
sell_amount: "4000"
sell_price: "0.0025"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	assert.Equal(t, defaultHorizonURL, cfg.HorizonURL)
	assert.Equal(t, defaultPassphrase, cfg.NetworkPassphrase)
	assert.Equal(t, defaultAssetCode, cfg.AssetCode)
	assert.Equal(t, bootstrap.PolicyAbort, cfg.Policy)
	assert.Equal(t, defaultCallTimeout, cfg.CallTimeout)
	assert.Equal(t, defaultJournalDir, cfg.JournalDir)
	assert.True(t, cfg.PriceJitter.IsZero())
}

func TestGetYamlErrors(t *testing.T) {
	base := `
issuer_seed: "SISSUER"
buyer_seed: "SBUYER"
seller_seed: "SSELLER"
funding_amount: "25"
buy_amount: "5000"
buy_price: "0.0023"
sell_amount: "4000"
sell_price: "0.0025"
`

	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{
			name:     "missing seeds",
			yaml:     `asset_code: "USD"`,
			contains: "required",
		},
		{
			name:     "asset code too long",
			yaml:     base + `asset_code: "THIRTEENCHARS"`,
			contains: "asset_code",
		},
		{
			name:     "non-decimal amount",
			yaml:     base + `price_jitter: "lots"`,
			contains: "price_jitter",
		},
		{
			name:     "jitter swallows sell price",
			yaml:     base + `price_jitter: "0.0025"`,
			contains: "price_jitter",
		},
		{
			name:     "unknown policy",
			yaml:     base + `policy: "retry_forever"`,
			contains: "policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := getYaml(writeYaml(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParsePositive(t *testing.T) {
	_, err := parsePositive("buy_amount", "0")
	require.Error(t, err)

	_, err = parsePositive("buy_amount", "-3")
	require.Error(t, err)

	d, err := parsePositive("buy_amount", "0.0001")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromFloat(0.0001)))
}
