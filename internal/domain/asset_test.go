package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetEquality(t *testing.T) {
	tests := []struct {
		name     string
		a        Asset
		b        Asset
		expected bool
	}{
		{
			name:     "same code and issuer",
			a:        CreditAsset("USD", "GISSUER"),
			b:        CreditAsset("USD", "GISSUER"),
			expected: true,
		},
		{
			name:     "same code, different issuer",
			a:        CreditAsset("USD", "GISSUER"),
			b:        CreditAsset("USD", "GOTHER"),
			expected: false,
		},
		{
			name:     "different code, same issuer",
			a:        CreditAsset("USD", "GISSUER"),
			b:        CreditAsset("EUR", "GISSUER"),
			expected: false,
		},
		{
			name:     "native equals native",
			a:        NativeAsset(),
			b:        NativeAsset(),
			expected: true,
		},
		{
			name:     "native differs from credit",
			a:        NativeAsset(),
			b:        CreditAsset("USD", "GISSUER"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Equal(tt.b))
		})
	}
}

func TestAssetIsNative(t *testing.T) {
	assert.True(t, NativeAsset().IsNative())
	assert.False(t, CreditAsset("USD", "GISSUER").IsNative())
}

func TestAssetString(t *testing.T) {
	assert.Equal(t, "native", NativeAsset().String())
	assert.Equal(t, "USD:GISSUER", CreditAsset("USD", "GISSUER").String())
}
