// Package domain defines the core value types shared by the bootstrap services.
package domain

import "fmt"

// Asset identifies a ledger asset by its code and issuing account.
// The zero value is the network's native asset. Equality is by value:
// two assets are the same asset iff code and issuer match.
type Asset struct {
	Code   string
	Issuer string
}

// NativeAsset returns the sentinel for the network's native asset.
func NativeAsset() Asset {
	return Asset{}
}

// CreditAsset returns a non-native asset issued by the given account.
func CreditAsset(code, issuer string) Asset {
	return Asset{Code: code, Issuer: issuer}
}

// IsNative reports whether the asset is the network's native asset.
func (a Asset) IsNative() bool {
	return a.Code == "" && a.Issuer == ""
}

// Equal reports whether both assets name the same (code, issuer) pair.
func (a Asset) Equal(b Asset) bool {
	return a.Code == b.Code && a.Issuer == b.Issuer
}

// String returns "native" for the native asset and "CODE:ISSUER" otherwise.
func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}
