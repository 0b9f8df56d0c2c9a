/*
This file contains the price feed used by the valuation engine. Exchange rates are supplied per
call by the caller, so the feed only knows each asset's decimals and does fixed-point conversion.
*/

package pricefeed

import (
	"errors"
	"fmt"
	"math"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/strategyvault/internal/types"
)

// UsdDecimals is the fixed-point precision of USD amounts and exchange rates.
const UsdDecimals = 18

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrUnknownAsset     = errors.New("asset is not registered")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrInvalidRate      = errors.New("exchange rate must be positive")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// Feed converts between asset base units and USD given an exchange rate (USD per whole asset,
// scaled by 10^UsdDecimals).
type Feed struct {
	mu       sync.RWMutex
	decimals map[string]int
}

// New creates a feed knowing the given tokens.
func New(tokens []types.Token) (*Feed, error) {
	f := &Feed{decimals: make(map[string]int, len(tokens))}
	for _, t := range tokens {
		if err := f.Register(t.Denom, t.Decimals); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Register adds or replaces an asset's decimals.
func (f *Feed) Register(denom string, decimals int) error {
	if decimals < 0 || decimals > 18 {
		return fmt.Errorf("%w: %s has %d (must be between 0 and 18)", ErrInvalidPrecision, denom, decimals)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimals[denom] = decimals
	return nil
}

// AssetToUsd values amount base units of asset at rate.
func (f *Feed) AssetToUsd(asset string, amount sdkmath.Int, rate sdkmath.Int) (sdkmath.Int, error) {
	scale, err := f.scale(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := validateInputs(amount, rate); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount.Mul(rate).Quo(scale), nil
}

// UsdToAsset converts a USD amount into base units of asset at rate.
func (f *Feed) UsdToAsset(asset string, usd sdkmath.Int, rate sdkmath.Int) (sdkmath.Int, error) {
	scale, err := f.scale(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := validateInputs(usd, rate); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return usd.Mul(scale).Quo(rate), nil
}

func (f *Feed) scale(asset string) (sdkmath.Int, error) {
	f.mu.RLock()
	decimals, ok := f.decimals[asset]
	f.mu.RUnlock()
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return pow10(decimals), nil
}

func validateInputs(amount, rate sdkmath.Int) error {
	if amount.IsNil() || rate.IsNil() {
		return ErrAmountNil
	}
	if amount.IsNegative() {
		return ErrAmountNegative
	}
	if !rate.IsPositive() {
		return ErrInvalidRate
	}
	return nil
}

func pow10(n int) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, n)
}

// RateFromFloat converts a human price (e.g. 1.0001 USD) into a fixed-point exchange rate.
func RateFromFloat(price float64) (sdkmath.Int, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: price is %f", ErrNotFinite, price)
	}
	if price <= 0 {
		return sdkmath.ZeroInt(), ErrInvalidRate
	}

	// Use string conversion to avoid floating point precision issues
	dec, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.18f", price))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	return dec.MulInt(pow10(UsdDecimals)).TruncateInt(), nil
}

// UsdToFloat converts a fixed-point USD amount to float64 for display and metrics.
func UsdToFloat(usd sdkmath.Int) (float64, error) {
	if usd.IsNil() {
		return 0, ErrAmountNil
	}
	result, err := sdkmath.LegacyNewDecFromIntWithPrec(usd, UsdDecimals).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}
