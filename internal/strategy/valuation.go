package strategy

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// GetUsdWorth values the strategy's position. rates is aligned with the asset group and holds
// USD per whole asset scaled by 10^18. Idle balances waiting to be claimed are not included.
func (s *Strategy) GetUsdWorth(ctx context.Context, rates []sdkmath.Int) (sdkmath.Int, error) {
	if len(rates) != len(s.assetGroup) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d rates for %d assets", ErrInvalidAssetGroup, len(rates), len(s.assetGroup))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	native, err := s.nativeBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if native.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	assets, err := s.adapter.PositionAssets(ctx, native)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("converting position on %s: %w", s.adapter.Venue(), err)
	}
	return s.valueCoins(assets, rates)
}

func (s *Strategy) valueCoins(assets sdktypes.Coins, rates []sdkmath.Int) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, c := range assets {
		i := s.assetGroup.IndexOf(c.Denom)
		if i < 0 {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: position holds %s", ErrInvalidAssetGroup, c.Denom)
		}
		usd, err := s.priceFeed.AssetToUsd(c.Denom, c.Amount, rates[i])
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("valuing %s: %w", c, err)
		}
		total = total.Add(usd)
	}
	return total, nil
}

// Converter turns an amount held at one vault layer into the amounts it is worth one layer down.
type Converter interface {
	Convert(ctx context.Context, amount sdkmath.Int) (sdktypes.Coins, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, amount sdkmath.Int) (sdktypes.Coins, error)

func (f ConverterFunc) Convert(ctx context.Context, amount sdkmath.Int) (sdktypes.Coins, error) {
	return f(ctx, amount)
}

// ConversionChain resolves a position through nested vault layers, outermost first. Each
// intermediate layer must produce a single denomination that feeds the next converter.
type ConversionChain []Converter

func (c ConversionChain) Convert(ctx context.Context, amount sdkmath.Int) (sdktypes.Coins, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("%w: empty conversion chain", ErrInvalidConfig)
	}
	var out sdktypes.Coins
	for i, conv := range c {
		coins, err := conv.Convert(ctx, amount)
		if err != nil {
			return nil, fmt.Errorf("conversion layer %d: %w", i, err)
		}
		if i == len(c)-1 {
			out = coins
			break
		}
		if coins.Empty() {
			return sdktypes.NewCoins(), nil
		}
		if len(coins) != 1 {
			return nil, fmt.Errorf("%w: conversion layer %d produced %s", ErrInvalidConfig, i, coins)
		}
		amount = coins[0].Amount
	}
	return out, nil
}
