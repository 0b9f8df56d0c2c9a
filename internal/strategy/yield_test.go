package strategy_test

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/strategyvault/internal/simulations"
	"github.com/elys-network/strategyvault/internal/strategy"
)

func TestYieldFromVenuePrice(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit(t, alice, 1_000_000)
	assert.Equal(t, sdkmath.LegacyOneDec().String(), f.strat.ReferencePrice().String())

	valueBefore := sdkmath.NewInt(1_000_000)
	require.NoError(t, f.market.Accrue(f.ctx, uusdc(50_000)))

	override := sdkmath.NewInt(1)
	yield, err := f.strat.GetYieldPercentage(f.ctx, &override)
	require.NoError(t, err)
	assert.Equal(t, "50000000000", yield.String(), "override is ignored for priced venues")
	assert.Equal(t, "1.050000000000000000", f.strat.ReferencePrice().String())

	// applying the yield to the pre-yield value gives the balance delta
	assert.Equal(t, "50000", valueBefore.Mul(yield).Quo(strategy.YieldFullPercent).String())

	yield, err = f.strat.GetYieldPercentage(f.ctx, nil)
	require.NoError(t, err)
	assert.True(t, yield.IsZero(), "yield is realized once")
}

func TestNegativeYield(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit(t, alice, 1_000_000)
	require.NoError(t, f.market.Lose(f.ctx, uusdc(20_000)))

	yield, err := f.strat.GetYieldPercentage(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "-20000000000", yield.String())
}

func TestManualYieldBounds(t *testing.T) {
	f := newFixture(t, nil, simulations.WithManualPricing())
	f.deposit(t, alice, 1_000_000)

	yield, err := f.strat.GetYieldPercentage(f.ctx, nil)
	require.NoError(t, err)
	assert.True(t, yield.IsZero())

	tooBig := sdkmath.NewInt(200_000_000_000)
	_, err = f.strat.GetYieldPercentage(f.ctx, &tooBig)
	require.ErrorIs(t, err, strategy.ErrManualYieldTooBig)
	var yerr *strategy.ManualYieldError
	require.True(t, errors.As(err, &yerr))
	assert.Equal(t, tooBig.String(), yerr.Yield.String())

	tooSmall := sdkmath.NewInt(-200_000_000_000)
	_, err = f.strat.GetYieldPercentage(f.ctx, &tooSmall)
	require.ErrorIs(t, err, strategy.ErrManualYieldTooSmall)

	ok := sdkmath.NewInt(30_000_000_000)
	yield, err = f.strat.GetYieldPercentage(f.ctx, &ok)
	require.NoError(t, err)
	assert.Equal(t, ok.String(), yield.String())

	edge := sdkmath.NewInt(-100_000_000_000)
	yield, err = f.strat.GetYieldPercentage(f.ctx, &edge)
	require.NoError(t, err)
	assert.Equal(t, edge.String(), yield.String())
}

func TestPerformanceFeeShares(t *testing.T) {
	f := newFixture(t, func(cfg *strategy.Config) {
		cfg.PerformanceFeeBps = 1000
		cfg.FeeRecipient = "treasury"
	})
	f.deposit(t, alice, 1_000_000)
	require.NoError(t, f.market.Accrue(f.ctx, uusdc(100_000)))

	yield, err := f.strat.GetYieldPercentage(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "100000000000", yield.String())

	// 1e6 * 1e11 * 1000 / ((1e12 + 1e11) * 1e4 - 1e11 * 1000)
	assert.Equal(t, "9174", f.strat.BalanceOf("treasury").String())
	assert.Equal(t, "1009174", f.strat.TotalSupply().String())

	// the treasury's claim is worth close to 10% of the 100000 gained
	worth := sdkmath.NewInt(1_100_000).Mul(f.strat.BalanceOf("treasury")).Quo(f.strat.TotalSupply())
	assert.InDelta(t, 10_000, worth.Int64(), 1)

	require.NoError(t, f.market.Lose(f.ctx, uusdc(50_000)))
	_, err = f.strat.GetYieldPercentage(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "9174", f.strat.BalanceOf("treasury").String(), "no fee on losses")
}

func TestYieldBetween(t *testing.T) {
	ref := sdkmath.LegacyMustNewDecFromStr("2")
	assert.Equal(t, "500000000000", strategy.YieldBetween(ref, sdkmath.LegacyMustNewDecFromStr("3")).String())
	assert.Equal(t, "-250000000000", strategy.YieldBetween(ref, sdkmath.LegacyMustNewDecFromStr("1.5")).String())
	assert.True(t, strategy.YieldBetween(ref, ref).IsZero())
}
