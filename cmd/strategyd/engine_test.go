package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/strategyvault/internal/config"
	"github.com/elys-network/strategyvault/internal/keeper"
	"github.com/elys-network/strategyvault/internal/strategy"
)

const testCatalogue = `
tokens = [{ symbol = "USDC", denom = "uusdc", decimals = 6 }]

[[routes]]
token_in = "uelys"
token_out = "uusdc"
rate = "0.5"

[[strategies]]
id = "usdc-lending"
asset_group = ["uusdc"]
usd_prices = [1.0]

  [strategies.market]
  growth_bps = 100
  reward_emission = "1000uelys"

  [[strategies.swaps]]
  venue = "router"
  token_in = "uelys"
  token_out = "uusdc"

[[strategies]]
id = "usdc-vault"
asset_group = ["uusdc"]

  [strategies.market]
  nested = true
  withdrawal_delay = "1h"
`

func loadTestCatalogue(t *testing.T) *config.Catalogue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.toml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogue), 0o600))
	c, err := config.LoadCatalogue(path)
	require.NoError(t, err)
	return c
}

func TestBuildEngine(t *testing.T) {
	ctx := context.Background()
	eng, err := buildEngine(ctx, loadTestCatalogue(t), engineOptions{owner: "vault"})
	require.NoError(t, err)

	entries := eng.registry.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "usdc-lending", entries[0].Strategy.ID())
	assert.Equal(t, "strategy/usdc-lending", entries[0].Strategy.Address())
	assert.Len(t, entries[0].Rates, 1)
	assert.Nil(t, entries[1].Rates)

	policy := entries[1].Strategy.Policy()
	assert.True(t, policy.AtomicDeposit)
	assert.False(t, policy.AtomicWithdrawal)
	assert.Len(t, eng.markets[entries[0].Strategy.ID()], 1)
	// the nested venue and its inner venue
	assert.Len(t, eng.markets[entries[1].Strategy.ID()], 2)
}

func TestKeeperCycleOverEngine(t *testing.T) {
	ctx := context.Background()
	eng, err := buildEngine(ctx, loadTestCatalogue(t), engineOptions{owner: "vault"})
	require.NoError(t, err)

	require.NoError(t, eng.bank.Mint("alice", sdk.NewCoins(sdk.NewInt64Coin("uusdc", 1_000_000))))
	dep, err := eng.registry.Deposit(ctx, "usdc-lending", "alice", sdk.NewCoins(sdk.NewInt64Coin("uusdc", 1_000_000)), nil)
	require.NoError(t, err)
	require.Equal(t, "1000000", dep.Shares.String())

	k, err := keeper.New(keeper.Config{Manager: eng.registry, Party: "keeper", BeforeCycle: eng.tick})
	require.NoError(t, err)
	snap := k.RunCycle(ctx)

	require.Empty(t, snap.FailedStrategies)
	require.Len(t, snap.Results, 2)
	lending := snap.Results[0]
	assert.Equal(t, "1000uelys", lending.Rewards.String())
	assert.Equal(t, "500uusdc", lending.Reinvested.String())
	// 500 uusdc buys 495 units at a price of 1.01
	assert.Equal(t, "495000000", lending.CompoundYield.String())
	assert.True(t, lending.Yield.IsPositive())
	assert.True(t, lending.Yield.LT(strategy.YieldFullPercent.QuoRaw(50)), "growth is about one percent")
	assert.Equal(t, "1000000", lending.TotalSupply.String())

	assert.True(t, snap.Results[1].Yield.IsZero())
}
