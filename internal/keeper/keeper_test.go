package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/strategyvault/internal/pricefeed"
	"github.com/elys-network/strategyvault/internal/simulations"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
	"github.com/elys-network/strategyvault/internal/vault"
)

const owner = "vault"

func usdc(n int64) sdk.Coins {
	return sdk.NewCoins(sdk.NewInt64Coin("uusdc", n))
}

type env struct {
	ctx   context.Context
	bank  *simulations.Bank
	clock *simulations.ManualClock
	reg   *vault.Registry
	feed  *pricefeed.Feed
}

func newEnv(t *testing.T) *env {
	t.Helper()
	bank := simulations.NewBank()
	reg, err := vault.NewRegistry(vault.Config{Owner: owner, Bank: bank})
	require.NoError(t, err)
	feed, err := pricefeed.New([]types.Token{{Symbol: "USDC", Denom: "uusdc", Decimals: 6}})
	require.NoError(t, err)
	return &env{
		ctx:   context.Background(),
		bank:  bank,
		clock: simulations.NewManualClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		reg:   reg,
		feed:  feed,
	}
}

// add registers a strategy over a fresh market and deposits 1_000_000 uusdc into it.
func (e *env) add(t *testing.T, id string, opts ...simulations.MarketOption) *simulations.Market {
	t.Helper()
	market, err := simulations.NewMarket(id, e.bank, types.AssetGroup{"uusdc"}, append([]simulations.MarketOption{simulations.WithClock(e.clock.Now)}, opts...)...)
	require.NoError(t, err)
	s, err := strategy.New(e.ctx, strategy.Config{
		ID:         id,
		Address:    "strategy/" + id,
		Owner:      owner,
		AssetGroup: types.AssetGroup{"uusdc"},
		Adapter:    market.Adapter(),
		PriceFeed:  e.feed,
		Bank:       e.bank,
		Clock:      e.clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, e.reg.Register(vault.Entry{Strategy: s}))

	require.NoError(t, e.bank.Mint("alice", usdc(1_000_000)))
	_, err = e.reg.Deposit(e.ctx, id, "alice", usdc(1_000_000), nil)
	require.NoError(t, err)
	e.clock.Advance(time.Hour)
	if _, ok := s.Pending("alice", types.OperationDeposit); ok {
		_, err = e.reg.ContinueDeposit(e.ctx, id, "alice", nil)
		require.NoError(t, err)
	}
	return market
}

func TestRunCycleRealizesYieldAndIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	lending := e.add(t, "lending")
	farm := e.add(t, "farm")

	require.NoError(t, lending.Accrue(e.ctx, usdc(50_000)))
	// no swap instruction is configured for these rewards
	require.NoError(t, farm.AddRewards("strategy/farm", sdk.NewCoins(sdk.NewInt64Coin("uatom", 10))))

	rec := NewMemoryRecorder()
	hooked := 0
	k, err := New(Config{
		Manager:     e.reg,
		Recorder:    rec,
		Party:       "keeper",
		Clock:       e.clock.Now,
		BeforeCycle: func(context.Context) error { hooked++; return nil },
	})
	require.NoError(t, err)

	snap := k.RunCycle(e.ctx)
	assert.Equal(t, 1, snap.CycleNumber)
	assert.NotEmpty(t, snap.CycleID)
	assert.Equal(t, 1, hooked)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "50000000000", snap.Results[0].Yield.String())
	assert.Empty(t, snap.Results[0].Error)
	assert.Equal(t, []string{"farm"}, snap.FailedStrategies)
	assert.Contains(t, snap.Results[1].Error, "compound")

	ys := rec.Yields("lending")
	require.Len(t, ys, 1)
	assert.Equal(t, types.YieldFromPrice, ys[0].Source)
	assert.Equal(t, "1.050000000000000000", ys[0].ReferencePrice.String())

	snap = k.RunCycle(e.ctx)
	assert.Equal(t, 2, snap.CycleNumber)
	assert.True(t, snap.Results[0].Yield.IsZero())
	assert.Len(t, rec.Cycles(0), 2)
	assert.Equal(t, 2, rec.Cycles(1)[0].CycleNumber)
}

func TestRunCycleSettlesPendingReinvestment(t *testing.T) {
	e := newEnv(t)
	slow := e.add(t, "slow", simulations.WithDelayedDeposits(time.Hour))
	require.NoError(t, slow.AddRewards("strategy/slow", usdc(3_000)))

	k, err := New(Config{Manager: e.reg, Party: "keeper", Clock: e.clock.Now})
	require.NoError(t, err)

	snap := k.RunCycle(e.ctx)
	require.Len(t, snap.Results, 1)
	assert.False(t, snap.Results[0].Finished)
	assert.Equal(t, "3000uusdc", snap.Results[0].Reinvested.String())

	entry, err := e.reg.Get("slow")
	require.NoError(t, err)
	_, pending := entry.Strategy.Pending("keeper", types.OperationDeposit)
	require.True(t, pending)

	// not ready yet: the reinvestment stays pending and no new compound starts
	snap = k.RunCycle(e.ctx)
	assert.Empty(t, snap.FailedStrategies)
	_, pending = entry.Strategy.Pending("keeper", types.OperationDeposit)
	assert.True(t, pending)

	e.clock.Advance(time.Hour)
	snap = k.RunCycle(e.ctx)
	assert.Empty(t, snap.FailedStrategies)
	_, pending = entry.Strategy.Pending("keeper", types.OperationDeposit)
	assert.False(t, pending)
	native, err := entry.Strategy.NativeBalance(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, "1003000", native.String())
	// reinvested rewards mint no shares
	assert.Equal(t, "1000000", entry.Strategy.TotalSupply().String())
}

type failingRecorder struct{ MemoryRecorder }

func (f *failingRecorder) NextCycleNumber(context.Context) (int, error) {
	return 0, errors.New("db down")
}

func TestRunCycleFallsBackToLocalCount(t *testing.T) {
	e := newEnv(t)
	k, err := New(Config{Manager: e.reg, Party: "keeper", Recorder: &failingRecorder{}})
	require.NoError(t, err)
	assert.Equal(t, 1, k.RunCycle(e.ctx).CycleNumber)
	assert.Equal(t, 2, k.RunCycle(e.ctx).CycleNumber)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	rec := NewMemoryRecorder()
	k, err := New(Config{Manager: e.reg, Party: "keeper", Recorder: rec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	go func() {
		k.RunLoop(ctx, time.Hour)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(rec.Cycles(0)) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Party: "keeper"})
	assert.Error(t, err)
	_, err = New(Config{Manager: newEnv(t).reg})
	assert.Error(t, err)
}
