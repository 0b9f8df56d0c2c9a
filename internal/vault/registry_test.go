package vault

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/strategyvault/internal/lock"
	"github.com/elys-network/strategyvault/internal/pricefeed"
	"github.com/elys-network/strategyvault/internal/simulations"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
)

const owner = "vault"

func usdc(n int64) sdk.Coins {
	return sdk.NewCoins(sdk.NewInt64Coin("uusdc", n))
}

type env struct {
	ctx    context.Context
	bank   *simulations.Bank
	market *simulations.Market
	clock  *simulations.ManualClock
	locker *lock.Local
	reg    *Registry
}

func newEnv(t *testing.T, opts ...simulations.MarketOption) *env {
	t.Helper()
	return newEnvWithStore(t, nil, opts...)
}

func newEnvWithStore(t *testing.T, store strategy.Store, opts ...simulations.MarketOption) *env {
	t.Helper()
	ctx := context.Background()
	bank := simulations.NewBank()
	clock := simulations.NewManualClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	market, err := simulations.NewMarket("lending", bank, types.AssetGroup{"uusdc"}, append([]simulations.MarketOption{simulations.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	router := simulations.NewRouter("router", bank)
	require.NoError(t, router.Allow("uelys", "uusdc", sdkmath.LegacyMustNewDecFromStr("0.5")))
	feed, err := pricefeed.New([]types.Token{{Symbol: "USDC", Denom: "uusdc", Decimals: 6}})
	require.NoError(t, err)

	s, err := strategy.New(ctx, strategy.Config{
		ID:         "usdc-lending",
		Address:    "strategy-usdc",
		Owner:      owner,
		AssetGroup: types.AssetGroup{"uusdc"},
		Adapter:    market.Adapter(),
		PriceFeed:  feed,
		SwapRouter: router,
		Bank:       bank,
		Clock:      clock.Now,
		Store:      store,
	})
	require.NoError(t, err)

	locker := lock.NewLocal()
	reg, err := NewRegistry(Config{Owner: owner, Bank: bank, Locker: locker, LockWait: 100 * time.Millisecond})
	require.NoError(t, err)
	rate, err := pricefeed.RateFromFloat(1)
	require.NoError(t, err)
	require.NoError(t, reg.Register(Entry{
		Strategy:     s,
		Instructions: []types.SwapInstruction{{Venue: "router", TokenIn: "uelys", TokenOut: "uusdc"}},
		Rates:        []sdkmath.Int{rate},
	}))
	return &env{ctx: ctx, bank: bank, market: market, clock: clock, locker: locker, reg: reg}
}

func (e *env) balance(t *testing.T, addr string) string {
	t.Helper()
	coins, err := e.bank.Balance(e.ctx, addr)
	require.NoError(t, err)
	return coins.String()
}

func TestDepositMintsAndWithdrawPays(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.bank.Mint("alice", usdc(1_000)))
	require.NoError(t, e.bank.Mint("bob", usdc(1_000)))

	dep, err := e.reg.Deposit(e.ctx, "usdc-lending", "alice", usdc(1_000), nil)
	require.NoError(t, err)
	assert.True(t, dep.Finished)
	assert.Equal(t, "1000", dep.Shares.String())

	require.NoError(t, e.market.Accrue(e.ctx, usdc(1_000)))

	dep, err = e.reg.Deposit(e.ctx, "usdc-lending", "bob", usdc(1_000), nil)
	require.NoError(t, err)
	assert.Equal(t, "500", dep.Shares.String())

	out, err := e.reg.Withdraw(e.ctx, "usdc-lending", "alice", sdkmath.NewInt(1_000), nil)
	require.NoError(t, err)
	assert.True(t, out.Finished)
	assert.Equal(t, "2000uusdc", out.Paid.String())
	assert.Equal(t, "2000uusdc", e.balance(t, "alice"))
	assert.Empty(t, e.balance(t, "strategy-usdc"))

	entry, err := e.reg.Get("usdc-lending")
	require.NoError(t, err)
	assert.Equal(t, "500", entry.Strategy.TotalSupply().String())
}

func TestRejectedDepositIsRefunded(t *testing.T) {
	e := newEnv(t)
	atom := sdk.NewCoins(sdk.NewInt64Coin("uatom", 10))
	require.NoError(t, e.bank.Mint("alice", atom))

	_, err := e.reg.Deposit(e.ctx, "usdc-lending", "alice", atom, nil)
	require.ErrorIs(t, err, strategy.ErrInvalidAssetGroup)
	assert.Equal(t, "10uatom", e.balance(t, "alice"))

	_, err = e.reg.Deposit(e.ctx, "usdc-lending", "alice", usdc(1), nil)
	require.ErrorIs(t, err, simulations.ErrInsufficientFunds)
}

var errStoreDown = errors.New("store down")

// issuanceStore refuses to save deposit receipts that issue shares.
type issuanceStore struct{}

func (issuanceStore) SaveOperation(_ context.Context, _ types.StrategyState, r types.OperationReceipt) error {
	if r.Type == types.OpDeposit && r.Shares.IsPositive() {
		return errStoreDown
	}
	return nil
}

func TestFailedIssuanceRefundsDeposit(t *testing.T) {
	e := newEnvWithStore(t, issuanceStore{})
	require.NoError(t, e.bank.Mint("alice", usdc(1_000)))

	_, err := e.reg.Deposit(e.ctx, "usdc-lending", "alice", usdc(1_000), nil)
	require.ErrorIs(t, err, errStoreDown)

	assert.Equal(t, "1000uusdc", e.balance(t, "alice"))
	assert.Empty(t, e.balance(t, "strategy-usdc"))
	assert.Empty(t, e.balance(t, "lending/pool"))

	entry, err := e.reg.Get("usdc-lending")
	require.NoError(t, err)
	assert.True(t, entry.Strategy.TotalSupply().IsZero())
	assert.True(t, entry.Strategy.BalanceOf("alice").IsZero())
	native, err := entry.Strategy.NativeBalance(e.ctx)
	require.NoError(t, err)
	assert.True(t, native.IsZero())
}

func TestDepositAfterEmergencyExitIsRejected(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.bank.Mint("alice", usdc(1_000)))
	require.NoError(t, e.bank.Mint("bob", usdc(500)))
	_, err := e.reg.Deposit(e.ctx, "usdc-lending", "alice", usdc(1_000), nil)
	require.NoError(t, err)

	paid, err := e.reg.EmergencyWithdraw(e.ctx, "usdc-lending", "treasury", nil)
	require.NoError(t, err)
	assert.Equal(t, "1000uusdc", paid.String())

	_, err = e.reg.Deposit(e.ctx, "usdc-lending", "bob", usdc(500), nil)
	require.ErrorIs(t, err, ErrUnbackedShares)
	assert.Equal(t, "500uusdc", e.balance(t, "bob"))
	assert.Empty(t, e.balance(t, "strategy-usdc"))

	entry, err := e.reg.Get("usdc-lending")
	require.NoError(t, err)
	assert.Equal(t, "1000", entry.Strategy.TotalSupply().String())
	assert.True(t, entry.Strategy.BalanceOf("bob").IsZero())
}

func TestPricerRejectsUnbackedSupply(t *testing.T) {
	e := newEnv(t)
	entry, err := e.reg.Get("usdc-lending")
	require.NoError(t, err)
	price := e.reg.pricer(entry.Strategy, "bob")

	_, err = price(sdkmath.NewInt(500), sdkmath.ZeroInt(), sdkmath.NewInt(1_000))
	require.ErrorIs(t, err, ErrUnbackedShares)

	shares, err := price(sdkmath.NewInt(500), sdkmath.NewInt(2_000), sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, "250", shares.String())

	shares, err = price(sdkmath.NewInt(1), sdkmath.NewInt(2_000), sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.True(t, shares.IsZero())
}

func TestDelayedDepositMintsOnContinue(t *testing.T) {
	e := newEnv(t, simulations.WithDelayedDeposits(time.Hour))
	require.NoError(t, e.bank.Mint("alice", usdc(1_000)))

	dep, err := e.reg.Deposit(e.ctx, "usdc-lending", "alice", usdc(1_000), nil)
	require.NoError(t, err)
	assert.False(t, dep.Finished)
	assert.True(t, dep.Shares.IsZero())

	e.clock.Advance(time.Hour)
	dep, err = e.reg.ContinueDeposit(e.ctx, "usdc-lending", "alice", nil)
	require.NoError(t, err)
	assert.True(t, dep.Finished)
	assert.Equal(t, "1000", dep.Shares.String())

	_, err = e.reg.ContinueDeposit(e.ctx, "usdc-lending", "alice", nil)
	require.ErrorIs(t, err, strategy.ErrNoPendingOperation)
}

func TestCompoundUsesConfiguredInstructions(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.bank.Mint("alice", usdc(1_000_000)))
	_, err := e.reg.Deposit(e.ctx, "usdc-lending", "alice", usdc(1_000_000), nil)
	require.NoError(t, err)
	require.NoError(t, e.market.AddRewards("strategy-usdc", sdk.NewCoins(sdk.NewInt64Coin("uelys", 20_000))))

	res, err := e.reg.Compound(e.ctx, "usdc-lending", "keeper", nil)
	require.NoError(t, err)
	assert.Equal(t, "10000uusdc", res.Reinvested.String())

	worth, err := e.reg.UsdWorth(e.ctx, "usdc-lending", nil)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(101, 16).String(), worth.String())
}

func TestRegistryErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.reg.Get("missing")
	require.ErrorIs(t, err, ErrUnknownStrategy)
	_, err = e.reg.RealizeYield(e.ctx, "missing", nil)
	require.ErrorIs(t, err, ErrUnknownStrategy)

	entry, err := e.reg.Get("usdc-lending")
	require.NoError(t, err)
	require.ErrorIs(t, e.reg.Register(*entry), ErrDuplicateStrategy)

	other, err := NewRegistry(Config{Owner: "someone-else", Bank: e.bank})
	require.NoError(t, err)
	require.ErrorIs(t, other.Register(*entry), ErrNotOwner)

	_, err = e.reg.Withdraw(e.ctx, "usdc-lending", "alice", sdkmath.NewInt(1), json.RawMessage(`{"min_out":"-1"}`))
	require.ErrorIs(t, err, strategy.ErrInvalidParams)
}

func TestBusyStrategyTimesOut(t *testing.T) {
	e := newEnv(t)
	unlock, err := e.locker.Acquire(e.ctx, lock.StrategyKey("usdc-lending"), time.Minute)
	require.NoError(t, err)

	_, err = e.reg.RealizeYield(e.ctx, "usdc-lending", nil)
	require.ErrorIs(t, err, lock.ErrLockHeld)

	unlock()
	_, err = e.reg.RealizeYield(e.ctx, "usdc-lending", nil)
	require.NoError(t, err)
}

func TestExclusiveWaitsForOperations(t *testing.T) {
	e := newEnv(t)

	ran := false
	require.NoError(t, e.reg.Exclusive(e.ctx, "usdc-lending", func() error {
		ran = true
		_, err := e.locker.Acquire(e.ctx, lock.StrategyKey("usdc-lending"), time.Minute)
		assert.ErrorIs(t, err, lock.ErrLockHeld)
		return nil
	}))
	assert.True(t, ran)

	unlock, err := e.locker.Acquire(e.ctx, lock.StrategyKey("usdc-lending"), time.Minute)
	require.NoError(t, err)
	err = e.reg.Exclusive(e.ctx, "usdc-lending", func() error {
		t.Fatal("ran while an operation held the lock")
		return nil
	})
	require.ErrorIs(t, err, lock.ErrLockHeld)
	unlock()

	require.ErrorIs(t, e.reg.Exclusive(e.ctx, "missing", func() error { return nil }), ErrUnknownStrategy)
}
