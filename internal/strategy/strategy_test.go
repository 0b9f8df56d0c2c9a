package strategy_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/strategyvault/internal/pricefeed"
	"github.com/elys-network/strategyvault/internal/simulations"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
)

const (
	strategyAddr = "strategy-usdc"
	owner        = "vault"
	alice        = "alice"
	bob          = "bob"
	carol        = "carol"
	usdc         = "uusdc"
	elys         = "uelys"
)

type memStore struct {
	mu       sync.Mutex
	states   []types.StrategyState
	receipts []types.OperationReceipt
	fail     error
}

func (m *memStore) SaveOperation(_ context.Context, state types.StrategyState, receipt types.OperationReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.states = append(m.states, state)
	m.receipts = append(m.receipts, receipt)
	return nil
}

type fixture struct {
	ctx    context.Context
	bank   *simulations.Bank
	market *simulations.Market
	router *simulations.Router
	clock  *simulations.ManualClock
	store  *memStore
	cfg    strategy.Config
	strat  *strategy.Strategy
}

func newFixture(t *testing.T, configure func(*strategy.Config), opts ...simulations.MarketOption) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := simulations.NewManualClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	bank := simulations.NewBank()

	market, err := simulations.NewMarket("lending", bank, types.AssetGroup{usdc}, append([]simulations.MarketOption{simulations.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	router := simulations.NewRouter("router", bank)
	feed, err := pricefeed.New([]types.Token{{Symbol: "USDC", Denom: usdc, Decimals: 6}})
	require.NoError(t, err)
	store := &memStore{}

	cfg := strategy.Config{
		ID:                 "usdc-lending",
		Address:            strategyAddr,
		Owner:              owner,
		AssetGroup:         types.AssetGroup{usdc},
		Adapter:            market.Adapter(),
		PriceFeed:          feed,
		SwapRouter:         router,
		Bank:               bank,
		Store:              store,
		PositiveYieldLimit: sdkmath.NewInt(100_000_000_000),
		NegativeYieldLimit: sdkmath.NewInt(-100_000_000_000),
		Clock:              clock.Now,
	}
	if configure != nil {
		configure(&cfg)
	}
	s, err := strategy.New(ctx, cfg)
	require.NoError(t, err)

	return &fixture{ctx: ctx, bank: bank, market: market, router: router, clock: clock, store: store, cfg: cfg, strat: s}
}

func uusdc(amount int64) sdktypes.Coins {
	return sdktypes.NewCoins(sdktypes.NewInt64Coin(usdc, amount))
}

// deposit plays the vault layer: fund the strategy, invest, then mint shares pro rata.
func (f *fixture) deposit(t *testing.T, party string, amount int64) sdkmath.Int {
	t.Helper()
	require.NoError(t, f.bank.Mint(strategyAddr, uusdc(amount)))
	before := f.native(t)
	supply := f.strat.TotalSupply()

	res, err := f.strat.Deposit(f.ctx, party, []string{usdc}, []sdkmath.Int{sdkmath.NewInt(amount)}, nil)
	require.NoError(t, err)
	require.True(t, res.Finished)

	shares := res.PositionDelta
	if supply.IsPositive() {
		shares = res.PositionDelta.Mul(supply).Quo(before)
	}
	require.NoError(t, f.strat.Mint(f.ctx, owner, party, shares))
	return shares
}

func (f *fixture) native(t *testing.T) sdkmath.Int {
	t.Helper()
	n, err := f.strat.NativeBalance(f.ctx)
	require.NoError(t, err)
	return n
}

func (f *fixture) idle(t *testing.T, addr string) sdkmath.Int {
	t.Helper()
	coins, err := f.bank.Balance(f.ctx, addr)
	require.NoError(t, err)
	return coins.AmountOf(usdc)
}

func TestRedeemIsProportional(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit(t, alice, 1_000_000)
	f.deposit(t, bob, 3_000_000)
	require.NoError(t, f.market.Accrue(f.ctx, uusdc(400_000)))

	nativeBefore := f.native(t)
	supply := f.strat.TotalSupply()
	shares := sdkmath.NewInt(500_000)

	res, err := f.strat.Redeem(f.ctx, alice, shares, nil)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.True(t, res.SharesDeducted)
	assert.Equal(t, nativeBefore.Mul(shares).Quo(supply).String(), res.NativeAmount.String())
	assert.Equal(t, uusdc(550_000).String(), res.Assets.String())

	assert.Equal(t, "500000", f.strat.BalanceOf(alice).String())
	assert.Equal(t, "3500000", f.strat.TotalSupply().String())
	assert.Equal(t, "3500000", f.native(t).String())
	assert.Equal(t, "550000", f.idle(t, strategyAddr).String())
}

func TestRoundTripReturnsDeposit(t *testing.T) {
	f := newFixture(t, nil)
	shares := f.deposit(t, alice, 1_000_000)

	res, err := f.strat.Redeem(f.ctx, alice, shares, nil)
	require.NoError(t, err)
	assert.Equal(t, uusdc(1_000_000).String(), res.Assets.String())
	assert.True(t, f.native(t).IsZero())
	assert.True(t, f.strat.TotalSupply().IsZero())
}

func TestObservedRedemptionScenario(t *testing.T) {
	tests := []struct {
		name string
		opts []simulations.MarketOption
	}{
		{name: "atomic"},
		{name: "deduct on init", opts: []simulations.MarketOption{simulations.WithDelayedWithdrawals(time.Hour, true)}},
		{name: "deduct on continue", opts: []simulations.MarketOption{simulations.WithDelayedWithdrawals(time.Hour, false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, tt.opts...)
			require.NoError(t, f.bank.Mint(strategyAddr, uusdc(1000)))
			_, err := f.strat.InitializeDeposit(f.ctx, alice, uusdc(1000), nil)
			require.NoError(t, err)
			require.NoError(t, f.strat.Mint(f.ctx, owner, alice, sdkmath.NewInt(100)))

			res, err := f.strat.InitializeWithdrawal(f.ctx, alice, sdkmath.NewInt(60), nil)
			require.NoError(t, err)
			if !res.Finished {
				assert.True(t, f.idle(t, strategyAddr).IsZero(), "assets must stay in flight until continued")
				f.clock.Advance(time.Hour)
				res, err = f.strat.ContinueWithdrawal(f.ctx, alice, nil)
				require.NoError(t, err)
				require.True(t, res.Finished)
			}

			assert.InDelta(t, 600, res.NativeAmount.Int64(), 10)
			assert.InDelta(t, 600, f.idle(t, strategyAddr).Int64(), 10)
			assert.InDelta(t, 400, f.native(t).Int64(), 10)
			assert.Equal(t, "40", f.strat.BalanceOf(alice).String())
		})
	}
}

func TestRedeemRejectsOverdraw(t *testing.T) {
	f := newFixture(t, nil)
	shares := f.deposit(t, alice, 1_000_000)

	_, err := f.strat.Redeem(f.ctx, alice, shares.AddRaw(1), nil)
	require.ErrorIs(t, err, strategy.ErrInsufficientShares)

	_, err = f.strat.Redeem(f.ctx, bob, sdkmath.OneInt(), nil)
	require.ErrorIs(t, err, strategy.ErrInsufficientShares)

	_, err = f.strat.Redeem(f.ctx, alice, sdkmath.ZeroInt(), nil)
	require.ErrorIs(t, err, strategy.ErrInvalidAmount)

	assert.Equal(t, shares.String(), f.strat.BalanceOf(alice).String())
	assert.Equal(t, "1000000", f.native(t).String())
}

func TestDepositRejectsForeignAssets(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bank.Mint(strategyAddr, sdktypes.NewCoins(sdktypes.NewInt64Coin("uatom", 10))))

	_, err := f.strat.Deposit(f.ctx, alice, []string{"uatom"}, []sdkmath.Int{sdkmath.NewInt(10)}, nil)
	require.ErrorIs(t, err, strategy.ErrInvalidAssetGroup)

	_, err = f.strat.Deposit(f.ctx, alice, []string{usdc}, []sdkmath.Int{sdkmath.NewInt(1), sdkmath.NewInt(2)}, nil)
	require.ErrorIs(t, err, strategy.ErrInvalidAssetGroup)

	_, err = f.strat.InitializeDeposit(f.ctx, alice, sdktypes.NewCoins(sdktypes.NewInt64Coin("uatom", 10)), nil)
	require.ErrorIs(t, err, strategy.ErrInvalidAssetGroup)

	assert.Equal(t, 0, f.market.InvestCalls())
}

func TestInvalidParamsAreRejected(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bank.Mint(strategyAddr, uusdc(100)))

	_, err := f.strat.InitializeDeposit(f.ctx, alice, uusdc(100), simulations.Params{MinOut: sdkmath.NewInt(-1)})
	require.ErrorIs(t, err, strategy.ErrInvalidParams)
}

func TestVenueSlippageAbortsDeposit(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bank.Mint(strategyAddr, uusdc(100)))

	_, err := f.strat.InitializeDeposit(f.ctx, alice, uusdc(100), simulations.Params{MinOut: sdkmath.NewInt(101)})
	require.ErrorIs(t, err, strategy.ErrSlippageExceeded)

	assert.Equal(t, "100", f.idle(t, strategyAddr).String())
	assert.True(t, f.native(t).IsZero())
}

func TestMintIsOwnerOnly(t *testing.T) {
	f := newFixture(t, nil)

	err := f.strat.Mint(f.ctx, alice, alice, sdkmath.NewInt(5))
	require.ErrorIs(t, err, strategy.ErrUnauthorized)

	err = f.strat.Mint(f.ctx, owner, alice, sdkmath.ZeroInt())
	require.ErrorIs(t, err, strategy.ErrInvalidAmount)
	assert.True(t, f.strat.TotalSupply().IsZero())
}

func TestClaimPaysRealizedAssets(t *testing.T) {
	f := newFixture(t, nil)
	shares := f.deposit(t, alice, 1_000_000)
	_, err := f.strat.Redeem(f.ctx, alice, shares, nil)
	require.NoError(t, err)

	err = f.strat.Claim(f.ctx, alice, alice, uusdc(1_000_000))
	require.ErrorIs(t, err, strategy.ErrUnauthorized)

	err = f.strat.Claim(f.ctx, owner, alice, uusdc(1_000_001))
	require.ErrorIs(t, err, strategy.ErrInvalidAmount)

	require.NoError(t, f.strat.Claim(f.ctx, owner, alice, uusdc(1_000_000)))
	assert.Equal(t, "1000000", f.idle(t, alice).String())
	assert.True(t, f.idle(t, strategyAddr).IsZero())
}

func TestFailedPersistenceRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	shares := f.deposit(t, alice, 1_000_000)
	receipts := len(f.store.receipts)

	f.store.fail = errors.New("database unavailable")
	_, err := f.strat.Redeem(f.ctx, alice, shares, nil)
	require.Error(t, err)

	assert.Equal(t, shares.String(), f.strat.BalanceOf(alice).String())
	assert.Equal(t, "1000000", f.native(t).String())
	assert.True(t, f.idle(t, strategyAddr).IsZero())
	assert.Len(t, f.store.receipts, receipts)
	assert.Len(t, f.store.states, receipts, "state and receipt are saved together")

	f.store.fail = nil
	res, err := f.strat.Redeem(f.ctx, alice, shares, nil)
	require.NoError(t, err)
	assert.Equal(t, uusdc(1_000_000).String(), res.Assets.String())
}

func TestReceiptsArePersisted(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit(t, alice, 1_000)

	require.Len(t, f.store.receipts, 2)
	assert.Equal(t, types.OpDeposit, f.store.receipts[0].Type)
	assert.Equal(t, types.OpMint, f.store.receipts[1].Type)
	assert.Equal(t, "usdc-lending", f.store.receipts[1].StrategyID)
	assert.NotEmpty(t, f.store.receipts[0].OperationID)

	last := f.store.states[len(f.store.states)-1]
	assert.Equal(t, "1000", last.TotalSupply.String())
	require.Len(t, last.Balances, 1)
	assert.Equal(t, alice, last.Balances[0].Holder)
}

func TestRestoreResumesPendingWithdrawal(t *testing.T) {
	f := newFixture(t, nil, simulations.WithDelayedWithdrawals(time.Hour, true))
	f.deposit(t, alice, 1_000_000)
	_, err := f.strat.InitializeWithdrawal(f.ctx, alice, sdkmath.NewInt(250_000), nil)
	require.NoError(t, err)

	restored, err := strategy.Restore(f.cfg, f.strat.State())
	require.NoError(t, err)
	assert.Equal(t, "750000", restored.BalanceOf(alice).String())
	_, ok := restored.Pending(alice, types.OperationWithdrawal)
	require.True(t, ok)

	f.clock.Advance(time.Hour)
	res, err := restored.ContinueWithdrawal(f.ctx, alice, nil)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Equal(t, uusdc(250_000).String(), res.Assets.String())

	other := f.cfg
	other.ID = "other"
	_, err = strategy.Restore(other, f.strat.State())
	require.ErrorIs(t, err, strategy.ErrInvalidConfig)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := strategy.New(context.Background(), strategy.Config{})
	require.ErrorIs(t, err, strategy.ErrInvalidConfig)

	bank := simulations.NewBank()
	market, err := simulations.NewMarket("slow", bank, types.AssetGroup{usdc}, simulations.WithDelayedDeposits(time.Hour))
	require.NoError(t, err)
	feed, err := pricefeed.New(nil)
	require.NoError(t, err)
	_, err = strategy.New(context.Background(), strategy.Config{
		ID:                "x",
		Address:           "x",
		Owner:             owner,
		AssetGroup:        types.AssetGroup{usdc},
		Adapter:           market.Adapter(),
		PriceFeed:         feed,
		Bank:              bank,
		PerformanceFeeBps: 500,
	})
	require.ErrorIs(t, err, strategy.ErrInvalidConfig, "fee without recipient")
}
