package simulations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
)

var (
	ErrUnsupportedAsset     = errors.New("asset not accepted by venue")
	ErrInsufficientPosition = errors.New("position too small")
	ErrUnknownTicket        = errors.New("unknown settlement ticket")
	ErrInvalidVenue         = errors.New("invalid venue configuration")
)

// --- Params ---

// Params is the operation parameter block understood by simulated venues.
type Params struct {
	// MinOut is the minimum native units minted on invest, or the minimum total base units paid
	// out on divest.
	MinOut sdkmath.Int `json:"min_out"`
}

func (p Params) Validate() error {
	if !p.MinOut.IsNil() && p.MinOut.IsNegative() {
		return fmt.Errorf("min_out %s is negative", p.MinOut)
	}
	return nil
}

func paramsOf(params types.OperationParams) Params {
	switch p := params.(type) {
	case Params:
		return p
	case *Params:
		if p != nil {
			return *p
		}
	}
	return Params{}
}

func checkMinOut(p Params, got sdkmath.Int) error {
	if !p.MinOut.IsNil() && got.LT(p.MinOut) {
		return fmt.Errorf("%w: got %s, minimum %s", strategy.ErrSlippageExceeded, got, p.MinOut)
	}
	return nil
}

// --- Market ---

// Market is an in-memory yield venue. It issues native units against a pool of assets held in
// the bank, can delay deposits and withdrawals behind a cooldown, pays rewards and can wrap
// another venue to model nested vault layers.
type Market struct {
	mu sync.Mutex

	name   string
	bank   *Bank
	assets types.AssetGroup
	inner  *Market

	policy          strategy.Policy
	depositDelay    time.Duration
	withdrawalDelay time.Duration
	manualPricing   bool
	clock           func() time.Time
	growthBps       uint32
	emission        sdktypes.Coins

	native      map[string]sdkmath.Int
	totalNative sdkmath.Int
	rewards     map[string]sdktypes.Coins
	tickets     map[string]ticket
	nextTicket  uint64
	investCalls int

	logger zerolog.Logger
}

type ticket struct {
	holder  string
	kind    types.OperationKind
	assets  sdktypes.Coins
	native  sdkmath.Int
	readyAt time.Time
}

// MarketOption configures a Market.
type MarketOption func(*Market)

// WithDelayedDeposits makes deposits settle in two calls, no earlier than delay apart.
func WithDelayedDeposits(delay time.Duration) MarketOption {
	return func(m *Market) {
		m.policy.AtomicDeposit = false
		m.depositDelay = delay
	}
}

// WithDelayedWithdrawals makes withdrawals settle in two calls, no earlier than delay apart.
// With deductOnInit the position is moved into an unbonding queue when the withdrawal starts;
// otherwise the request only opens a ticket and the position leaves at settlement.
func WithDelayedWithdrawals(delay time.Duration, deductOnInit bool) MarketOption {
	return func(m *Market) {
		m.policy.AtomicWithdrawal = false
		m.policy.DeductSharesOnInit = deductOnInit
		m.withdrawalDelay = delay
	}
}

// WithManualPricing hides the venue's price from the engine, so yield must be attested.
func WithManualPricing() MarketOption {
	return func(m *Market) { m.manualPricing = true }
}

func WithClock(clock func() time.Time) MarketOption {
	return func(m *Market) { m.clock = clock }
}

// WithGrowth grows the pool by bps basis points on every Tick.
func WithGrowth(bps uint32) MarketOption {
	return func(m *Market) { m.growthBps = bps }
}

// WithRewardEmission distributes coins pro rata to holders on every Tick.
func WithRewardEmission(coins sdktypes.Coins) MarketOption {
	return func(m *Market) { m.emission = coins }
}

// WithInner stakes everything deposited into inner, which must settle atomically.
func WithInner(inner *Market) MarketOption {
	return func(m *Market) { m.inner = inner }
}

func NewMarket(name string, bank *Bank, assets types.AssetGroup, opts ...MarketOption) (*Market, error) {
	m := &Market{
		name:        name,
		bank:        bank,
		assets:      append(types.AssetGroup(nil), assets...),
		policy:      strategy.Policy{AtomicDeposit: true, AtomicWithdrawal: true},
		clock:       time.Now,
		native:      make(map[string]sdkmath.Int),
		totalNative: sdkmath.ZeroInt(),
		rewards:     make(map[string]sdktypes.Coins),
		tickets:     make(map[string]ticket),
	}
	for _, opt := range opts {
		opt(m)
	}

	var errs []error
	if name == "" {
		errs = append(errs, errors.New("venue name cannot be empty"))
	} else if err := sdktypes.ValidateDenom(m.ShareDenom()); err != nil {
		errs = append(errs, fmt.Errorf("venue name %q: %w", name, err))
	}
	if bank == nil {
		errs = append(errs, errors.New("bank cannot be nil"))
	}
	if err := m.assets.Validate(); err != nil {
		errs = append(errs, err)
	}
	if m.inner != nil {
		p := m.inner.Policy()
		if !p.AtomicDeposit || !p.AtomicWithdrawal {
			errs = append(errs, fmt.Errorf("inner venue %s must settle atomically", m.inner.name))
		}
		if !m.inner.assets.Equal(m.assets) {
			errs = append(errs, fmt.Errorf("inner venue %s accepts %v, not %v", m.inner.name, m.inner.assets, m.assets))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, errors.Join(ErrInvalidVenue, err)
	}

	m.logger = logger.GetForComponent("venue_simulator").With().Str("venue", name).Logger()
	return m, nil
}

// Adapter returns the venue as the engine sees it: with a readable price unless manual pricing
// was requested.
func (m *Market) Adapter() strategy.Adapter {
	if m.manualPricing {
		return m
	}
	return &pricedMarket{Market: m}
}

type pricedMarket struct {
	*Market
}

func (p *pricedMarket) CurrentPrice(ctx context.Context) (sdkmath.LegacyDec, error) {
	return p.Price(ctx)
}

func (m *Market) Venue() string           { return m.name }
func (m *Market) Policy() strategy.Policy { return m.policy }

// ShareDenom is the denomination the venue's native units carry when held by an outer layer.
func (m *Market) ShareDenom() string { return "share/" + m.name }

func (m *Market) poolAccount() string      { return m.name + "/pool" }
func (m *Market) depositsAccount() string  { return m.name + "/deposits" }
func (m *Market) unbondingAccount() string { return m.name + "/unbonding" }

// InvestCalls counts Invest calls, including failed ones.
func (m *Market) InvestCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.investCalls
}

func (m *Market) Invest(ctx context.Context, holder string, amounts sdktypes.Coins, params types.OperationParams) (strategy.InvestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.investCalls++

	if amounts.Empty() || !amounts.IsAllPositive() {
		return strategy.InvestResult{}, fmt.Errorf("%w: investing %s", ErrInvalidCoins, amounts)
	}
	for _, c := range amounts {
		if !m.assets.Contains(c.Denom) {
			return strategy.InvestResult{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, c.Denom)
		}
	}

	if !m.policy.AtomicDeposit {
		if err := m.bank.Send(ctx, holder, m.depositsAccount(), amounts); err != nil {
			return strategy.InvestResult{}, err
		}
		readyAt := m.clock().Add(m.depositDelay)
		id := m.openTicket(ticket{holder: holder, kind: types.OperationDeposit, assets: amounts, native: sdkmath.ZeroInt(), readyAt: readyAt})
		m.logger.Debug().Str("ticket", id).Str("assets", amounts.String()).Time("readyAt", readyAt).Msg("Deposit queued")
		return strategy.InvestResult{
			Finished: false,
			Continuation: types.Continuation{
				Venue:   m.name,
				Step:    "deposit_queued",
				Ticket:  id,
				Amount:  sdkmath.ZeroInt(),
				Assets:  amounts,
				ReadyAt: readyAt,
			},
		}, nil
	}

	minted, err := m.stakeAndMint(ctx, holder, holder, amounts)
	if err != nil {
		return strategy.InvestResult{}, err
	}
	if err := checkMinOut(paramsOf(params), minted); err != nil {
		return strategy.InvestResult{}, err
	}
	return strategy.InvestResult{Finished: true}, nil
}

func (m *Market) ContinueInvest(ctx context.Context, holder string, cont types.Continuation, params types.OperationParams) (strategy.InvestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.ticketFor(cont.Ticket, holder, types.OperationDeposit)
	if err != nil {
		return strategy.InvestResult{}, err
	}
	if m.clock().Before(t.readyAt) {
		return strategy.InvestResult{Finished: false, Continuation: cont}, nil
	}

	minted, err := m.stakeAndMint(ctx, m.depositsAccount(), holder, t.assets)
	if err != nil {
		return strategy.InvestResult{}, err
	}
	if err := checkMinOut(paramsOf(params), minted); err != nil {
		return strategy.InvestResult{}, err
	}
	delete(m.tickets, cont.Ticket)
	return strategy.InvestResult{Finished: true}, nil
}

func (m *Market) Divest(ctx context.Context, holder string, position sdkmath.Int, params types.OperationParams) (strategy.DivestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkPosition(holder, position); err != nil {
		return strategy.DivestResult{}, err
	}

	if m.policy.AtomicWithdrawal {
		out, err := m.unstake(ctx, position, holder)
		if err != nil {
			return strategy.DivestResult{}, err
		}
		m.burnNative(holder, position)
		if err := checkMinOut(paramsOf(params), sumCoins(out)); err != nil {
			return strategy.DivestResult{}, err
		}
		return strategy.DivestResult{Assets: out, Finished: true}, nil
	}

	readyAt := m.clock().Add(m.withdrawalDelay)
	t := ticket{holder: holder, kind: types.OperationWithdrawal, native: position, readyAt: readyAt}
	step := "withdrawal_requested"
	if m.policy.DeductSharesOnInit {
		out, err := m.unstake(ctx, position, m.unbondingAccount())
		if err != nil {
			return strategy.DivestResult{}, err
		}
		m.burnNative(holder, position)
		t.assets = out
		step = "unbonding"
	}
	id := m.openTicket(t)
	m.logger.Debug().Str("ticket", id).Str("position", position.String()).Time("readyAt", readyAt).Msg("Withdrawal queued")
	return strategy.DivestResult{
		Finished: false,
		Continuation: types.Continuation{
			Venue:   m.name,
			Step:    step,
			Ticket:  id,
			Amount:  position,
			Assets:  t.assets,
			ReadyAt: readyAt,
		},
	}, nil
}

// ContinueDivest settles a queued withdrawal once its cooldown passed. Without share deduction
// at initialization the position leaving is cont.Amount, as recomputed by the caller.
func (m *Market) ContinueDivest(ctx context.Context, holder string, cont types.Continuation, params types.OperationParams) (strategy.DivestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.ticketFor(cont.Ticket, holder, types.OperationWithdrawal)
	if err != nil {
		return strategy.DivestResult{}, err
	}
	if m.clock().Before(t.readyAt) {
		return strategy.DivestResult{Finished: false, Continuation: cont}, nil
	}

	var out sdktypes.Coins
	if m.policy.DeductSharesOnInit {
		if err := m.bank.Send(ctx, m.unbondingAccount(), holder, t.assets); err != nil {
			return strategy.DivestResult{}, err
		}
		out = t.assets
	} else {
		amount := cont.Amount
		if amount.IsNil() {
			amount = t.native
		}
		if err := m.checkPosition(holder, amount); err != nil {
			return strategy.DivestResult{}, err
		}
		out, err = m.unstake(ctx, amount, holder)
		if err != nil {
			return strategy.DivestResult{}, err
		}
		m.burnNative(holder, amount)
	}
	if err := checkMinOut(paramsOf(params), sumCoins(out)); err != nil {
		return strategy.DivestResult{}, err
	}
	delete(m.tickets, cont.Ticket)
	return strategy.DivestResult{Assets: out, Finished: true}, nil
}

func (m *Market) ClaimRewards(_ context.Context, holder string, _ types.OperationParams) (sdktypes.Coins, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.rewards[holder]
	if r.Empty() {
		return sdktypes.NewCoins(), nil
	}
	if err := m.bank.Mint(holder, r); err != nil {
		return nil, err
	}
	delete(m.rewards, holder)
	return r, nil
}

func (m *Market) PendingRewards(_ context.Context, holder string) (sdktypes.Coins, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sdktypes.NewCoins(m.rewards[holder]...), nil
}

// AddRewards makes coins claimable by holder.
func (m *Market) AddRewards(holder string, coins sdktypes.Coins) error {
	if err := coins.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCoins, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards[holder] = m.rewards[holder].Add(coins...)
	return nil
}

func (m *Market) NativeBalance(_ context.Context, holder string) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nativeOf(holder), nil
}

func (m *Market) PositionAssets(ctx context.Context, position sdkmath.Int) (sdktypes.Coins, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionAssets(ctx, position)
}

func (m *Market) positionAssets(ctx context.Context, position sdkmath.Int) (sdktypes.Coins, error) {
	if position.IsNil() || position.IsZero() || m.totalNative.IsZero() {
		return sdktypes.NewCoins(), nil
	}
	if position.IsNegative() || position.GT(m.totalNative) {
		return nil, fmt.Errorf("%w: %s of %s issued", ErrInsufficientPosition, position, m.totalNative)
	}

	own := strategy.ConverterFunc(func(ctx context.Context, amount sdkmath.Int) (sdktypes.Coins, error) {
		if m.inner != nil {
			held, err := m.inner.NativeBalance(ctx, m.poolAccount())
			if err != nil {
				return nil, err
			}
			return sdktypes.NewCoins(sdktypes.NewCoin(m.inner.ShareDenom(), held.Mul(amount).Quo(m.totalNative))), nil
		}
		pool, err := m.bank.Balance(ctx, m.poolAccount())
		if err != nil {
			return nil, err
		}
		return proportional(pool, amount, m.totalNative), nil
	})
	chain := strategy.ConversionChain{own}
	if m.inner != nil {
		chain = append(chain, strategy.ConverterFunc(m.inner.PositionAssets))
	}
	return chain.Convert(ctx, position)
}

// Price is the value of one native unit in base units of the underlying assets.
func (m *Market) Price(ctx context.Context) (sdkmath.LegacyDec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalNative.IsZero() {
		return sdkmath.LegacyOneDec(), nil
	}
	assets, err := m.positionAssets(ctx, m.totalNative)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return sdkmath.LegacyNewDecFromInt(sumCoins(assets)).QuoInt(m.totalNative), nil
}

// EmergencyWithdraw pays holder everything it has at the venue: queued deposits, unbonding
// withdrawals and the remaining position.
func (m *Market) EmergencyWithdraw(ctx context.Context, holder string, _ types.OperationParams) (sdktypes.Coins, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := sdktypes.NewCoins()
	ids := make([]string, 0, len(m.tickets))
	for id, t := range m.tickets {
		if t.holder == holder {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := m.tickets[id]
		switch {
		case t.kind == types.OperationDeposit:
			if err := m.bank.Send(ctx, m.depositsAccount(), holder, t.assets); err != nil {
				return nil, err
			}
			out = out.Add(t.assets...)
		case !t.assets.Empty():
			if err := m.bank.Send(ctx, m.unbondingAccount(), holder, t.assets); err != nil {
				return nil, err
			}
			out = out.Add(t.assets...)
		}
		delete(m.tickets, id)
	}

	if position := m.nativeOf(holder); position.IsPositive() {
		got, err := m.unstake(ctx, position, holder)
		if err != nil {
			return nil, err
		}
		m.burnNative(holder, position)
		out = out.Add(got...)
	}

	m.logger.Warn().Str("holder", holder).Str("assets", out.String()).Msg("Emergency withdrawal executed")
	return out, nil
}

// --- Simulation controls ---

// Accrue adds coins to the pool, raising the price of every native unit.
func (m *Market) Accrue(_ context.Context, coins sdktypes.Coins) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inner != nil {
		return fmt.Errorf("%w: accrue on inner venue %s instead", ErrInvalidVenue, m.inner.name)
	}
	for _, c := range coins {
		if !m.assets.Contains(c.Denom) {
			return fmt.Errorf("%w: %s", ErrUnsupportedAsset, c.Denom)
		}
	}
	return m.bank.Mint(m.poolAccount(), coins)
}

// Lose removes coins from the pool, lowering the price of every native unit.
func (m *Market) Lose(_ context.Context, coins sdktypes.Coins) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inner != nil {
		return fmt.Errorf("%w: lose on inner venue %s instead", ErrInvalidVenue, m.inner.name)
	}
	return m.bank.Burn(m.poolAccount(), coins)
}

// Tick applies one period of configured growth and reward emission.
func (m *Market) Tick(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.growthBps > 0 && m.inner == nil {
		pool, err := m.bank.Balance(ctx, m.poolAccount())
		if err != nil {
			return err
		}
		growth := proportional(pool, sdkmath.NewInt(int64(m.growthBps)), sdkmath.NewInt(strategy.FullPercent))
		if !growth.Empty() {
			if err := m.bank.Mint(m.poolAccount(), growth); err != nil {
				return err
			}
		}
	}
	if !m.emission.Empty() && m.totalNative.IsPositive() {
		for holder, n := range m.native {
			share := proportional(m.emission, n, m.totalNative)
			if !share.Empty() {
				m.rewards[holder] = m.rewards[holder].Add(share...)
			}
		}
	}
	return nil
}

// DecodeParams builds Params from their JSON form.
func (m *Market) DecodeParams(raw json.RawMessage) (types.OperationParams, error) {
	var p Params
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding %s params: %w", m.name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Checkpoint returns a function restoring the venue (and any inner venue) to its current state.
// The venue belongs to one strategy, whose lock serializes it with Tick.
func (m *Market) Checkpoint(ctx context.Context) (context.Context, func()) {
	m.mu.Lock()
	native := make(map[string]sdkmath.Int, len(m.native))
	for k, n := range m.native {
		native[k] = n
	}
	rewards := make(map[string]sdktypes.Coins, len(m.rewards))
	for k, r := range m.rewards {
		rewards[k] = sdktypes.NewCoins(r...)
	}
	tickets := make(map[string]ticket, len(m.tickets))
	for k, t := range m.tickets {
		tickets[k] = t
	}
	totalNative := m.totalNative
	nextTicket := m.nextTicket
	m.mu.Unlock()

	var innerRollback func()
	if m.inner != nil {
		ctx, innerRollback = m.inner.Checkpoint(ctx)
	}

	return ctx, func() {
		m.mu.Lock()
		m.native = native
		m.rewards = rewards
		m.tickets = tickets
		m.totalNative = totalNative
		m.nextTicket = nextTicket
		m.mu.Unlock()
		if innerRollback != nil {
			innerRollback()
		}
	}
}

// --- internals; callers hold m.mu ---

func (m *Market) nativeOf(holder string) sdkmath.Int {
	if n, ok := m.native[holder]; ok {
		return n
	}
	return sdkmath.ZeroInt()
}

func (m *Market) checkPosition(holder string, position sdkmath.Int) error {
	if position.IsNil() || !position.IsPositive() {
		return fmt.Errorf("%w: divesting %v", ErrInsufficientPosition, position)
	}
	if held := m.nativeOf(holder); held.LT(position) {
		return fmt.Errorf("%w: %s holds %s, divesting %s", ErrInsufficientPosition, holder, held, position)
	}
	return nil
}

// holdingUnits is the pool's size in the unit native units are issued against.
func (m *Market) holdingUnits(ctx context.Context) (sdkmath.Int, error) {
	if m.inner != nil {
		return m.inner.NativeBalance(ctx, m.poolAccount())
	}
	pool, err := m.bank.Balance(ctx, m.poolAccount())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sumCoins(pool), nil
}

// stakeAndMint moves coins from source into the pool and issues native units to holder.
func (m *Market) stakeAndMint(ctx context.Context, source, holder string, coins sdktypes.Coins) (sdkmath.Int, error) {
	unitsBefore, err := m.holdingUnits(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := m.bank.Send(ctx, source, m.poolAccount(), coins); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if m.inner != nil {
		if _, err := m.inner.Invest(ctx, m.poolAccount(), coins, types.NoParams{}); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("inner venue %s: %w", m.inner.name, err)
		}
	}
	unitsAfter, err := m.holdingUnits(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	added := unitsAfter.Sub(unitsBefore)

	minted := added
	if m.totalNative.IsPositive() && unitsBefore.IsPositive() {
		minted = added.Mul(m.totalNative).Quo(unitsBefore)
	}
	if !minted.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit of %s mints nothing", ErrInsufficientPosition, coins)
	}
	m.native[holder] = m.nativeOf(holder).Add(minted)
	m.totalNative = m.totalNative.Add(minted)
	return minted, nil
}

// unstake pays the pool's share for position native units to recipient. It does not burn.
func (m *Market) unstake(ctx context.Context, position sdkmath.Int, recipient string) (sdktypes.Coins, error) {
	if m.totalNative.IsZero() {
		return sdktypes.NewCoins(), nil
	}
	if m.inner != nil {
		held, err := m.inner.NativeBalance(ctx, m.poolAccount())
		if err != nil {
			return nil, err
		}
		innerPosition := held.Mul(position).Quo(m.totalNative)
		if innerPosition.IsZero() {
			return sdktypes.NewCoins(), nil
		}
		before, err := m.bank.Balance(ctx, m.poolAccount())
		if err != nil {
			return nil, err
		}
		if _, err := m.inner.Divest(ctx, m.poolAccount(), innerPosition, types.NoParams{}); err != nil {
			return nil, fmt.Errorf("inner venue %s: %w", m.inner.name, err)
		}
		after, err := m.bank.Balance(ctx, m.poolAccount())
		if err != nil {
			return nil, err
		}
		out := received(before, after)
		if err := m.bank.Send(ctx, m.poolAccount(), recipient, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	pool, err := m.bank.Balance(ctx, m.poolAccount())
	if err != nil {
		return nil, err
	}
	out := proportional(pool, position, m.totalNative)
	if err := m.bank.Send(ctx, m.poolAccount(), recipient, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Market) burnNative(holder string, amount sdkmath.Int) {
	left := m.nativeOf(holder).Sub(amount)
	if left.IsZero() {
		delete(m.native, holder)
	} else {
		m.native[holder] = left
	}
	m.totalNative = m.totalNative.Sub(amount)
}

func (m *Market) openTicket(t ticket) string {
	m.nextTicket++
	id := fmt.Sprintf("%s-%d", m.name, m.nextTicket)
	m.tickets[id] = t
	return id
}

func (m *Market) ticketFor(id, holder string, kind types.OperationKind) (ticket, error) {
	t, ok := m.tickets[id]
	if !ok || t.holder != holder || t.kind != kind {
		return ticket{}, fmt.Errorf("%w: %s %s for %s", ErrUnknownTicket, kind, id, holder)
	}
	return t, nil
}

// --- helpers ---

// proportional returns coins * num / den per denomination, dropping zeros.
func proportional(coins sdktypes.Coins, num, den sdkmath.Int) sdktypes.Coins {
	out := sdktypes.NewCoins()
	if den.IsZero() {
		return out
	}
	for _, c := range coins {
		amount := c.Amount.Mul(num).Quo(den)
		if amount.IsPositive() {
			out = out.Add(sdktypes.NewCoin(c.Denom, amount))
		}
	}
	return out
}

func sumCoins(coins sdktypes.Coins) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, c := range coins {
		total = total.Add(c.Amount)
	}
	return total
}

func received(before, after sdktypes.Coins) sdktypes.Coins {
	out := sdktypes.NewCoins()
	for _, c := range after {
		delta := c.Amount.Sub(before.AmountOf(c.Denom))
		if delta.IsPositive() {
			out = out.Add(sdktypes.NewCoin(c.Denom, delta))
		}
	}
	return out
}
