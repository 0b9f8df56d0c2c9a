// Package strategy is the settlement and accounting engine every venue adapter plugs into.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/strategyvault/internal/ledger"
	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/types"
)

const (
	// FullPercent is 100% in basis points; fees are expressed against it.
	FullPercent = 100_00
	// YieldFullPercentInt is 100% in the fixed-point unit yields are reported in.
	YieldFullPercentInt = 1_000_000_000_000
)

// YieldFullPercent is YieldFullPercentInt as a math.Int.
var YieldFullPercent = sdkmath.NewInt(YieldFullPercentInt)

// Config holds everything needed to construct a Strategy.
type Config struct {
	ID         string
	Address    string // account holding the strategy's idle assets and venue position
	Owner      string // bookkeeping layer allowed to mint and to trigger emergency exits
	AssetGroup types.AssetGroup

	Adapter    Adapter
	PriceFeed  PriceFeed
	SwapRouter SwapRouter // optional when the strategy never compounds
	Bank       Bank
	Store      Store // optional

	// Bounds for manual yield attestation, in YieldFullPercent units. NegativeYieldLimit is <= 0.
	PositiveYieldLimit sdkmath.Int
	NegativeYieldLimit sdkmath.Int

	PerformanceFeeBps uint32 // charged on realized positive yield, against FullPercent
	FeeRecipient      string

	Clock func() time.Time
}

// Strategy is one (venue, asset group) pairing. Mutations are serialized by mu; reads may run
// concurrently.
type Strategy struct {
	mu sync.RWMutex

	id         string
	address    string
	owner      string
	assetGroup types.AssetGroup
	policy     Policy

	adapter   Adapter
	settler   Settler
	priceFeed PriceFeed
	router    SwapRouter
	bank      Bank
	store     Store

	positiveYieldLimit sdkmath.Int
	negativeYieldLimit sdkmath.Int
	performanceFeeBps  uint32
	feeRecipient       string
	clock              func() time.Time

	ledger         *ledger.Ledger
	referencePrice sdkmath.LegacyDec
	pending        map[string]types.PendingOperation

	logger zerolog.Logger
}

// New creates a strategy with an empty ledger. For venues with synchronous pricing the
// reference price is read from the adapter.
func New(ctx context.Context, cfg Config) (*Strategy, error) {
	s, err := build(cfg)
	if err != nil {
		return nil, err
	}

	if reader, ok := s.adapter.(PriceReader); ok {
		price, err := reader.CurrentPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading initial price from %s: %w", s.adapter.Venue(), err)
		}
		s.referencePrice = price
	}

	s.logger.Info().
		Str("venue", s.adapter.Venue()).
		Strs("assetGroup", s.assetGroup).
		Bool("atomicDeposit", s.policy.AtomicDeposit).
		Bool("atomicWithdrawal", s.policy.AtomicWithdrawal).
		Str("referencePrice", s.referencePrice.String()).
		Msg("Strategy initialized")
	return s, nil
}

// Restore rebuilds a strategy from a persisted snapshot.
func Restore(cfg Config, state types.StrategyState) (*Strategy, error) {
	if state.StrategyID != cfg.ID {
		return nil, fmt.Errorf("%w: snapshot belongs to %s, not %s", ErrInvalidConfig, state.StrategyID, cfg.ID)
	}
	if !cfg.AssetGroup.Equal(state.AssetGroup) {
		return nil, fmt.Errorf("%w: snapshot asset group %v differs from %v", ErrInvalidAssetGroup, state.AssetGroup, cfg.AssetGroup)
	}

	s, err := build(cfg)
	if err != nil {
		return nil, err
	}

	l, err := ledger.FromBalances(state.Balances)
	if err != nil {
		return nil, err
	}
	if !state.TotalSupply.IsNil() && !l.TotalSupply().Equal(state.TotalSupply) {
		return nil, fmt.Errorf("%w: snapshot total supply %s does not match balances %s", ErrInvalidConfig, state.TotalSupply, l.TotalSupply())
	}
	s.ledger = l
	if !state.ReferencePrice.IsNil() {
		s.referencePrice = state.ReferencePrice
	}
	for _, p := range state.Pending {
		s.pending[types.PendingKey(p.Party, p.Kind)] = p
	}

	s.logger.Info().
		Str("totalSupply", l.TotalSupply().String()).
		Int("pending", len(state.Pending)).
		Msg("Strategy restored from snapshot")
	return s, nil
}

func build(cfg Config) (*Strategy, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	policy := cfg.Adapter.Policy()
	settler, _ := cfg.Adapter.(Settler)
	if (!policy.AtomicDeposit || !policy.AtomicWithdrawal) && settler == nil {
		return nil, fmt.Errorf("%w: %s declares non-atomic settlement but cannot continue operations", ErrInvalidConfig, cfg.Adapter.Venue())
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	positive := cfg.PositiveYieldLimit
	if positive.IsNil() {
		positive = sdkmath.ZeroInt()
	}
	negative := cfg.NegativeYieldLimit
	if negative.IsNil() {
		negative = sdkmath.ZeroInt()
	}

	return &Strategy{
		id:                 cfg.ID,
		address:            cfg.Address,
		owner:              cfg.Owner,
		assetGroup:         append(types.AssetGroup(nil), cfg.AssetGroup...),
		policy:             policy,
		adapter:            cfg.Adapter,
		settler:            settler,
		priceFeed:          cfg.PriceFeed,
		router:             cfg.SwapRouter,
		bank:               cfg.Bank,
		store:              cfg.Store,
		positiveYieldLimit: positive,
		negativeYieldLimit: negative,
		performanceFeeBps:  cfg.PerformanceFeeBps,
		feeRecipient:       cfg.FeeRecipient,
		clock:              clock,
		ledger:             ledger.New(),
		referencePrice:     sdkmath.LegacyZeroDec(),
		pending:            make(map[string]types.PendingOperation),
		logger:             logger.GetForComponent("strategy").With().Str("strategy_id", cfg.ID).Logger(),
	}, nil
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.ID == "" {
		errs = append(errs, errors.New("strategy ID cannot be empty"))
	}
	if cfg.Address == "" {
		errs = append(errs, errors.New("strategy address cannot be empty"))
	}
	if cfg.Owner == "" {
		errs = append(errs, errors.New("owner cannot be empty"))
	}
	if err := cfg.AssetGroup.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Adapter == nil {
		errs = append(errs, errors.New("adapter cannot be nil"))
	}
	if cfg.PriceFeed == nil {
		errs = append(errs, errors.New("price feed cannot be nil"))
	}
	if cfg.Bank == nil {
		errs = append(errs, errors.New("bank cannot be nil"))
	}
	if !cfg.PositiveYieldLimit.IsNil() && cfg.PositiveYieldLimit.IsNegative() {
		errs = append(errs, errors.New("positive yield limit cannot be negative"))
	}
	if !cfg.NegativeYieldLimit.IsNil() && cfg.NegativeYieldLimit.IsPositive() {
		errs = append(errs, errors.New("negative yield limit cannot be positive"))
	}
	if cfg.PerformanceFeeBps >= FullPercent {
		errs = append(errs, fmt.Errorf("performance fee %d must be below %d", cfg.PerformanceFeeBps, FullPercent))
	}
	if cfg.PerformanceFeeBps > 0 && cfg.FeeRecipient == "" {
		errs = append(errs, errors.New("fee recipient required when a performance fee is set"))
	}
	return errors.Join(errs...)
}

func (s *Strategy) ID() string                   { return s.id }
func (s *Strategy) Address() string              { return s.address }
func (s *Strategy) Owner() string                { return s.owner }
func (s *Strategy) Policy() Policy               { return s.policy }
func (s *Strategy) Venue() string                { return s.adapter.Venue() }
func (s *Strategy) Adapter() Adapter             { return s.adapter }
func (s *Strategy) AssetGroup() types.AssetGroup { return append(types.AssetGroup(nil), s.assetGroup...) }

// TotalSupply returns the number of shares in existence.
func (s *Strategy) TotalSupply() sdkmath.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.TotalSupply()
}

// BalanceOf returns holder's shares.
func (s *Strategy) BalanceOf(holder string) sdkmath.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.BalanceOf(holder)
}

// ReferencePrice is the baseline the next yield measurement compares against.
func (s *Strategy) ReferencePrice() sdkmath.LegacyDec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referencePrice
}

// Pending returns party's pending operation of the given kind.
func (s *Strategy) Pending(party string, kind types.OperationKind) (types.PendingOperation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[types.PendingKey(party, kind)]
	return p, ok
}

// State returns a serializable snapshot of the strategy.
func (s *Strategy) State() types.StrategyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Strategy) stateLocked() types.StrategyState {
	pending := make([]types.PendingOperation, 0, len(s.pending))
	for _, p := range s.pending {
		pending = append(pending, p)
	}
	sort.Slice(pending, func(i, j int) bool {
		return types.PendingKey(pending[i].Party, pending[i].Kind) < types.PendingKey(pending[j].Party, pending[j].Kind)
	})
	return types.StrategyState{
		StrategyID:     s.id,
		AssetGroup:     s.AssetGroup(),
		ReferencePrice: s.referencePrice,
		TotalSupply:    s.ledger.TotalSupply(),
		Balances:       s.ledger.Balances(),
		Pending:        pending,
		UpdatedAt:      s.clock(),
	}
}

// NativeBalance is the strategy's position in adapter-native units.
func (s *Strategy) NativeBalance(ctx context.Context) (sdkmath.Int, error) {
	return s.nativeBalance(ctx)
}

func (s *Strategy) nativeBalance(ctx context.Context) (sdkmath.Int, error) {
	bal, err := s.adapter.NativeBalance(ctx, s.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("reading native balance from %s: %w", s.adapter.Venue(), err)
	}
	if bal.IsNil() {
		return sdkmath.ZeroInt(), nil
	}
	return bal, nil
}

// Mint credits shares to holder. Only the owning bookkeeping layer may mint.
func (s *Strategy) Mint(ctx context.Context, caller, holder string, amount sdkmath.Int) error {
	if caller != s.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.commit(ctx, types.OpMint, holder, func(ctx context.Context) (types.OperationReceipt, error) {
		if err := s.ledger.Mint(holder, amount); err != nil {
			return types.OperationReceipt{}, err
		}
		return types.OperationReceipt{Finished: true, Shares: amount}, nil
	})
	return err
}
