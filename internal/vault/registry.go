package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/strategyvault/internal/lock"
	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/metrics"
	"github.com/elys-network/strategyvault/internal/pricefeed"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrNotOwner          = errors.New("registry does not own strategy")
	ErrMissingRates      = errors.New("no exchange rates configured")
	ErrUnbackedShares    = errors.New("outstanding shares are not backed by a position")
)

// Entry is one registered strategy and its keeper settings.
type Entry struct {
	Strategy     *strategy.Strategy
	Instructions []types.SwapInstruction // used by Compound
	Rates        []sdkmath.Int           // USD per whole asset, aligned with the asset group
}

// DepositOutcome is what a depositor gets back.
type DepositOutcome struct {
	OperationID   string      `json:"operation_id"`
	Finished      bool        `json:"finished"`
	PositionDelta sdkmath.Int `json:"position_delta"`
	Shares        sdkmath.Int `json:"shares"` // minted to the depositor, zero until settled
}

// WithdrawOutcome is what a redeemer gets back.
type WithdrawOutcome struct {
	OperationID string      `json:"operation_id"`
	Finished    bool        `json:"finished"`
	Shares      sdkmath.Int `json:"shares"`
	Paid        sdk.Coins   `json:"paid"` // transferred to the redeemer, empty until settled
}

// Bank moves assets between accounts.
type Bank interface {
	Send(ctx context.Context, from, to string, coins sdk.Coins) error
}

// Config holds the registry's collaborators.
type Config struct {
	// Owner is the owner identity configured on every registered strategy.
	Owner string
	Bank  Bank
	// Locker defaults to an in-process locker.
	Locker  lock.Locker
	Metrics metrics.Indicators
	LockTTL time.Duration
	// LockWait is how long a caller waits for a busy strategy.
	LockWait time.Duration
}

// Registry implements StrategyManager.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string

	owner    string
	bank     Bank
	locker   lock.Locker
	metrics  metrics.Indicators
	lockTTL  time.Duration
	lockWait time.Duration

	logger zerolog.Logger
}

var _ StrategyManager = (*Registry)(nil)

func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("registry owner cannot be empty")
	}
	if cfg.Bank == nil {
		return nil, fmt.Errorf("bank cannot be nil")
	}
	r := &Registry{
		entries:  make(map[string]*Entry),
		owner:    cfg.Owner,
		bank:     cfg.Bank,
		locker:   cfg.Locker,
		metrics:  cfg.Metrics,
		lockTTL:  cfg.LockTTL,
		lockWait: cfg.LockWait,
		logger:   logger.GetForComponent("strategy_registry"),
	}
	if r.locker == nil {
		r.locker = lock.NewLocal()
	}
	if r.metrics == nil {
		r.metrics = metrics.Noop{}
	}
	if r.lockTTL <= 0 {
		r.lockTTL = 2 * time.Minute
	}
	if r.lockWait <= 0 {
		r.lockWait = 10 * time.Second
	}
	return r, nil
}

// Register adds a strategy. The strategy must be owned by the registry.
func (r *Registry) Register(entry Entry) error {
	s := entry.Strategy
	if s == nil {
		return fmt.Errorf("strategy cannot be nil")
	}
	if s.Owner() != r.owner {
		return fmt.Errorf("%w: %s is owned by %s", ErrNotOwner, s.ID(), s.Owner())
	}
	if entry.Rates != nil && len(entry.Rates) != len(s.AssetGroup()) {
		return fmt.Errorf("%w: %d rates for %d assets", strategy.ErrInvalidAssetGroup, len(entry.Rates), len(s.AssetGroup()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[s.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.ID())
	}
	e := entry
	r.entries[s.ID()] = &e
	r.order = append(r.order, s.ID())
	r.metrics.SetTotalSupply(s.ID(), floatOf(s.TotalSupply()))

	r.logger.Info().
		Str("strategy_id", s.ID()).
		Str("venue", s.Venue()).
		Int("swapInstructions", len(entry.Instructions)).
		Msg("Strategy registered")
	return nil
}

func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return e, nil
}

// run executes fn on strategy id under its lock and records the outcome.
func (r *Registry) run(ctx context.Context, id string, op types.OperationType, fn func(e *Entry) error) error {
	e, err := r.Get(id)
	if err != nil {
		return err
	}

	unlock, err := r.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	start := time.Now()
	err = fn(e)
	r.metrics.ObserveOperation(id, string(op), err, time.Since(start))
	r.metrics.SetTotalSupply(id, floatOf(e.Strategy.TotalSupply()))
	return err
}

// Exclusive runs fn while holding strategy id's lock, so no operation on it is in flight.
func (r *Registry) Exclusive(ctx context.Context, id string, fn func() error) error {
	if _, err := r.Get(id); err != nil {
		return err
	}
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (r *Registry) lock(ctx context.Context, id string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.lockWait)
	defer cancel()
	unlock, err := lock.Wait(waitCtx, r.locker, lock.StrategyKey(id), r.lockTTL, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("locking strategy %s: %w", id, err)
	}
	return unlock, nil
}

func (r *Registry) Deposit(ctx context.Context, id, party string, amounts sdk.Coins, params json.RawMessage) (DepositOutcome, error) {
	var out DepositOutcome
	err := r.run(ctx, id, types.OpDeposit, func(e *Entry) error {
		s := e.Strategy
		p, err := decodeParams(s, params)
		if err != nil {
			return err
		}
		if party == "" {
			return strategy.ErrInvalidParty
		}
		if err := r.checkBacked(ctx, s); err != nil {
			return err
		}
		if err := r.bank.Send(ctx, party, s.Address(), amounts); err != nil {
			return fmt.Errorf("funding deposit: %w", err)
		}

		res, shares, err := s.DepositAndIssue(ctx, r.owner, party, amounts, p, r.pricer(s, party))
		if err == nil {
			out = DepositOutcome{OperationID: res.OperationID, Finished: res.Finished, PositionDelta: res.PositionDelta, Shares: shares}
			return nil
		}

		// the deposit and its shares were rolled back together, so the funds are still here
		if refundErr := r.bank.Send(ctx, s.Address(), party, amounts); refundErr != nil {
			r.logger.Error().Err(refundErr).Str("strategy_id", id).Str("party", party).Msg("Failed to refund rejected deposit")
			return errors.Join(err, refundErr)
		}
		return err
	})
	return out, err
}

func (r *Registry) ContinueDeposit(ctx context.Context, id, party string, params json.RawMessage) (DepositOutcome, error) {
	var out DepositOutcome
	err := r.run(ctx, id, types.OpContinueDeposit, func(e *Entry) error {
		s := e.Strategy
		p, err := decodeParams(s, params)
		if err != nil {
			return err
		}
		res, shares, err := s.ContinueDepositAndIssue(ctx, r.owner, party, p, r.pricer(s, party))
		if err != nil {
			return err
		}
		out = DepositOutcome{OperationID: res.OperationID, Finished: res.Finished, PositionDelta: res.PositionDelta, Shares: shares}
		return nil
	})
	return out, err
}

// checkBacked rejects deposits into a strategy whose outstanding shares are backed by nothing,
// as after an emergency exit. New money would be split with the existing holders.
func (r *Registry) checkBacked(ctx context.Context, s *strategy.Strategy) error {
	native, err := s.NativeBalance(ctx)
	if err != nil {
		return err
	}
	if supply := s.TotalSupply(); supply.IsPositive() && !native.IsPositive() {
		return fmt.Errorf("%w: %s has %s shares and no position", ErrUnbackedShares, s.ID(), supply)
	}
	return nil
}

// pricer prices a settled deposit against the position before it.
func (r *Registry) pricer(s *strategy.Strategy, party string) strategy.IssueFunc {
	return func(delta, before, supply sdkmath.Int) (sdkmath.Int, error) {
		if supply.IsPositive() && !before.IsPositive() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s has %s shares and no position", ErrUnbackedShares, s.ID(), supply)
		}
		shares := delta
		if supply.IsPositive() {
			shares = delta.Mul(supply).Quo(before)
		}
		if !shares.IsPositive() {
			r.logger.Warn().
				Str("strategy_id", s.ID()).
				Str("party", party).
				Str("positionDelta", delta.String()).
				Msg("Deposit too small to mint a share")
		}
		return shares, nil
	}
}

func (r *Registry) Withdraw(ctx context.Context, id, party string, shares sdkmath.Int, params json.RawMessage) (WithdrawOutcome, error) {
	var out WithdrawOutcome
	err := r.run(ctx, id, types.OpWithdrawal, func(e *Entry) error {
		s := e.Strategy
		p, err := decodeParams(s, params)
		if err != nil {
			return err
		}
		res, err := s.Redeem(ctx, party, shares, p)
		if err != nil {
			return err
		}
		out, err = r.payout(ctx, s, party, res)
		return err
	})
	return out, err
}

func (r *Registry) ContinueWithdrawal(ctx context.Context, id, party string, params json.RawMessage) (WithdrawOutcome, error) {
	var out WithdrawOutcome
	err := r.run(ctx, id, types.OpContinueWithdrawal, func(e *Entry) error {
		s := e.Strategy
		p, err := decodeParams(s, params)
		if err != nil {
			return err
		}
		res, err := s.ContinueWithdrawal(ctx, party, p)
		if err != nil {
			return err
		}
		out, err = r.payout(ctx, s, party, res)
		return err
	})
	return out, err
}

func (r *Registry) payout(ctx context.Context, s *strategy.Strategy, party string, res strategy.WithdrawalResult) (WithdrawOutcome, error) {
	out := WithdrawOutcome{OperationID: res.OperationID, Finished: res.Finished, Shares: res.Shares, Paid: sdk.NewCoins()}
	if !res.Finished || res.Assets.Empty() {
		return out, nil
	}
	if err := s.Claim(ctx, r.owner, party, res.Assets); err != nil {
		return out, fmt.Errorf("paying %s to %s: %w", res.Assets, party, err)
	}
	out.Paid = res.Assets
	return out, nil
}

func (r *Registry) Compound(ctx context.Context, id, party string, params json.RawMessage) (strategy.CompoundResult, error) {
	var out strategy.CompoundResult
	err := r.run(ctx, id, types.OpCompound, func(e *Entry) error {
		p, err := decodeParams(e.Strategy, params)
		if err != nil {
			return err
		}
		out, err = e.Strategy.Compound(ctx, party, e.Instructions, p)
		return err
	})
	return out, err
}

func (r *Registry) RealizeYield(ctx context.Context, id string, manualOverride *sdkmath.Int) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := r.run(ctx, id, types.OpYield, func(e *Entry) error {
		var err error
		out, err = e.Strategy.GetYieldPercentage(ctx, manualOverride)
		return err
	})
	return out, err
}

func (r *Registry) UsdWorth(ctx context.Context, id string, rates []sdkmath.Int) (sdkmath.Int, error) {
	e, err := r.Get(id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if rates == nil {
		rates = e.Rates
	}
	if rates == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w for %s", ErrMissingRates, id)
	}
	worth, err := e.Strategy.GetUsdWorth(ctx, rates)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if usd, err := pricefeed.UsdToFloat(worth); err == nil {
		r.metrics.SetUsdWorth(id, usd)
	}
	return worth, nil
}

func (r *Registry) EmergencyWithdraw(ctx context.Context, id, recipient string, params json.RawMessage) (sdk.Coins, error) {
	var out sdk.Coins
	err := r.run(ctx, id, types.OpEmergencyWithdraw, func(e *Entry) error {
		p, err := decodeParams(e.Strategy, params)
		if err != nil {
			return err
		}
		out, err = e.Strategy.EmergencyWithdraw(ctx, r.owner, p, recipient)
		return err
	})
	return out, err
}

// decodeParams builds the adapter's typed params from raw JSON.
func decodeParams(s *strategy.Strategy, raw json.RawMessage) (types.OperationParams, error) {
	decoder, ok := s.Adapter().(strategy.ParamsDecoder)
	if !ok {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s takes no params", strategy.ErrInvalidParams, s.Venue())
	}
	p, err := decoder.DecodeParams(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", strategy.ErrInvalidParams, err)
	}
	return p, nil
}

func floatOf(i sdkmath.Int) float64 {
	f, _ := sdkmath.LegacyNewDecFromInt(i).Float64()
	return f
}
