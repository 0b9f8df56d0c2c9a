// Package keeper runs the periodic harvest: compound rewards and realize yield for every strategy.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/metrics"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
	"github.com/elys-network/strategyvault/internal/vault"
)

// Keeper drives harvest cycles over a StrategyManager.
type Keeper struct {
	logger   zerolog.Logger
	manager  vault.StrategyManager
	recorder Recorder
	metrics  metrics.Indicators
	party    string
	before   func(ctx context.Context) error
	clock    func() time.Time

	cycleCount int
}

// Config holds the configuration for creating a new Keeper
type Config struct {
	Manager  vault.StrategyManager
	Recorder Recorder           // defaults to an in-memory recorder
	Metrics  metrics.Indicators // defaults to no-op
	Party    string             // identity compounding runs under
	// BeforeCycle runs at the start of every cycle, e.g. to advance simulated venues.
	BeforeCycle func(ctx context.Context) error
	Clock       func() time.Time
}

func New(cfg Config) (*Keeper, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("strategy manager cannot be nil")
	}
	if cfg.Party == "" {
		return nil, fmt.Errorf("keeper party cannot be empty")
	}
	k := &Keeper{
		logger:   logger.GetForComponent("keeper"),
		manager:  cfg.Manager,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		party:    cfg.Party,
		before:   cfg.BeforeCycle,
		clock:    cfg.Clock,
	}
	if k.recorder == nil {
		k.recorder = NewMemoryRecorder()
	}
	if k.metrics == nil {
		k.metrics = metrics.Noop{}
	}
	if k.clock == nil {
		k.clock = time.Now
	}
	return k, nil
}

// RunLoop runs a cycle immediately and then every interval until ctx is cancelled.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().
		Dur("interval", interval).
		Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.RunCycle(ctx)
		}
	}
}

// RunCycle harvests every registered strategy once. A failing strategy is recorded and
// does not stop the others.
func (k *Keeper) RunCycle(ctx context.Context) types.CycleSnapshot {
	start := time.Now()
	k.cycleCount++

	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Logger()

	number, err := k.recorder.NextCycleNumber(ctx)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to advance persistent cycle counter, using local count")
		number = k.cycleCount
	}
	snapshot := types.CycleSnapshot{
		CycleID:          cycleID,
		CycleNumber:      number,
		Timestamp:        k.clock(),
		Results:          make([]types.HarvestResult, 0),
		FailedStrategies: make([]string, 0),
	}
	cycleLogger.Info().Int("cycleNumber", number).Msg("--- Starting keeper cycle ---")

	if k.before != nil {
		if err := k.before(ctx); err != nil {
			cycleLogger.Error().Err(err).Msg("Pre-cycle hook failed")
		}
	}

	var yields []types.YieldRecord
	for _, entry := range k.manager.List() {
		if ctx.Err() != nil {
			cycleLogger.Warn().Msg("Cycle interrupted by context cancellation")
			break
		}
		result, recs := k.harvest(ctx, cycleLogger, entry, number)
		snapshot.Results = append(snapshot.Results, result)
		yields = append(yields, recs...)
		if result.Error != "" {
			snapshot.FailedStrategies = append(snapshot.FailedStrategies, result.StrategyID)
		}
	}

	if err := k.recorder.SaveCycle(ctx, snapshot, yields); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
	}

	outcome := "ok"
	if len(snapshot.FailedStrategies) > 0 {
		outcome = "partial"
	}
	k.metrics.IncrementCycles(outcome)
	k.metrics.ObserveCycleDuration(time.Since(start))

	cycleLogger.Info().
		Int("strategies", len(snapshot.Results)).
		Strs("failed", snapshot.FailedStrategies).
		Str("cycleDuration", time.Since(start).String()).
		Msg("Keeper cycle completed")
	return snapshot
}

// harvest settles a leftover reinvestment, compounds and then realizes yield for one strategy.
func (k *Keeper) harvest(ctx context.Context, log zerolog.Logger, entry *vault.Entry, cycleNumber int) (types.HarvestResult, []types.YieldRecord) {
	s := entry.Strategy
	id := s.ID()
	log = log.With().Str("strategy_id", id).Logger()
	result := types.HarvestResult{
		StrategyID:    id,
		CompoundYield: sdkmath.ZeroInt(),
		Yield:         sdkmath.ZeroInt(),
	}
	var records []types.YieldRecord
	fail := func(step string, err error) (types.HarvestResult, []types.YieldRecord) {
		log.Error().Err(err).Str("step", step).Msg("Harvest step failed")
		result.Error = fmt.Sprintf("%s: %v", step, err)
		result.ReferencePrice = s.ReferencePrice()
		result.TotalSupply = s.TotalSupply()
		return result, records
	}

	compound := true
	if _, ok := s.Pending(k.party, types.OperationDeposit); ok {
		dep, err := k.manager.ContinueDeposit(ctx, id, k.party, nil)
		if err != nil {
			return fail("continue_reinvestment", err)
		}
		// rewards keep accruing at the venue until the previous reinvestment settles
		compound = dep.Finished
	}

	if compound {
		res, err := k.manager.Compound(ctx, id, k.party, nil)
		if err != nil && !errors.Is(err, strategy.ErrPendingOperationExists) {
			return fail("compound", err)
		}
		result.Rewards = res.Rewards
		result.Reinvested = res.Reinvested
		result.Finished = res.Finished
		if !res.Yield.IsNil() {
			result.CompoundYield = res.Yield
		}
		if res.Finished && result.CompoundYield.IsPositive() {
			records = append(records, k.record(s, cycleNumber, types.YieldFromCompound, result.CompoundYield))
			k.metrics.ObserveYield(id, string(types.YieldFromCompound), fraction(result.CompoundYield))
		}
	}

	yield, err := k.manager.RealizeYield(ctx, id, nil)
	if err != nil {
		return fail("yield", err)
	}
	result.Yield = yield
	if _, priced := s.Adapter().(strategy.PriceReader); priced {
		records = append(records, k.record(s, cycleNumber, types.YieldFromPrice, yield))
		k.metrics.ObserveYield(id, string(types.YieldFromPrice), fraction(yield))
	}

	if entry.Rates != nil {
		if worth, err := k.manager.UsdWorth(ctx, id, nil); err != nil {
			log.Warn().Err(err).Msg("Failed to value strategy")
		} else {
			log.Debug().Str("usdWorth", worth.String()).Msg("Strategy valued")
		}
	}

	result.ReferencePrice = s.ReferencePrice()
	result.TotalSupply = s.TotalSupply()
	log.Info().
		Str("rewards", result.Rewards.String()).
		Str("compoundYield", result.CompoundYield.String()).
		Str("yield", result.Yield.String()).
		Msg("Strategy harvested")
	return result, records
}

func (k *Keeper) record(s *strategy.Strategy, cycleNumber int, source types.YieldSource, yield sdkmath.Int) types.YieldRecord {
	return types.YieldRecord{
		StrategyID:     s.ID(),
		CycleNumber:    cycleNumber,
		Source:         source,
		Yield:          yield,
		ReferencePrice: s.ReferencePrice(),
		TotalSupply:    s.TotalSupply(),
		Timestamp:      k.clock(),
	}
}

// fraction converts a yield in YieldFullPercent units to a plain ratio.
func fraction(yield sdkmath.Int) float64 {
	f, err := sdkmath.LegacyNewDecFromInt(yield).QuoInt(strategy.YieldFullPercent).Float64()
	if err != nil {
		return 0
	}
	return f
}
