package main

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/strategyvault/internal/config"
	"github.com/elys-network/strategyvault/internal/lock"
	"github.com/elys-network/strategyvault/internal/metrics"
	"github.com/elys-network/strategyvault/internal/pricefeed"
	"github.com/elys-network/strategyvault/internal/simulations"
	"github.com/elys-network/strategyvault/internal/state"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/vault"
)

// engine is the registry together with the simulated chain it runs against.
type engine struct {
	bank     *simulations.Bank
	router   *simulations.Router
	feed     *pricefeed.Feed
	markets  map[string][]*simulations.Market // by strategy ID
	registry *vault.Registry
}

type engineOptions struct {
	owner   string
	locker  lock.Locker
	metrics metrics.Indicators
	// store persists every committed operation. Nil keeps state in memory only.
	store strategy.Store
	// restore resumes ledgers saved by a previous run.
	restore bool
}

func buildEngine(ctx context.Context, cat *config.Catalogue, opts engineOptions) (*engine, error) {
	bank := simulations.NewBank()
	feed, err := pricefeed.New(cat.Tokens)
	if err != nil {
		return nil, err
	}

	router := simulations.NewRouter(cat.Router, bank)
	for _, r := range cat.Routes {
		rate, err := r.ParsedRate()
		if err != nil {
			return nil, err
		}
		if err := router.Allow(r.TokenIn, r.TokenOut, rate); err != nil {
			return nil, err
		}
	}

	registry, err := vault.NewRegistry(vault.Config{
		Owner:    opts.owner,
		Bank:     bank,
		Locker:   opts.locker,
		Metrics:  opts.metrics,
		LockTTL:  config.LockTTL,
		LockWait: config.LockWait,
	})
	if err != nil {
		return nil, err
	}

	e := &engine{bank: bank, router: router, feed: feed, markets: make(map[string][]*simulations.Market), registry: registry}
	for _, sc := range cat.Strategies {
		if err := e.addStrategy(ctx, sc, opts); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.ID, err)
		}
	}
	return e, nil
}

func (e *engine) addStrategy(ctx context.Context, sc config.StrategyConfig, opts engineOptions) error {
	market, err := e.newMarket(sc)
	if err != nil {
		return err
	}
	positive, negative, err := sc.YieldLimits()
	if err != nil {
		return err
	}
	var rates []sdkmath.Int
	for _, price := range sc.UsdPrices {
		rate, err := pricefeed.RateFromFloat(price)
		if err != nil {
			return err
		}
		rates = append(rates, rate)
	}

	cfg := strategy.Config{
		ID:                 sc.ID,
		Address:            sc.Address,
		Owner:              opts.owner,
		AssetGroup:         sc.AssetGroup,
		Adapter:            market.Adapter(),
		PriceFeed:          e.feed,
		SwapRouter:         e.router,
		Bank:               e.bank,
		Store:              opts.store,
		PositiveYieldLimit: positive,
		NegativeYieldLimit: negative,
		PerformanceFeeBps:  sc.PerformanceFeeBps,
		FeeRecipient:       sc.FeeRecipient,
	}

	var s *strategy.Strategy
	if opts.restore {
		snapshot, loadErr := state.LoadStrategyState(ctx, sc.ID)
		switch {
		case loadErr == nil:
			s, err = strategy.Restore(cfg, snapshot)
		case errors.Is(loadErr, state.ErrStateNotFound):
			log.Info().Str("strategy_id", sc.ID).Msg("No saved state, starting with an empty ledger")
		default:
			return loadErr
		}
	}
	if s == nil && err == nil {
		s, err = strategy.New(ctx, cfg)
	}
	if err != nil {
		return err
	}

	return e.registry.Register(vault.Entry{Strategy: s, Instructions: sc.Swaps, Rates: rates})
}

// newMarket builds the simulated venue of one strategy. Nested venues stake through an inner
// atomic venue that carries the growth.
func (e *engine) newMarket(sc config.StrategyConfig) (*simulations.Market, error) {
	depositDelay, withdrawalDelay, err := sc.Market.Delays()
	if err != nil {
		return nil, err
	}
	emission, err := sc.Market.Emission()
	if err != nil {
		return nil, err
	}

	var opts []simulations.MarketOption
	if depositDelay > 0 {
		opts = append(opts, simulations.WithDelayedDeposits(depositDelay))
	}
	if withdrawalDelay > 0 {
		opts = append(opts, simulations.WithDelayedWithdrawals(withdrawalDelay, sc.Market.DeductOnInit))
	}
	if sc.Market.ManualPricing {
		opts = append(opts, simulations.WithManualPricing())
	}
	if !emission.Empty() {
		opts = append(opts, simulations.WithRewardEmission(emission))
	}

	growth := simulations.WithGrowth(sc.Market.GrowthBps)
	if sc.Market.Nested {
		inner, err := simulations.NewMarket(sc.ID+"-inner", e.bank, sc.AssetGroup, growth)
		if err != nil {
			return nil, err
		}
		e.markets[sc.ID] = append(e.markets[sc.ID], inner)
		opts = append(opts, simulations.WithInner(inner))
	} else {
		opts = append(opts, growth)
	}

	market, err := simulations.NewMarket(sc.ID, e.bank, sc.AssetGroup, opts...)
	if err != nil {
		return nil, err
	}
	e.markets[sc.ID] = append(e.markets[sc.ID], market)
	return market, nil
}

// tick advances every simulated venue by one period. It runs before each keeper cycle. A venue
// is ticked under its strategy's lock so growth never lands inside an operation that may roll back.
func (e *engine) tick(ctx context.Context) error {
	var errs []error
	for _, entry := range e.registry.List() {
		id := entry.Strategy.ID()
		err := e.registry.Exclusive(ctx, id, func() error {
			for _, m := range e.markets[id] {
				if err := m.Tick(ctx); err != nil {
					return fmt.Errorf("ticking %s: %w", m.Venue(), err)
				}
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
