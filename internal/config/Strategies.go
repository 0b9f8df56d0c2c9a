/*

This file contains the strategy catalogue: the tokens, simulated venues, swap routes and strategies
the daemon serves. It is read from a TOML file at STRATEGY_CONFIG_PATH.

*/

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/BurntSushi/toml"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/strategyvault/internal/types"
)

// Catalogue is the decoded strategy file.
type Catalogue struct {
	Tokens     []types.Token    `toml:"tokens"`
	Router     string           `toml:"router"`
	Routes     []RouteConfig    `toml:"routes"`
	Strategies []StrategyConfig `toml:"strategies"`
}

// RouteConfig allowlists one swap pair on the router at a fixed rate.
type RouteConfig struct {
	TokenIn  string `toml:"token_in"`
	TokenOut string `toml:"token_out"`
	Rate     string `toml:"rate"` // decimal, e.g. "0.25"
}

// MarketConfig describes the simulated venue behind a strategy.
type MarketConfig struct {
	DepositDelay    string `toml:"deposit_delay"`    // e.g. "1h"; empty settles deposits atomically
	WithdrawalDelay string `toml:"withdrawal_delay"` // empty settles withdrawals atomically
	DeductOnInit    bool   `toml:"deduct_on_init"`
	ManualPricing   bool   `toml:"manual_pricing"`
	GrowthBps       uint32 `toml:"growth_bps"`      // pool growth per keeper cycle
	RewardEmission  string `toml:"reward_emission"` // coins emitted per keeper cycle, e.g. "100uelys"
	Nested          bool   `toml:"nested"`          // stake through an inner atomic venue
}

// StrategyConfig is one strategy entry.
type StrategyConfig struct {
	ID                 string                  `toml:"id"`
	Address            string                  `toml:"address"`
	AssetGroup         types.AssetGroup        `toml:"asset_group"`
	PositiveYieldLimit string                  `toml:"positive_yield_limit"`
	NegativeYieldLimit string                  `toml:"negative_yield_limit"`
	PerformanceFeeBps  uint32                  `toml:"performance_fee_bps"`
	FeeRecipient       string                  `toml:"fee_recipient"`
	UsdPrices          []float64               `toml:"usd_prices"` // per whole asset, aligned with asset_group
	Market             MarketConfig            `toml:"market"`
	Swaps              []types.SwapInstruction `toml:"swaps"`
}

// LoadCatalogue reads and validates the catalogue at path.
func LoadCatalogue(path string) (*Catalogue, error) {
	var c Catalogue
	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("decoding strategy catalogue %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in strategy catalogue %s: %s", path, strings.Join(keys, ", "))
	}
	if c.Router == "" {
		c.Router = DefaultRouterName
	}
	for i := range c.Strategies {
		if c.Strategies[i].Address == "" {
			c.Strategies[i].Address = "strategy/" + c.Strategies[i].ID
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("tokens", len(c.Tokens)).
		Int("routes", len(c.Routes)).
		Int("strategies", len(c.Strategies)).
		Msg("Strategy catalogue loaded")
	return &c, nil
}

// Validate reports every problem in the catalogue at once.
func (c *Catalogue) Validate() error {
	var errs []error
	known := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if err := sdktypes.ValidateDenom(t.Denom); err != nil {
			errs = append(errs, fmt.Errorf("token %q: %w", t.Symbol, err))
		}
		if t.Decimals < 0 || t.Decimals > 18 {
			errs = append(errs, fmt.Errorf("token %s: decimals %d out of range", t.Denom, t.Decimals))
		}
		known[t.Denom] = true
	}
	for _, r := range c.Routes {
		if _, err := r.ParsedRate(); err != nil {
			errs = append(errs, fmt.Errorf("route %s>%s: %w", r.TokenIn, r.TokenOut, err))
		}
	}

	ids := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.ID == "" {
			errs = append(errs, errors.New("strategy id cannot be empty"))
			continue
		}
		if ids[s.ID] {
			errs = append(errs, fmt.Errorf("strategy %s is defined twice", s.ID))
		}
		ids[s.ID] = true
		if err := s.validate(known, c.Router); err != nil {
			errs = append(errs, fmt.Errorf("strategy %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s StrategyConfig) validate(known map[string]bool, router string) error {
	var errs []error
	if err := s.AssetGroup.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, denom := range s.AssetGroup {
		if !known[denom] {
			errs = append(errs, fmt.Errorf("asset %s has no token entry", denom))
		}
	}
	if _, _, err := s.YieldLimits(); err != nil {
		errs = append(errs, err)
	}
	if s.UsdPrices != nil && len(s.UsdPrices) != len(s.AssetGroup) {
		errs = append(errs, fmt.Errorf("%d usd prices for %d assets", len(s.UsdPrices), len(s.AssetGroup)))
	}
	if _, _, err := s.Market.Delays(); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.Market.Emission(); err != nil {
		errs = append(errs, err)
	}
	for _, in := range s.Swaps {
		if in.Venue != router {
			errs = append(errs, fmt.Errorf("swap %s>%s uses unknown router %q", in.TokenIn, in.TokenOut, in.Venue))
		}
		if !s.AssetGroup.Contains(in.TokenOut) {
			errs = append(errs, fmt.Errorf("swap %s>%s does not end in the asset group", in.TokenIn, in.TokenOut))
		}
	}
	return errors.Join(errs...)
}

// YieldLimits returns the manual yield bounds, defaulting to +/-DefaultYieldLimit.
func (s StrategyConfig) YieldLimits() (positive, negative sdkmath.Int, err error) {
	pos, neg := s.PositiveYieldLimit, s.NegativeYieldLimit
	if pos == "" {
		pos = DefaultYieldLimit
	}
	if neg == "" {
		neg = "-" + DefaultYieldLimit
	}
	positive, ok := sdkmath.NewIntFromString(pos)
	if !ok || positive.IsNegative() {
		return positive, negative, fmt.Errorf("invalid positive yield limit %q", pos)
	}
	negative, ok = sdkmath.NewIntFromString(neg)
	if !ok || negative.IsPositive() {
		return positive, negative, fmt.Errorf("invalid negative yield limit %q", neg)
	}
	return positive, negative, nil
}

// Delays returns the settlement delays. Zero means atomic.
func (m MarketConfig) Delays() (deposit, withdrawal time.Duration, err error) {
	if m.DepositDelay != "" {
		if deposit, err = time.ParseDuration(m.DepositDelay); err != nil {
			return 0, 0, fmt.Errorf("deposit delay: %w", err)
		}
	}
	if m.WithdrawalDelay != "" {
		if withdrawal, err = time.ParseDuration(m.WithdrawalDelay); err != nil {
			return 0, 0, fmt.Errorf("withdrawal delay: %w", err)
		}
	}
	if deposit < 0 || withdrawal < 0 {
		return 0, 0, errors.New("delays cannot be negative")
	}
	return deposit, withdrawal, nil
}

// Emission returns the per-cycle reward emission.
func (m MarketConfig) Emission() (sdktypes.Coins, error) {
	if m.RewardEmission == "" {
		return sdktypes.NewCoins(), nil
	}
	coins, err := sdktypes.ParseCoinsNormalized(m.RewardEmission)
	if err != nil {
		return nil, fmt.Errorf("reward emission: %w", err)
	}
	return coins, nil
}

// ParsedRate returns the route's exchange rate.
func (r RouteConfig) ParsedRate() (sdkmath.LegacyDec, error) {
	rate, err := sdkmath.LegacyNewDecFromStr(r.Rate)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if !rate.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("rate %s must be positive", r.Rate)
	}
	return rate, nil
}
