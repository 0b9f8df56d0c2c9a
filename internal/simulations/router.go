package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/strategy"
	"github.com/elys-network/strategyvault/internal/types"
)

var (
	ErrSwapNotAllowed = errors.New("swap pair not allowlisted")
	ErrZeroSwap       = errors.New("zero-amount swap")
)

// SwapEstimationResult contains the result of a swap simulation
type SwapEstimationResult struct {
	TokenOut sdktypes.Coin
	Rate     sdkmath.LegacyDec
}

// Router swaps at fixed rates between allowlisted pairs. Tokens are taken from the recipient
// and the output is minted to it.
type Router struct {
	mu     sync.Mutex
	name   string
	bank   *Bank
	rates  map[string]sdkmath.LegacyDec // "in>out" -> units of out per unit of in
	swaps  int
	logger zerolog.Logger
}

func NewRouter(name string, bank *Bank) *Router {
	return &Router{
		name:   name,
		bank:   bank,
		rates:  make(map[string]sdkmath.LegacyDec),
		logger: logger.GetForComponent("swap_simulator").With().Str("router", name).Logger(),
	}
}

func pairKey(in, out string) string { return in + ">" + out }

// Allow allowlists the in -> out pair at rate.
func (r *Router) Allow(in, out string, rate sdkmath.LegacyDec) error {
	if rate.IsNil() || !rate.IsPositive() {
		return fmt.Errorf("rate for %s -> %s must be positive", in, out)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[pairKey(in, out)] = rate
	return nil
}

// Swaps counts executed swap legs.
func (r *Router) Swaps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swaps
}

// SimulateSwap estimates a single leg without executing it.
func (r *Router) SimulateSwap(tokenIn sdktypes.Coin, denomOut string) (SwapEstimationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.estimate(tokenIn, denomOut)
}

func (r *Router) estimate(tokenIn sdktypes.Coin, denomOut string) (SwapEstimationResult, error) {
	if !tokenIn.Amount.IsPositive() {
		return SwapEstimationResult{}, fmt.Errorf("%w: %s -> %s", ErrZeroSwap, tokenIn, denomOut)
	}
	rate, ok := r.rates[pairKey(tokenIn.Denom, denomOut)]
	if !ok {
		return SwapEstimationResult{}, fmt.Errorf("%w: %s -> %s", ErrSwapNotAllowed, tokenIn.Denom, denomOut)
	}
	out := rate.MulInt(tokenIn.Amount).TruncateInt()
	return SwapEstimationResult{TokenOut: sdktypes.NewCoin(denomOut, out), Rate: rate}, nil
}

// Swap executes one leg per token, each following the instruction whose TokenIn matches.
func (r *Router) Swap(ctx context.Context, tokens sdktypes.Coins, instructions []types.SwapInstruction, recipient string) (sdktypes.Coins, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outputs := sdktypes.NewCoins()
	for _, token := range tokens {
		ins, ok := instructionFor(instructions, token.Denom)
		if !ok {
			return nil, fmt.Errorf("%w: no instruction for %s", strategy.ErrMissingSwapInstruction, token.Denom)
		}
		est, err := r.estimate(token, ins.TokenOut)
		if err != nil {
			return nil, err
		}
		if !ins.MinAmountOut.IsNil() && est.TokenOut.Amount.LT(ins.MinAmountOut) {
			return nil, fmt.Errorf("%w: %s -> %s gives %s, minimum %s",
				strategy.ErrSlippageExceeded, token, ins.TokenOut, est.TokenOut.Amount, ins.MinAmountOut)
		}

		if err := r.bank.Send(ctx, recipient, r.name+"/reserve", sdktypes.NewCoins(token)); err != nil {
			return nil, err
		}
		if est.TokenOut.Amount.IsPositive() {
			if err := r.bank.mint(ctx, recipient, sdktypes.NewCoins(est.TokenOut)); err != nil {
				return nil, err
			}
			outputs = outputs.Add(est.TokenOut)
		}
		r.swaps++

		r.logger.Info().
			Str("tokenIn", token.String()).
			Str("tokenOut", est.TokenOut.String()).
			Str("rate", est.Rate.String()).
			Msg("Swap executed")
	}
	return outputs, nil
}

func instructionFor(instructions []types.SwapInstruction, denom string) (types.SwapInstruction, bool) {
	for _, ins := range instructions {
		if ins.TokenIn == denom {
			return ins, true
		}
	}
	return types.SwapInstruction{}, false
}
