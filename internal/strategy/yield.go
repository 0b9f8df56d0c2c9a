package strategy

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/strategyvault/internal/types"
)

// GetYieldPercentage realizes the yield since the last call, in YieldFullPercent units.
//
// Venues with a synchronous price compare the current price against the reference price and then
// move the reference forward, so a second call in the same period returns zero. Any override is
// ignored for them. Other venues need manualOverride, which must lie within the configured limits;
// without it the yield is zero.
//
// Positive yield accrues performance fee shares to the fee recipient.
func (s *Strategy) GetYieldPercentage(ctx context.Context, manualOverride *sdkmath.Int) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	yield := sdkmath.ZeroInt()
	_, err := s.commit(ctx, types.OpYield, s.owner, func(ctx context.Context) (types.OperationReceipt, error) {
		var err error
		yield, err = s.measureYield(ctx, manualOverride)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		feeShares, err := s.accrueFee(yield)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		return types.OperationReceipt{Finished: true, Yield: yield, Shares: feeShares}, nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return yield, nil
}

func (s *Strategy) measureYield(ctx context.Context, manualOverride *sdkmath.Int) (sdkmath.Int, error) {
	reader, ok := s.adapter.(PriceReader)
	if !ok {
		if manualOverride == nil || manualOverride.IsNil() {
			return sdkmath.ZeroInt(), nil
		}
		return s.checkManualYield(*manualOverride)
	}

	current, err := reader.CurrentPrice(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("reading price from %s: %w", s.adapter.Venue(), err)
	}
	if current.IsNil() || !current.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s reported price %v", ErrAdapterContract, s.adapter.Venue(), current)
	}

	reference := s.referencePrice
	s.referencePrice = current
	if reference.IsNil() || !reference.IsPositive() {
		s.logger.Warn().Str("price", current.String()).Msg("No reference price recorded, using current price as baseline")
		return sdkmath.ZeroInt(), nil
	}
	return YieldBetween(reference, current), nil
}

func (s *Strategy) checkManualYield(y sdkmath.Int) (sdkmath.Int, error) {
	if y.GT(s.positiveYieldLimit) {
		return sdkmath.ZeroInt(), &ManualYieldError{Err: ErrManualYieldTooBig, Yield: y, Limit: s.positiveYieldLimit}
	}
	if y.LT(s.negativeYieldLimit) {
		return sdkmath.ZeroInt(), &ManualYieldError{Err: ErrManualYieldTooSmall, Yield: y, Limit: s.negativeYieldLimit}
	}
	return y, nil
}

// YieldBetween returns (current - reference) * YieldFullPercent / reference, truncated toward zero.
func YieldBetween(reference, current sdkmath.LegacyDec) sdkmath.Int {
	return current.Sub(reference).MulInt(YieldFullPercent).Quo(reference).TruncateInt()
}

// accrueFee mints the fee recipient enough shares to own p of the yield:
// feeShares = S*Y*p / ((YF+Y)*FP - Y*p).
func (s *Strategy) accrueFee(yield sdkmath.Int) (sdkmath.Int, error) {
	supply := s.ledger.TotalSupply()
	if s.performanceFeeBps == 0 || !yield.IsPositive() || !supply.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	fee := sdkmath.NewInt(int64(s.performanceFeeBps))
	full := sdkmath.NewInt(FullPercent)

	num := supply.Mul(yield).Mul(fee)
	den := YieldFullPercent.Add(yield).Mul(full).Sub(yield.Mul(fee))
	feeShares := num.Quo(den)
	if feeShares.IsZero() {
		return feeShares, nil
	}
	if err := s.ledger.Mint(s.feeRecipient, feeShares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.logger.Info().
		Str("yield", yield.String()).
		Str("feeShares", feeShares.String()).
		Str("recipient", s.feeRecipient).
		Msg("Performance fee accrued")
	return feeShares, nil
}
