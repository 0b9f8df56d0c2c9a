package strategy

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/strategyvault/internal/types"
)

// CompoundResult reports one harvest.
type CompoundResult struct {
	OperationID string
	Yield       sdkmath.Int    // position growth in YieldFullPercent units; zero while reinvestment is pending
	Rewards     sdktypes.Coins // claimed from the venue
	Reinvested  sdktypes.Coins // handed back to the venue after swaps
	Finished    bool
}

// Compound claims the venue's rewards, swaps those outside the asset group and reinvests the
// proceeds. Nothing claimed means nothing is swapped or invested. On venues with delayed deposits
// the reinvestment is left pending for party and finished with ContinueDeposit.
func (s *Strategy) Compound(ctx context.Context, party string, instructions []types.SwapInstruction, params types.OperationParams) (CompoundResult, error) {
	if party == "" {
		return CompoundResult{}, ErrInvalidParty
	}
	params, err := validateParams(params)
	if err != nil {
		return CompoundResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result CompoundResult
	receipt, err := s.commit(ctx, types.OpCompound, party, func(ctx context.Context) (types.OperationReceipt, error) {
		key := types.PendingKey(party, types.OperationDeposit)
		if p, ok := s.pending[key]; ok {
			return types.OperationReceipt{}, fmt.Errorf("%w: deposit %s for %s", ErrPendingOperationExists, p.ID, party)
		}

		idleBefore, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		if _, err := s.adapter.ClaimRewards(ctx, s.address, params); err != nil {
			return types.OperationReceipt{}, fmt.Errorf("claiming rewards on %s: %w", s.adapter.Venue(), err)
		}
		idleAfter, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		rewards := received(idleBefore, idleAfter)

		result = CompoundResult{
			Yield:      sdkmath.ZeroInt(),
			Rewards:    rewards,
			Reinvested: sdktypes.NewCoins(),
			Finished:   true,
		}
		if rewards.Empty() {
			s.logger.Debug().Msg("No rewards to compound")
			return types.OperationReceipt{Finished: true}, nil
		}

		proceeds, err := s.swapRewards(ctx, rewards, instructions)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		if proceeds.Empty() {
			return types.OperationReceipt{Finished: true, Assets: rewards}, nil
		}

		before, err := s.nativeBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		dep, err := s.invest(ctx, party, proceeds, params, true)
		if err != nil {
			return types.OperationReceipt{}, err
		}

		result.OperationID = dep.OperationID
		result.Reinvested = proceeds
		result.Finished = dep.Finished
		if dep.Finished && before.IsPositive() {
			result.Yield = dep.PositionDelta.Mul(YieldFullPercent).Quo(before)
		}
		return types.OperationReceipt{
			OperationID:   dep.OperationID,
			Finished:      dep.Finished,
			PositionDelta: dep.PositionDelta,
			Assets:        proceeds,
			Yield:         result.Yield,
		}, nil
	})
	if err != nil {
		return CompoundResult{}, err
	}
	result.OperationID = receipt.OperationID
	return result, nil
}

// swapRewards passes group assets through and swaps everything else into the group. Every
// foreign reward needs an instruction.
func (s *Strategy) swapRewards(ctx context.Context, rewards sdktypes.Coins, instructions []types.SwapInstruction) (sdktypes.Coins, error) {
	proceeds := sdktypes.NewCoins()
	toSwap := sdktypes.NewCoins()
	var plan []types.SwapInstruction

	for _, c := range rewards {
		if s.assetGroup.Contains(c.Denom) {
			proceeds = proceeds.Add(c)
			continue
		}
		ins, ok := findInstruction(instructions, c.Denom)
		if !ok {
			return nil, fmt.Errorf("%w: reward %s", ErrMissingSwapInstruction, c.Denom)
		}
		if !s.assetGroup.Contains(ins.TokenOut) {
			return nil, fmt.Errorf("%w: swap of %s targets %s", ErrInvalidAssetGroup, c.Denom, ins.TokenOut)
		}
		toSwap = toSwap.Add(c)
		plan = append(plan, ins)
	}
	if toSwap.Empty() {
		return proceeds, nil
	}
	if s.router == nil {
		return nil, fmt.Errorf("%w: no swap router for rewards %s", ErrInvalidConfig, toSwap)
	}

	idleBefore, err := s.idleBalance(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.router.Swap(ctx, toSwap, plan, s.address); err != nil {
		return nil, fmt.Errorf("swapping rewards: %w", err)
	}
	idleAfter, err := s.idleBalance(ctx)
	if err != nil {
		return nil, err
	}

	for _, c := range received(idleBefore, idleAfter) {
		if s.assetGroup.Contains(c.Denom) {
			proceeds = proceeds.Add(c)
		}
	}
	return proceeds, nil
}

func findInstruction(instructions []types.SwapInstruction, denom string) (types.SwapInstruction, bool) {
	for _, ins := range instructions {
		if ins.TokenIn == denom {
			return ins, true
		}
	}
	return types.SwapInstruction{}, false
}

// GetProtocolRewards returns what the venue would pay on a claim, without claiming.
func (s *Strategy) GetProtocolRewards(ctx context.Context) ([]string, []sdkmath.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rewards, err := s.adapter.PendingRewards(ctx, s.address)
	if err != nil {
		return nil, nil, fmt.Errorf("reading rewards from %s: %w", s.adapter.Venue(), err)
	}
	assets := make([]string, 0, len(rewards))
	amounts := make([]sdkmath.Int, 0, len(rewards))
	for _, c := range rewards {
		if c.Amount.IsZero() {
			continue
		}
		assets = append(assets, c.Denom)
		amounts = append(amounts, c.Amount)
	}
	return assets, amounts, nil
}
