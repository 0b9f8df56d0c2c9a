package strategy

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"

	"github.com/elys-network/strategyvault/internal/types"
)

// WithdrawalResult reports the outcome of a withdrawal step.
type WithdrawalResult struct {
	OperationID    string
	Finished       bool
	Shares         sdkmath.Int
	NativeAmount   sdkmath.Int    // adapter-native units divested by this step
	Assets         sdktypes.Coins // realized onto the strategy's balance by this step
	SharesDeducted bool
}

// Redeem is the caller-facing name of InitializeWithdrawal.
func (s *Strategy) Redeem(ctx context.Context, party string, shares sdkmath.Int, params types.OperationParams) (WithdrawalResult, error) {
	return s.InitializeWithdrawal(ctx, party, shares, params)
}

// InitializeWithdrawal divests the fraction shares/totalSupply of the position. Realized assets
// stay on the strategy's own balance for the claim layer.
func (s *Strategy) InitializeWithdrawal(ctx context.Context, party string, shares sdkmath.Int, params types.OperationParams) (WithdrawalResult, error) {
	if party == "" {
		return WithdrawalResult{}, ErrInvalidParty
	}
	if shares.IsNil() || !shares.IsPositive() {
		return WithdrawalResult{}, fmt.Errorf("%w: redeeming %v shares", ErrInvalidAmount, shares)
	}
	params, err := validateParams(params)
	if err != nil {
		return WithdrawalResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result WithdrawalResult
	_, err = s.commit(ctx, types.OpWithdrawal, party, func(ctx context.Context) (types.OperationReceipt, error) {
		key := types.PendingKey(party, types.OperationWithdrawal)
		if p, ok := s.pending[key]; ok {
			return types.OperationReceipt{}, fmt.Errorf("%w: withdrawal %s for %s", ErrPendingOperationExists, p.ID, party)
		}
		if balance := s.ledger.BalanceOf(party); balance.LT(shares) {
			return types.OperationReceipt{}, fmt.Errorf("%w: %s holds %s, redeeming %s", ErrInsufficientShares, party, balance, shares)
		}

		native, err := s.proportionalNative(ctx, shares)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		idleBefore, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		res, err := s.adapter.Divest(ctx, s.address, native, params)
		if err != nil {
			return types.OperationReceipt{}, fmt.Errorf("divest on %s: %w", s.adapter.Venue(), err)
		}

		opID := uuid.New().String()
		if res.Finished {
			idleAfter, err := s.idleBalance(ctx)
			if err != nil {
				return types.OperationReceipt{}, err
			}
			if err := s.ledger.Burn(party, shares); err != nil {
				return types.OperationReceipt{}, err
			}
			result = WithdrawalResult{
				OperationID:    opID,
				Finished:       true,
				Shares:         shares,
				NativeAmount:   native,
				Assets:         received(idleBefore, idleAfter),
				SharesDeducted: true,
			}
			return withdrawalReceipt(result), nil
		}
		if s.policy.AtomicWithdrawal {
			return types.OperationReceipt{}, fmt.Errorf("%w: %s left an atomic withdrawal unfinished", ErrAdapterContract, s.adapter.Venue())
		}

		deducted := s.policy.DeductSharesOnInit
		if deducted {
			if err := s.ledger.Burn(party, shares); err != nil {
				return types.OperationReceipt{}, err
			}
		}
		cont := res.Continuation
		if cont.Amount.IsNil() {
			cont.Amount = native
		}
		s.pending[key] = types.PendingOperation{
			ID:             opID,
			Party:          party,
			Kind:           types.OperationWithdrawal,
			Shares:         shares,
			SharesDeducted: deducted,
			Continuation:   cont,
			CreatedAt:      s.clock(),
		}
		result = WithdrawalResult{
			OperationID:    opID,
			Finished:       false,
			Shares:         shares,
			NativeAmount:   native,
			Assets:         sdktypes.NewCoins(),
			SharesDeducted: deducted,
		}
		return withdrawalReceipt(result), nil
	})
	if err != nil {
		return WithdrawalResult{}, err
	}
	return result, nil
}

// ContinueWithdrawal finalizes party's pending withdrawal. When the shares were not deducted
// at initialization the divested amount is recomputed from the live supply and position, since
// other operations may have run in between.
func (s *Strategy) ContinueWithdrawal(ctx context.Context, party string, params types.OperationParams) (WithdrawalResult, error) {
	params, err := validateParams(params)
	if err != nil {
		return WithdrawalResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result WithdrawalResult
	_, err = s.commit(ctx, types.OpContinueWithdrawal, party, func(ctx context.Context) (types.OperationReceipt, error) {
		key := types.PendingKey(party, types.OperationWithdrawal)
		p, ok := s.pending[key]
		if !ok {
			return types.OperationReceipt{}, fmt.Errorf("%w: no withdrawal pending for %s", ErrNoPendingOperation, party)
		}
		if s.settler == nil {
			return types.OperationReceipt{}, fmt.Errorf("%w: %s cannot continue withdrawals", ErrAdapterContract, s.adapter.Venue())
		}

		cont := p.Continuation
		if !p.SharesDeducted {
			if balance := s.ledger.BalanceOf(party); balance.LT(p.Shares) {
				return types.OperationReceipt{}, fmt.Errorf("%w: %s holds %s, pending redemption of %s", ErrInsufficientShares, party, balance, p.Shares)
			}
			native, err := s.proportionalNative(ctx, p.Shares)
			if err != nil {
				return types.OperationReceipt{}, err
			}
			cont.Amount = native
		}

		idleBefore, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		res, err := s.settler.ContinueDivest(ctx, s.address, cont, params)
		if err != nil {
			return types.OperationReceipt{}, fmt.Errorf("continue divest on %s: %w", s.adapter.Venue(), err)
		}
		idleAfter, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}

		result = WithdrawalResult{
			OperationID:    p.ID,
			Finished:       res.Finished,
			Shares:         p.Shares,
			NativeAmount:   cont.Amount,
			Assets:         received(idleBefore, idleAfter),
			SharesDeducted: p.SharesDeducted,
		}
		if !res.Finished {
			p.Continuation = res.Continuation
			s.pending[key] = p
			return withdrawalReceipt(result), nil
		}

		if !p.SharesDeducted {
			if err := s.ledger.Burn(party, p.Shares); err != nil {
				return types.OperationReceipt{}, err
			}
			result.SharesDeducted = true
		}
		delete(s.pending, key)
		return withdrawalReceipt(result), nil
	})
	if err != nil {
		return WithdrawalResult{}, err
	}
	return result, nil
}

// proportionalNative returns nativeBalance * shares / totalSupply using live state.
func (s *Strategy) proportionalNative(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	supply := s.ledger.TotalSupply()
	if !supply.IsPositive() || supply.LT(shares) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: redeeming %s of %s total shares", ErrInsufficientShares, shares, supply)
	}
	native, err := s.nativeBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return native.Mul(shares).Quo(supply), nil
}

func withdrawalReceipt(r WithdrawalResult) types.OperationReceipt {
	return types.OperationReceipt{
		OperationID:   r.OperationID,
		Finished:      r.Finished,
		Shares:        r.Shares,
		PositionDelta: r.NativeAmount.Neg(),
		Assets:        r.Assets,
	}
}
