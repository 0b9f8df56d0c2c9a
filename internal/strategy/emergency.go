package strategy

import (
	"context"
	"fmt"

	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/strategyvault/internal/types"
)

// EmergencyWithdraw liquidates the whole position and pays everything realized to recipient.
// No shares are burned: the vault layer writes the strategy down separately. Pending operations
// are dropped since their continuations can no longer settle.
func (s *Strategy) EmergencyWithdraw(ctx context.Context, caller string, params types.OperationParams, recipient string) (sdktypes.Coins, error) {
	if caller != s.owner {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if recipient == "" {
		return nil, fmt.Errorf("%w: emergency recipient", ErrInvalidParty)
	}
	params, err := validateParams(params)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var realized sdktypes.Coins
	_, err = s.commit(ctx, types.OpEmergencyWithdraw, recipient, func(ctx context.Context) (types.OperationReceipt, error) {
		before, err := s.nativeBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		idleBefore, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		if _, err := s.adapter.EmergencyWithdraw(ctx, s.address, params); err != nil {
			return types.OperationReceipt{}, fmt.Errorf("emergency withdraw on %s: %w", s.adapter.Venue(), err)
		}
		after, err := s.nativeBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		if !after.IsZero() {
			return types.OperationReceipt{}, fmt.Errorf("%w: %s native units left on %s", ErrResidualPosition, after, s.adapter.Venue())
		}
		idleAfter, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}

		realized = received(idleBefore, idleAfter)
		if !realized.Empty() {
			if err := s.bank.Send(ctx, s.address, recipient, realized); err != nil {
				return types.OperationReceipt{}, fmt.Errorf("paying emergency recipient: %w", err)
			}
		}

		if len(s.pending) > 0 {
			s.logger.Warn().Int("pending", len(s.pending)).Msg("Dropping pending operations after emergency withdrawal")
			s.pending = make(map[string]types.PendingOperation)
		}
		return types.OperationReceipt{
			Finished:      true,
			PositionDelta: after.Sub(before),
			Assets:        realized,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return realized, nil
}

// Claim hands realized assets sitting on the strategy's balance to recipient.
func (s *Strategy) Claim(ctx context.Context, caller, recipient string, amounts sdktypes.Coins) error {
	if caller != s.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if recipient == "" {
		return fmt.Errorf("%w: claim recipient", ErrInvalidParty)
	}
	if amounts.Empty() || !amounts.IsAllPositive() {
		return fmt.Errorf("%w: claim of %s", ErrInvalidAmount, amounts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.commit(ctx, types.OpClaim, recipient, func(ctx context.Context) (types.OperationReceipt, error) {
		idle, err := s.idleBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		if !idle.IsAllGTE(amounts) {
			return types.OperationReceipt{}, fmt.Errorf("%w: claiming %s, strategy holds %s", ErrInvalidAmount, amounts, idle)
		}
		if err := s.bank.Send(ctx, s.address, recipient, amounts); err != nil {
			return types.OperationReceipt{}, fmt.Errorf("paying claim: %w", err)
		}
		return types.OperationReceipt{Finished: true, Assets: amounts}, nil
	})
	return err
}
