package strategy

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"

	"github.com/elys-network/strategyvault/internal/ledger"
	"github.com/elys-network/strategyvault/internal/types"
)

// savepoint is the engine-side state restored when an operation fails.
type savepoint struct {
	ledger         *ledger.Ledger
	referencePrice sdkmath.LegacyDec
	pending        map[string]types.PendingOperation
}

func (s *Strategy) save() savepoint {
	pending := make(map[string]types.PendingOperation, len(s.pending))
	for k, v := range s.pending {
		pending[k] = v
	}
	return savepoint{
		ledger:         s.ledger.Clone(),
		referencePrice: s.referencePrice,
		pending:        pending,
	}
}

func (s *Strategy) restore(sp savepoint) {
	s.ledger = sp.ledger
	s.referencePrice = sp.referencePrice
	s.pending = sp.pending
}

// checkpoint asks every collaborator able to roll back for a restore point. The returned
// context scopes the collaborators' journals to this operation.
func (s *Strategy) checkpoint(ctx context.Context) (context.Context, []func()) {
	var rollbacks []func()
	for _, c := range []any{s.bank, s.adapter, s.router} {
		if cp, ok := c.(Checkpointer); ok {
			var rollback func()
			ctx, rollback = cp.Checkpoint(ctx)
			rollbacks = append(rollbacks, rollback)
		}
	}
	return ctx, rollbacks
}

// commit runs fn as a single operation: either every effect is kept and persisted, or the
// engine state and all checkpointed collaborators are returned to where they were. fn must
// use the context it is given. Callers hold s.mu.
func (s *Strategy) commit(ctx context.Context, op types.OperationType, party string, fn func(ctx context.Context) (types.OperationReceipt, error)) (types.OperationReceipt, error) {
	sp := s.save()
	opCtx, rollbacks := s.checkpoint(ctx)

	receipt, err := fn(opCtx)
	if err == nil {
		receipt = s.fillReceipt(receipt, op, party)
		err = s.persist(ctx, receipt)
	}
	if err != nil {
		s.restore(sp)
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
		s.logger.Error().
			Err(err).
			Str("operation", string(op)).
			Str("party", party).
			Msg("Operation aborted, state rolled back")
		return types.OperationReceipt{}, err
	}

	s.logger.Info().
		Str("operation", string(op)).
		Str("operation_id", receipt.OperationID).
		Str("party", party).
		Bool("finished", receipt.Finished).
		Str("shares", receipt.Shares.String()).
		Str("positionDelta", receipt.PositionDelta.String()).
		Str("assets", receipt.Assets.String()).
		Str("yield", receipt.Yield.String()).
		Msg("Operation committed")
	return receipt, nil
}

func (s *Strategy) fillReceipt(r types.OperationReceipt, op types.OperationType, party string) types.OperationReceipt {
	if r.OperationID == "" {
		r.OperationID = uuid.New().String()
	}
	r.StrategyID = s.id
	r.Party = party
	r.Type = op
	r.Timestamp = s.clock()
	if r.Shares.IsNil() {
		r.Shares = sdkmath.ZeroInt()
	}
	if r.PositionDelta.IsNil() {
		r.PositionDelta = sdkmath.ZeroInt()
	}
	if r.Yield.IsNil() {
		r.Yield = sdkmath.ZeroInt()
	}
	return r
}

func (s *Strategy) persist(ctx context.Context, receipt types.OperationReceipt) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveOperation(ctx, s.stateLocked(), receipt); err != nil {
		return fmt.Errorf("persisting %s: %w", receipt.Type, err)
	}
	return nil
}

func (s *Strategy) idleBalance(ctx context.Context) (sdktypes.Coins, error) {
	coins, err := s.bank.Balance(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("reading strategy balance: %w", err)
	}
	return coins, nil
}

// received returns the positive part of after - before.
func received(before, after sdktypes.Coins) sdktypes.Coins {
	out := sdktypes.NewCoins()
	for _, c := range after {
		delta := c.Amount.Sub(before.AmountOf(c.Denom))
		if delta.IsPositive() {
			out = out.Add(sdktypes.NewCoin(c.Denom, delta))
		}
	}
	return out
}

func validateParams(params types.OperationParams) (types.OperationParams, error) {
	if params == nil {
		return types.NoParams{}, nil
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return params, nil
}
