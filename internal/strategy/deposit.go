package strategy

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"

	"github.com/elys-network/strategyvault/internal/types"
)

// DepositResult reports the outcome of a deposit step.
type DepositResult struct {
	OperationID   string
	Finished      bool
	PositionDelta sdkmath.Int // adapter-native units added by this step
}

// Deposit is the caller-facing entry point: assets must list the asset group in order and
// amounts is aligned with it. The assets must already sit on the strategy's address.
func (s *Strategy) Deposit(ctx context.Context, party string, assets []string, amounts []sdkmath.Int, params types.OperationParams) (DepositResult, error) {
	coins, err := s.depositCoins(assets, amounts)
	if err != nil {
		return DepositResult{}, err
	}
	return s.InitializeDeposit(ctx, party, coins, params)
}

func (s *Strategy) depositCoins(assets []string, amounts []sdkmath.Int) (sdktypes.Coins, error) {
	if !s.assetGroup.Equal(assets) {
		return nil, fmt.Errorf("%w: got %v, strategy accepts %v", ErrInvalidAssetGroup, assets, s.assetGroup)
	}
	if len(amounts) != len(assets) {
		return nil, fmt.Errorf("%w: %d amounts for %d assets", ErrInvalidAssetGroup, len(amounts), len(assets))
	}
	coins := sdktypes.NewCoins()
	for i, denom := range assets {
		amount := amounts[i]
		if amount.IsNil() || amount.IsNegative() {
			return nil, fmt.Errorf("%w: %s amount %v", ErrInvalidAmount, denom, amount)
		}
		if amount.IsZero() {
			continue
		}
		coins = coins.Add(sdktypes.NewCoin(denom, amount))
	}
	return coins, nil
}

// IssueFunc prices the shares of a settled deposit that added delta native units to a position
// of before units backing supply shares.
type IssueFunc func(delta, before, supply sdkmath.Int) (sdkmath.Int, error)

// InitializeDeposit invests amounts. Atomic venues finish immediately; otherwise the assets are
// handed to the venue and a pending deposit is recorded for ContinueDeposit.
func (s *Strategy) InitializeDeposit(ctx context.Context, party string, amounts sdktypes.Coins, params types.OperationParams) (DepositResult, error) {
	res, _, err := s.initializeDeposit(ctx, party, amounts, params, nil)
	return res, err
}

// DepositAndIssue is InitializeDeposit followed, once the deposit settles, by minting the shares
// priced by issue to party. Both happen in one operation. Only the owner may call it.
func (s *Strategy) DepositAndIssue(ctx context.Context, caller, party string, amounts sdktypes.Coins, params types.OperationParams, issue IssueFunc) (DepositResult, sdkmath.Int, error) {
	if caller != s.owner {
		return DepositResult{}, sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if issue == nil {
		return DepositResult{}, sdkmath.ZeroInt(), fmt.Errorf("%w: no share pricing", ErrInvalidParams)
	}
	return s.initializeDeposit(ctx, party, amounts, params, issue)
}

func (s *Strategy) initializeDeposit(ctx context.Context, party string, amounts sdktypes.Coins, params types.OperationParams, issue IssueFunc) (DepositResult, sdkmath.Int, error) {
	if party == "" {
		return DepositResult{}, sdkmath.ZeroInt(), ErrInvalidParty
	}
	params, err := validateParams(params)
	if err != nil {
		return DepositResult{}, sdkmath.ZeroInt(), err
	}
	if err := s.checkGroupCoins(amounts); err != nil {
		return DepositResult{}, sdkmath.ZeroInt(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result DepositResult
	shares := sdkmath.ZeroInt()
	_, err = s.commit(ctx, types.OpDeposit, party, func(ctx context.Context) (types.OperationReceipt, error) {
		before, err := s.nativeBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		supply := s.ledger.TotalSupply()

		result, err = s.invest(ctx, party, amounts, params, false)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		if shares, err = s.issue(party, result, before, supply, issue); err != nil {
			return types.OperationReceipt{}, err
		}
		return types.OperationReceipt{
			OperationID:   result.OperationID,
			Finished:      result.Finished,
			PositionDelta: result.PositionDelta,
			Shares:        shares,
			Assets:        amounts,
		}, nil
	})
	if err != nil {
		return DepositResult{}, sdkmath.ZeroInt(), err
	}
	return result, shares, nil
}

// issue mints the shares of a settled deposit. Callers hold s.mu inside commit.
func (s *Strategy) issue(party string, res DepositResult, before, supply sdkmath.Int, issue IssueFunc) (sdkmath.Int, error) {
	if issue == nil || !res.Finished {
		return sdkmath.ZeroInt(), nil
	}
	shares, err := issue(res.PositionDelta, before, supply)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	if err := s.ledger.Mint(party, shares); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("minting %s shares to %s: %w", shares, party, err)
	}
	return shares, nil
}

func (s *Strategy) checkGroupCoins(amounts sdktypes.Coins) error {
	if amounts.Empty() || !amounts.IsAllPositive() {
		return fmt.Errorf("%w: deposit of %s", ErrInvalidAmount, amounts)
	}
	for _, c := range amounts {
		if !s.assetGroup.Contains(c.Denom) {
			return fmt.Errorf("%w: %s is not in %v", ErrInvalidAssetGroup, c.Denom, s.assetGroup)
		}
	}
	return nil
}

// invest is shared by deposits and compounding. Callers hold s.mu inside commit.
func (s *Strategy) invest(ctx context.Context, party string, amounts sdktypes.Coins, params types.OperationParams, compound bool) (DepositResult, error) {
	key := types.PendingKey(party, types.OperationDeposit)
	if p, ok := s.pending[key]; ok {
		return DepositResult{}, fmt.Errorf("%w: deposit %s for %s", ErrPendingOperationExists, p.ID, party)
	}

	before, err := s.nativeBalance(ctx)
	if err != nil {
		return DepositResult{}, err
	}
	res, err := s.adapter.Invest(ctx, s.address, amounts, params)
	if err != nil {
		return DepositResult{}, fmt.Errorf("invest on %s: %w", s.adapter.Venue(), err)
	}

	opID := uuid.New().String()
	if res.Finished {
		after, err := s.nativeBalance(ctx)
		if err != nil {
			return DepositResult{}, err
		}
		return DepositResult{OperationID: opID, Finished: true, PositionDelta: after.Sub(before)}, nil
	}
	if s.policy.AtomicDeposit {
		return DepositResult{}, fmt.Errorf("%w: %s left an atomic deposit unfinished", ErrAdapterContract, s.adapter.Venue())
	}

	s.pending[key] = types.PendingOperation{
		ID:           opID,
		Party:        party,
		Kind:         types.OperationDeposit,
		Amounts:      amounts,
		Shares:       sdkmath.ZeroInt(),
		Compound:     compound,
		Continuation: res.Continuation,
		CreatedAt:    s.clock(),
	}
	return DepositResult{OperationID: opID, Finished: false, PositionDelta: sdkmath.ZeroInt()}, nil
}

// ContinueDeposit asks the venue to finalize party's pending deposit. The pending record is
// cleared once the venue reports completion.
func (s *Strategy) ContinueDeposit(ctx context.Context, party string, params types.OperationParams) (DepositResult, error) {
	res, _, err := s.continueDeposit(ctx, party, params, nil)
	return res, err
}

// ContinueDepositAndIssue is ContinueDeposit that also mints the shares priced by issue once the
// deposit settles. Reinvested rewards are never issued shares. Only the owner may call it.
func (s *Strategy) ContinueDepositAndIssue(ctx context.Context, caller, party string, params types.OperationParams, issue IssueFunc) (DepositResult, sdkmath.Int, error) {
	if caller != s.owner {
		return DepositResult{}, sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if issue == nil {
		return DepositResult{}, sdkmath.ZeroInt(), fmt.Errorf("%w: no share pricing", ErrInvalidParams)
	}
	return s.continueDeposit(ctx, party, params, issue)
}

func (s *Strategy) continueDeposit(ctx context.Context, party string, params types.OperationParams, issue IssueFunc) (DepositResult, sdkmath.Int, error) {
	params, err := validateParams(params)
	if err != nil {
		return DepositResult{}, sdkmath.ZeroInt(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result DepositResult
	shares := sdkmath.ZeroInt()
	_, err = s.commit(ctx, types.OpContinueDeposit, party, func(ctx context.Context) (types.OperationReceipt, error) {
		key := types.PendingKey(party, types.OperationDeposit)
		p, ok := s.pending[key]
		if !ok {
			return types.OperationReceipt{}, fmt.Errorf("%w: no deposit pending for %s", ErrNoPendingOperation, party)
		}
		if s.settler == nil {
			return types.OperationReceipt{}, fmt.Errorf("%w: %s cannot continue deposits", ErrAdapterContract, s.adapter.Venue())
		}

		before, err := s.nativeBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}
		res, err := s.settler.ContinueInvest(ctx, s.address, p.Continuation, params)
		if err != nil {
			return types.OperationReceipt{}, fmt.Errorf("continue invest on %s: %w", s.adapter.Venue(), err)
		}
		after, err := s.nativeBalance(ctx)
		if err != nil {
			return types.OperationReceipt{}, err
		}

		if res.Finished {
			delete(s.pending, key)
		} else {
			p.Continuation = res.Continuation
			s.pending[key] = p
		}
		result = DepositResult{OperationID: p.ID, Finished: res.Finished, PositionDelta: after.Sub(before)}
		if !p.Compound {
			if shares, err = s.issue(party, result, before, s.ledger.TotalSupply(), issue); err != nil {
				return types.OperationReceipt{}, err
			}
		}
		return types.OperationReceipt{
			OperationID:   p.ID,
			Finished:      res.Finished,
			PositionDelta: result.PositionDelta,
			Shares:        shares,
			Assets:        p.Amounts,
		}, nil
	})
	if err != nil {
		return DepositResult{}, sdkmath.ZeroInt(), err
	}
	return result, shares, nil
}
