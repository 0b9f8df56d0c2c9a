// Package ledger keeps the proportional-ownership units of a single strategy.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/strategyvault/internal/types"
)

var (
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidAmount      = errors.New("share amount must be positive")
	ErrInvalidHolder      = errors.New("holder is empty")
)

// Ledger maps holders to share balances. The sum of all balances always equals the total supply.
// It is not safe for concurrent use; the owning strategy serializes access.
type Ledger struct {
	balances    map[string]sdkmath.Int
	totalSupply sdkmath.Int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:    make(map[string]sdkmath.Int),
		totalSupply: sdkmath.ZeroInt(),
	}
}

// Mint credits amount shares to holder.
func (l *Ledger) Mint(holder string, amount sdkmath.Int) error {
	if err := validate(holder, amount); err != nil {
		return err
	}
	l.balances[holder] = l.BalanceOf(holder).Add(amount)
	l.totalSupply = l.totalSupply.Add(amount)
	return nil
}

// Burn debits amount shares from holder.
func (l *Ledger) Burn(holder string, amount sdkmath.Int) error {
	if err := validate(holder, amount); err != nil {
		return err
	}
	balance := l.BalanceOf(holder)
	if balance.LT(amount) {
		return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientShares, holder, balance, amount)
	}
	remaining := balance.Sub(amount)
	if remaining.IsZero() {
		delete(l.balances, holder)
	} else {
		l.balances[holder] = remaining
	}
	l.totalSupply = l.totalSupply.Sub(amount)
	return nil
}

// BalanceOf returns the shares held by holder.
func (l *Ledger) BalanceOf(holder string) sdkmath.Int {
	if b, ok := l.balances[holder]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

// TotalSupply returns the number of shares in existence.
func (l *Ledger) TotalSupply() sdkmath.Int {
	return l.totalSupply
}

// Balances returns all non-zero balances ordered by holder.
func (l *Ledger) Balances() []types.ShareBalance {
	out := make([]types.ShareBalance, 0, len(l.balances))
	for holder, amount := range l.balances {
		out = append(out, types.ShareBalance{Holder: holder, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Holder < out[j].Holder })
	return out
}

// Clone returns an independent copy. math.Int values are immutable so sharing them is safe.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		balances:    make(map[string]sdkmath.Int, len(l.balances)),
		totalSupply: l.totalSupply,
	}
	for holder, amount := range l.balances {
		c.balances[holder] = amount
	}
	return c
}

// FromBalances rebuilds a ledger from persisted balances, recomputing the total supply.
func FromBalances(balances []types.ShareBalance) (*Ledger, error) {
	l := New()
	for _, b := range balances {
		if b.Amount.IsNil() || b.Amount.IsZero() {
			continue
		}
		if err := l.Mint(b.Holder, b.Amount); err != nil {
			return nil, fmt.Errorf("restoring balance of %s: %w", b.Holder, err)
		}
	}
	return l, nil
}

func validate(holder string, amount sdkmath.Int) error {
	if holder == "" {
		return ErrInvalidHolder
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
