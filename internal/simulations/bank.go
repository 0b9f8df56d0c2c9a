package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/strategyvault/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrEmptyAddress      = errors.New("address is empty")
	ErrInvalidCoins      = errors.New("coins are invalid")
)

// Bank is an in-memory ledger of account balances. It stands in for the chain's bank module.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]sdktypes.Coins

	logger zerolog.Logger
}

func NewBank() *Bank {
	return &Bank{
		balances: make(map[string]sdktypes.Coins),
		logger:   logger.GetForComponent("bank_simulator"),
	}
}

// Balance returns addr's coins.
func (b *Bank) Balance(_ context.Context, addr string) (sdktypes.Coins, error) {
	if addr == "" {
		return nil, ErrEmptyAddress
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sdktypes.NewCoins(b.balances[addr]...), nil
}

// Send moves coins from one account to another.
func (b *Bank) Send(ctx context.Context, from, to string, coins sdktypes.Coins) error {
	if from == "" || to == "" {
		return ErrEmptyAddress
	}
	if err := coins.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCoins, err)
	}
	if coins.Empty() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(from, coins); err != nil {
		return err
	}
	b.credit(to, coins)
	b.record(ctx, transfer{from: from, to: to, coins: coins})
	return nil
}

// Mint creates coins on addr. It is the faucet used by simulated venues for yield and rewards.
func (b *Bank) Mint(addr string, coins sdktypes.Coins) error {
	return b.mint(context.Background(), addr, coins)
}

func (b *Bank) mint(ctx context.Context, addr string, coins sdktypes.Coins) error {
	if addr == "" {
		return ErrEmptyAddress
	}
	if err := coins.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCoins, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(addr, coins)
	b.record(ctx, transfer{to: addr, coins: coins})
	return nil
}

// Burn destroys coins held by addr.
func (b *Bank) Burn(addr string, coins sdktypes.Coins) error {
	if addr == "" {
		return ErrEmptyAddress
	}
	if err := coins.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCoins, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debit(addr, coins)
}

func (b *Bank) credit(addr string, coins sdktypes.Coins) {
	if coins.Empty() {
		return
	}
	b.balances[addr] = b.balances[addr].Add(coins...)
}

func (b *Bank) debit(addr string, coins sdktypes.Coins) error {
	remaining, negative := b.balances[addr].SafeSub(coins...)
	if negative {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, addr, b.balances[addr], coins)
	}
	if remaining.Empty() {
		delete(b.balances, addr)
		return nil
	}
	b.balances[addr] = remaining
	return nil
}

// --- journal ---

// transfer is one balance movement. An empty from is a mint, an empty to a burn.
type transfer struct {
	from, to string
	coins    sdktypes.Coins
}

// journal collects the transfers made under one checkpoint. Transfers are also recorded in
// every enclosing journal, so reverting an outer checkpoint undoes committed inner ones.
type journal struct {
	parent    *journal
	transfers []transfer
}

type journalKey struct{ bank *Bank }

// record appends t to the journal carried by ctx, if any. Callers hold b.mu.
func (b *Bank) record(ctx context.Context, t transfer) {
	j, _ := ctx.Value(journalKey{b}).(*journal)
	for ; j != nil; j = j.parent {
		j.transfers = append(j.transfers, t)
	}
}

// Checkpoint starts journaling the transfers made with the returned context. The returned
// function reverses exactly those transfers, leaving every other movement of funds in place.
func (b *Bank) Checkpoint(ctx context.Context) (context.Context, func()) {
	parent, _ := ctx.Value(journalKey{b}).(*journal)
	j := &journal{parent: parent}

	var once sync.Once
	return context.WithValue(ctx, journalKey{b}, j), func() {
		once.Do(func() { b.revert(j) })
	}
}

func (b *Bank) revert(j *journal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(j.transfers) - 1; i >= 0; i-- {
		t := j.transfers[i]
		// the reversal is itself a movement the enclosing checkpoints must see
		undo := transfer{from: t.to, to: t.from, coins: t.coins}
		if undo.from != "" {
			if err := b.debit(undo.from, undo.coins); err != nil {
				b.logger.Error().
					Err(err).
					Str("from", t.from).
					Str("to", t.to).
					Str("coins", t.coins.String()).
					Msg("Cannot reverse transfer, funds already moved on")
				continue
			}
		}
		if undo.to != "" {
			b.credit(undo.to, undo.coins)
		}
		for p := j.parent; p != nil; p = p.parent {
			p.transfers = append(p.transfers, undo)
		}
	}
	j.transfers = nil
}
