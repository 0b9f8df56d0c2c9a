// Package lock provides per-strategy single-writer locks, in process or across processes via Redis.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock held by another holder")

// Locker hands out exclusive locks by key. The returned unlock is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Local is an in-process Locker. ttl is ignored: a lock lives until unlocked.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLockHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Wait retries Acquire every interval until the lock is obtained or ctx is done.
func Wait(ctx context.Context, l Locker, key string, ttl, interval time.Duration) (func(), error) {
	for {
		unlock, err := l.Acquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockHeld, ctx.Err())
		case <-time.After(interval):
		}
	}
}

// StrategyKey is the lock key guarding one strategy's mutations.
func StrategyKey(strategyID string) string {
	return "strategy:" + strategyID
}
