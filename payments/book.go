// Package payments holds the value-transfer side of settlement.
package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"

	"github.com/helix-tools/ledger-go/types"
)

// ErrInvalidPayout is returned when a batch contains a payout that cannot be credited.
var ErrInvalidPayout = errors.New("invalid payout")

// Book is an in-memory balance book. A batch of payouts is credited as a
// unit: either every payout lands or none does.
type Book struct {
	mu       sync.Mutex
	balances map[string]uint64
	history  []types.Payout
}

// NewBook creates an empty balance book.
func NewBook() *Book {
	return &Book{balances: make(map[string]uint64)}
}

// Transfer credits every payout in the batch.
func (b *Book) Transfer(ctx context.Context, payouts []types.Payout) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to transfer: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Validate the whole batch against projected balances before crediting.
	pending := make(map[string]uint64, len(payouts))
	for i, p := range payouts {
		if p.To == "" {
			return fmt.Errorf("%w: payout %d has no recipient", ErrInvalidPayout, i)
		}

		current, ok := pending[p.To]
		if !ok {
			current = b.balances[p.To]
		}
		if p.Amount > math.MaxUint64-current {
			return fmt.Errorf("%w: balance of %s would overflow", ErrInvalidPayout, p.To)
		}
		pending[p.To] = current + p.Amount
	}

	for to, balance := range pending {
		b.balances[to] = balance
	}
	b.history = append(b.history, payouts...)

	return nil
}

// Balance returns the amount credited to id so far.
func (b *Book) Balance(id string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.balances[id]
}

// Balances returns a copy of every credited balance.
func (b *Book) Balances() map[string]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return maps.Clone(b.balances)
}

// LoadBalances replaces the balances with a previously saved copy. History
// starts empty; it only covers payouts made by this process.
func (b *Book) LoadBalances(balances map[string]uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.balances = make(map[string]uint64, len(balances))
	maps.Copy(b.balances, balances)
	b.history = nil
}

// History returns every payout credited, in order.
func (b *Book) History() []types.Payout {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.Payout, len(b.history))
	copy(out, b.history)

	return out
}
