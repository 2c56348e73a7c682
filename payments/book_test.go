package payments

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-tools/ledger-go/types"
)

func TestBookTransfer(t *testing.T) {
	book := NewBook()

	err := book.Transfer(context.Background(), []types.Payout{
		{To: "operator", Amount: 2, Reference: "purchase:1"},
		{To: "seller", Amount: 98, Reference: "purchase:1"},
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), book.Balance("operator"))
	assert.Equal(t, uint64(98), book.Balance("seller"))
	assert.Zero(t, book.Balance("nobody"))
	assert.Len(t, book.History(), 2)
}

func TestBookTransferSameRecipientTwice(t *testing.T) {
	book := NewBook()

	require.NoError(t, book.Transfer(context.Background(), []types.Payout{
		{To: "alice", Amount: 5},
		{To: "alice", Amount: 7},
	}))

	assert.Equal(t, uint64(12), book.Balance("alice"))
}

func TestBookTransferIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		payouts []types.Payout
	}{
		{
			name: "empty recipient",
			payouts: []types.Payout{
				{To: "operator", Amount: 1},
				{To: "", Amount: 9},
			},
		},
		{
			name: "overflow",
			payouts: []types.Payout{
				{To: "operator", Amount: 1},
				{To: "whale", Amount: math.MaxUint64},
				{To: "whale", Amount: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := NewBook()

			err := book.Transfer(context.Background(), tt.payouts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayout))

			assert.Zero(t, book.Balance("operator"))
			assert.Zero(t, book.Balance("whale"))
			assert.Empty(t, book.History())
		})
	}
}

func TestBookTransferCancelledContext(t *testing.T) {
	book := NewBook()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := book.Transfer(ctx, []types.Payout{{To: "seller", Amount: 1}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, book.Balance("seller"))
}

func TestBookLoadBalances(t *testing.T) {
	book := NewBook()
	require.NoError(t, book.Transfer(context.Background(), []types.Payout{{To: "seller", Amount: 40}}))

	saved := book.Balances()
	saved["seller"] = 1
	assert.Equal(t, uint64(40), book.Balance("seller"), "Balances returns a copy")

	restored := NewBook()
	restored.LoadBalances(map[string]uint64{"seller": 40, "operator": 2})
	assert.Equal(t, uint64(40), restored.Balance("seller"))
	assert.Empty(t, restored.History())

	require.NoError(t, restored.Transfer(context.Background(), []types.Payout{{To: "operator", Amount: 1}}))
	assert.Equal(t, map[string]uint64{"seller": 40, "operator": 3}, restored.Balances())

	restored.LoadBalances(nil)
	assert.Empty(t, restored.Balances())
}
