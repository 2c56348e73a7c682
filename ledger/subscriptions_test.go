package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-tools/ledger-go/types"
)

const day = 24 * time.Hour

func TestSubscribeScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 1000)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 50))

	start := h.clock.Now()
	resp, err := h.l.Subscribe(ctx, bob, id, 3, 150)
	require.NoError(t, err)

	assert.Equal(t, start.Add(90*day), resp.Subscription.EndTime)
	assert.Equal(t, start, resp.Subscription.StartTime)
	assert.True(t, resp.Subscription.Active)
	assert.Equal(t, uint64(50), resp.Subscription.PricePerPeriod)
	assert.Equal(t, uint64(3), resp.Fee)
	assert.Equal(t, uint64(147), resp.SellerAmount)
	assert.Equal(t, uint64(147), h.book.Balance(alice))

	assert.True(t, h.l.CheckSubscription(id, bob))

	h.clock.Set(start.Add(89 * day))
	assert.True(t, h.l.CheckSubscription(id, bob))

	h.clock.Set(start.Add(90 * day))
	assert.True(t, h.l.CheckSubscription(id, bob), "end time is inclusive")

	h.clock.Set(start.Add(90*day + time.Nanosecond))
	assert.False(t, h.l.CheckSubscription(id, bob))

	h.clock.Set(start.Add(91 * day))
	assert.False(t, h.l.CheckSubscription(id, bob))

	ev := h.pub.Last()
	assert.Equal(t, types.EventSubscriptionCreated, ev.Type)
	assert.Equal(t, uint32(3), ev.Months)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, resp.Subscription.EndTime, *ev.EndTime)
}

func TestSubscribeOverwritesPreviousRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 0)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 10))

	start := h.clock.Now()
	_, err := h.l.Subscribe(ctx, bob, id, 12, 120)
	require.NoError(t, err)

	h.clock.Advance(10 * day)
	_, err = h.l.Subscribe(ctx, bob, id, 1, 10)
	require.NoError(t, err)

	sub, ok := h.l.Subscription(id, bob)
	require.True(t, ok)
	assert.Equal(t, start.Add(10*day), sub.StartTime)
	assert.Equal(t, start.Add(40*day), sub.EndTime, "remaining time is not stacked")
}

func TestSubscriptionStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 0)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 10))

	_, current := h.l.SubscriptionStatus(id, bob)
	assert.False(t, current)

	start := h.clock.Now()
	_, err := h.l.Subscribe(ctx, bob, id, 1, 10)
	require.NoError(t, err)

	sub, current := h.l.SubscriptionStatus(id, bob)
	assert.True(t, current)
	assert.Equal(t, start.Add(30*day), sub.EndTime)

	h.clock.Advance(20 * day)
	_, err = h.l.Subscribe(ctx, bob, id, 2, 20)
	require.NoError(t, err)

	sub, current = h.l.SubscriptionStatus(id, bob)
	assert.True(t, current)
	assert.Equal(t, start.Add(80*day), sub.EndTime)

	require.NoError(t, h.l.CancelSubscription(ctx, bob, id))
	sub, current = h.l.SubscriptionStatus(id, bob)
	assert.False(t, current)
	assert.False(t, sub.Active)
	assert.Equal(t, start.Add(80*day), sub.EndTime)
}

func TestSubscribeRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 0)
	unpriced := h.list(t, alice, 0)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 50))

	tests := []struct {
		name    string
		caller  string
		id      uint64
		months  uint32
		payment uint64
		check   func(error) bool
	}{
		{name: "no caller", caller: "", id: id, months: 1, payment: 50, check: IsUnauthorized},
		{name: "zero months", caller: bob, id: id, months: 0, payment: 50, check: IsInvalidInput},
		{name: "unknown dataset", caller: bob, id: 99, months: 1, payment: 50, check: IsNotFound},
		{name: "price not set", caller: bob, id: unpriced, months: 1, payment: 50, check: IsInvalidInput},
		{name: "underpaid", caller: bob, id: id, months: 3, payment: 149, check: IsInsufficientPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.l.Subscribe(ctx, tt.caller, tt.id, tt.months, tt.payment)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}

	assert.False(t, h.l.CheckSubscription(id, bob))
	_, ok := h.l.Subscription(id, bob)
	assert.False(t, ok)
	assert.Empty(t, h.book.History())
}

func TestSubscribeTotalOverflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 0)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, math.MaxUint64/2))

	_, err := h.l.Subscribe(ctx, bob, id, 3, math.MaxUint64)
	assert.True(t, IsInvalidInput(err))
}

func TestSubscribeTransferFailure(t *testing.T) {
	h := newHarness(t, WithTransferer(&failingTransferer{}))
	ctx := context.Background()
	id := h.list(t, alice, 0)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 5))

	_, err := h.l.Subscribe(ctx, bob, id, 1, 5)
	require.True(t, IsTransferFailure(err))

	_, ok := h.l.Subscription(id, bob)
	assert.False(t, ok)
	assert.False(t, h.l.CheckSubscription(id, bob))
}

func TestCancelSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 0)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 5))

	err := h.l.CancelSubscription(ctx, bob, id)
	assert.True(t, IsNotFound(err), "nothing to cancel")

	resp, err := h.l.Subscribe(ctx, bob, id, 2, 10)
	require.NoError(t, err)

	require.NoError(t, h.l.CancelSubscription(ctx, bob, id))
	assert.False(t, h.l.CheckSubscription(id, bob))

	sub, ok := h.l.Subscription(id, bob)
	require.True(t, ok)
	assert.False(t, sub.Active)
	assert.Equal(t, resp.Subscription.StartTime, sub.StartTime)
	assert.Equal(t, resp.Subscription.EndTime, sub.EndTime)

	err = h.l.CancelSubscription(ctx, bob, id)
	assert.True(t, IsNotFound(err), "already cancelled")

	assert.Equal(t, types.EventSubscriptionCancelled, h.pub.Last().Type)
}

func TestSubscriptionPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 0)

	price, err := h.l.SubscriptionPrice(id)
	require.NoError(t, err)
	assert.Zero(t, price)

	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 42))
	price, err = h.l.SubscriptionPrice(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), price)

	_, err = h.l.SubscriptionPrice(7)
	assert.True(t, IsNotFound(err))
}

func TestSubscriptionEndUsesFixedDays(t *testing.T) {
	// Jan 31 + 1 month is 30 days later, not the last day of February.
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), subscriptionEnd(start, 1))
	assert.Equal(t, start.Add(360*day), subscriptionEnd(start, 12))
}
