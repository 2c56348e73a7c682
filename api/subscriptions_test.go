package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSubscriptions runs the subscription lifecycle over HTTP.
func TestSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.NewTestClient(t, alice)
	subscriber := env.NewTestClient(t, bob)
	stranger := env.NewTestClient(t, carol)

	id, err := owner.ListDataset(ctx, NewTestListing(GenerateTestID(), 500))
	require.NoError(t, err)

	t.Run("Subscribe_WithoutPrice", func(t *testing.T) {
		_, err := subscriber.Subscribe(ctx, id, 1, 100)
		assert.True(t, IsBadRequestError(err))
	})

	t.Run("Set_Price", func(t *testing.T) {
		assert.True(t, IsForbiddenError(subscriber.SetSubscriptionPrice(ctx, id, 1)))
		require.NoError(t, owner.SetSubscriptionPrice(ctx, id, 40))

		details, err := stranger.GetDataset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(40), details.SubscriptionPrice)
	})

	t.Run("Subscribe_ZeroMonths", func(t *testing.T) {
		_, err := subscriber.Subscribe(ctx, id, 0, 100)
		assert.True(t, IsBadRequestError(err))
	})

	t.Run("Subscribe_Underpaid", func(t *testing.T) {
		_, err := subscriber.Subscribe(ctx, id, 3, 119)
		assert.True(t, IsPaymentRequiredError(err))
	})

	t.Run("Subscribe", func(t *testing.T) {
		resp, err := subscriber.Subscribe(ctx, id, 3, 120)
		require.NoError(t, err)

		start := env.clock.Now()
		assert.True(t, resp.Subscription.Active)
		assert.Equal(t, bob, resp.Subscription.Subscriber)
		assert.True(t, resp.Subscription.EndTime.Equal(start.Add(90*24*time.Hour)))
		assert.Equal(t, uint64(3), resp.Fee)
		assert.Equal(t, uint64(117), resp.SellerAmount)
	})

	t.Run("Check_Subscription", func(t *testing.T) {
		resp, err := stranger.CheckSubscription(ctx, id, bob)
		require.NoError(t, err)
		assert.True(t, resp.HasSubscription)
		require.NotNil(t, resp.EndTime)
		assert.True(t, resp.EndTime.Equal(env.clock.Now().Add(90*24*time.Hour)))

		resp, err = stranger.CheckSubscription(ctx, id, carol)
		require.NoError(t, err)
		assert.False(t, resp.HasSubscription)
		assert.Nil(t, resp.EndTime)
	})

	t.Run("Subscription_Expires", func(t *testing.T) {
		env.clock.Advance(90 * 24 * time.Hour)
		resp, err := stranger.CheckSubscription(ctx, id, bob)
		require.NoError(t, err)
		assert.True(t, resp.HasSubscription, "still current at the end instant")

		env.clock.Advance(time.Second)
		resp, err = stranger.CheckSubscription(ctx, id, bob)
		require.NoError(t, err)
		assert.False(t, resp.HasSubscription)
	})

	t.Run("Cancel_Subscription", func(t *testing.T) {
		_, err := subscriber.Subscribe(ctx, id, 1, 40)
		require.NoError(t, err)

		err = stranger.CancelSubscription(ctx, id)
		assert.True(t, IsNotFoundError(err))

		require.NoError(t, subscriber.CancelSubscription(ctx, id))

		resp, err := stranger.CheckSubscription(ctx, id, bob)
		require.NoError(t, err)
		assert.False(t, resp.HasSubscription)

		err = subscriber.CancelSubscription(ctx, id)
		assert.True(t, IsNotFoundError(err), "cancelled rows cannot be cancelled again")
	})

	t.Run("Subscribe_Inactive", func(t *testing.T) {
		require.NoError(t, owner.DeactivateDataset(ctx, id))
		_, err := subscriber.Subscribe(ctx, id, 1, 40)
		assert.True(t, IsConflictError(err))
	})
}
