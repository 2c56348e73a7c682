package ledger

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/helix-tools/ledger-go/types"
)

// DaysPerMonth is the fixed subscription period. Months are not calendar-aware.
const DaysPerMonth = 30

// SetSubscriptionPrice sets the per-month subscription price. Zero means
// subscriptions are not offered. Owner only.
func (l *Ledger) SetSubscriptionPrice(ctx context.Context, caller string, id, price uint64) (err error) {
	const op = "SetSubscriptionPrice"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if _, err := l.ownedDataset(op, caller, id); err != nil {
		return err
	}

	l.subscriptionPrices[id] = price
	l.emit(ctx, types.Event{Type: types.EventSubscriptionPriceSet, Actor: caller, DatasetID: id, Price: price})

	return nil
}

// Subscribe grants caller access for months periods of DaysPerMonth days
// starting now. Any previous row for (id, caller) is overwritten, remaining
// time is not carried over. payment must cover price*months and is split like a purchase.
func (l *Ledger) Subscribe(ctx context.Context, caller string, id uint64, months uint32, payment uint64) (resp types.SubscribeResponse, err error) {
	const op = "Subscribe"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if err := requireCaller(op, caller); err != nil {
		return types.SubscribeResponse{}, err
	}
	if months == 0 {
		return types.SubscribeResponse{}, newError(ErrInvalidInput, op, "months must be at least 1")
	}

	ds, err := l.activeDataset(op, id)
	if err != nil {
		return types.SubscribeResponse{}, err
	}

	price := l.subscriptionPrices[id]
	if price == 0 {
		return types.SubscribeResponse{}, newError(ErrInvalidInput, op, "dataset %d does not offer subscriptions", id)
	}

	hi, required := bits.Mul64(price, uint64(months))
	if hi != 0 {
		return types.SubscribeResponse{}, newError(ErrInvalidInput, op, "subscription total overflows")
	}
	if payment < required {
		return types.SubscribeResponse{}, newError(ErrInsufficientPayment, op, "paid %d, %d months cost %d", payment, months, required)
	}

	fee, sellerAmount, err := l.settle(ctx, op, "subscription", fmt.Sprintf("subscription:%d", id), ds.Owner, payment)
	if err != nil {
		return types.SubscribeResponse{}, err
	}

	now := l.now().UTC()
	sub := types.Subscription{
		DatasetID:      id,
		Subscriber:     caller,
		StartTime:      now,
		EndTime:        subscriptionEnd(now, months),
		PricePerPeriod: price,
		Active:         true,
	}
	l.subscriptions[types.SubscriptionKey{DatasetID: id, Subscriber: caller}] = sub

	end := sub.EndTime
	l.emit(ctx, types.Event{
		Type:         types.EventSubscriptionCreated,
		Actor:        caller,
		Timestamp:    now,
		DatasetID:    id,
		User:         caller,
		Months:       months,
		Amount:       payment,
		Fee:          fee,
		SellerAmount: sellerAmount,
		EndTime:      &end,
	})

	return types.SubscribeResponse{Subscription: sub, Fee: fee, SellerAmount: sellerAmount}, nil
}

func subscriptionEnd(start time.Time, months uint32) time.Time {
	// start is UTC, so a day is exactly 24 hours.
	return start.AddDate(0, 0, DaysPerMonth*int(months))
}

// CancelSubscription marks caller's subscription inactive. Timestamps are kept
// and nothing is refunded.
func (l *Ledger) CancelSubscription(ctx context.Context, caller string, id uint64) (err error) {
	const op = "CancelSubscription"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	key := types.SubscriptionKey{DatasetID: id, Subscriber: caller}
	sub, ok := l.subscriptions[key]
	if !ok || !sub.Active {
		return newError(ErrNotFound, op, "no active subscription to dataset %d", id)
	}

	sub.Active = false
	l.subscriptions[key] = sub
	l.emit(ctx, types.Event{Type: types.EventSubscriptionCancelled, Actor: caller, DatasetID: id, User: caller})

	return nil
}

// CheckSubscription reports whether user currently holds an active,
// unexpired subscription to the dataset.
func (l *Ledger) CheckSubscription(id uint64, user string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sub, ok := l.subscriptions[types.SubscriptionKey{DatasetID: id, Subscriber: user}]

	return ok && sub.IsCurrent(l.now())
}

// SubscriptionStatus returns the stored row for (id, user) and whether it is
// current, both from one read.
func (l *Ledger) SubscriptionStatus(id uint64, user string) (sub types.Subscription, current bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sub, ok := l.subscriptions[types.SubscriptionKey{DatasetID: id, Subscriber: user}]

	return sub, ok && sub.IsCurrent(l.now())
}

// Subscription returns the stored row for (id, user), expired or cancelled rows included.
func (l *Ledger) Subscription(id uint64, user string) (types.Subscription, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sub, ok := l.subscriptions[types.SubscriptionKey{DatasetID: id, Subscriber: user}]

	return sub, ok
}

// SubscriptionPrice returns the per-month price, zero when not offered.
func (l *Ledger) SubscriptionPrice(id uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.dataset("SubscriptionPrice", id); err != nil {
		return 0, err
	}

	return l.subscriptionPrices[id], nil
}
