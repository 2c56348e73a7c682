package types

import "time"

// Subscription is the current time-boxed access grant for a (dataset, subscriber) pair.
// Cancelling clears Active but keeps the timestamps for audit.
type Subscription struct {
	DatasetID  uint64    `json:"dataset_id"`
	Subscriber string    `json:"subscriber"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	// PricePerPeriod is the per-month price in effect when the row was written.
	PricePerPeriod uint64 `json:"price_per_period"`
	Active         bool   `json:"active"`
}

// IsCurrent reports whether the subscription grants access at now.
// Expiry is evaluated lazily; a row is current while active and now <= EndTime.
func (s Subscription) IsCurrent(now time.Time) bool {
	return s.Active && !now.After(s.EndTime)
}

// SubscriptionKey addresses one subscription row.
type SubscriptionKey struct {
	DatasetID  uint64 `json:"dataset_id"`
	Subscriber string `json:"subscriber"`
}
