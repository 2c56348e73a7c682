package ledger

import (
	"context"
	"slices"

	"github.com/helix-tools/ledger-go/types"
)

const (
	MinRating = 1
	MaxRating = 5
)

// ReviewDataset records a rating and comment from a purchaser of an active
// dataset. The same purchaser may review more than once.
func (l *Ledger) ReviewDataset(ctx context.Context, caller string, id uint64, rating uint8, comment string) (err error) {
	const op = "ReviewDataset"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if rating < MinRating || rating > MaxRating {
		return newError(ErrInvalidInput, op, "rating %d outside %d..%d", rating, MinRating, MaxRating)
	}
	if err := requireCaller(op, caller); err != nil {
		return err
	}
	if _, err := l.activeDataset(op, id); err != nil {
		return err
	}
	if !l.hasPurchased(caller, id) {
		return newError(ErrUnauthorized, op, "only purchasers of dataset %d may review it", id)
	}

	now := l.now().UTC()
	l.reviews[id] = append(l.reviews[id], types.Review{
		Reviewer:  caller,
		Rating:    rating,
		Comment:   comment,
		Timestamp: now,
	})
	l.ratingSums[id] += uint64(rating)

	l.emit(ctx, types.Event{
		Type:      types.EventDatasetReviewed,
		Actor:     caller,
		Timestamp: now,
		DatasetID: id,
		User:      caller,
		Rating:    rating,
	})

	return nil
}

// DatasetRating returns the truncated integer mean of all ratings, zero when unreviewed.
func (l *Ledger) DatasetRating(id uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.dataset("DatasetRating", id); err != nil {
		return 0, err
	}

	return l.ratingLocked(id), nil
}

func (l *Ledger) ratingLocked(id uint64) uint64 {
	count := uint64(len(l.reviews[id]))
	if count == 0 {
		return 0
	}

	return l.ratingSums[id] / count
}

// DatasetReviews returns every review of the dataset in submission order.
func (l *Ledger) DatasetReviews(id uint64) ([]types.Review, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.dataset("DatasetReviews", id); err != nil {
		return nil, err
	}

	out := slices.Clone(l.reviews[id])
	if out == nil {
		out = []types.Review{}
	}

	return out, nil
}
