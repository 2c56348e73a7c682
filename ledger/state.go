package ledger

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/helix-tools/ledger-go/types"
)

// Snapshot exports the full persisted state in one consistent read.
// The result shares no memory with the ledger.
func (l *Ledger) Snapshot() types.LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state := types.LedgerState{
		Operator:           l.operator,
		FeeRate:            l.feeRate,
		DatasetCount:       l.datasetCount,
		CategoryCount:      l.categoryCount,
		EventSequence:      l.eventSeq,
		Datasets:           make([]types.Dataset, 0, len(l.datasets)),
		Categories:         make([]types.Category, 0, len(l.categories)),
		UserDatasets:       cloneSliceMap(l.userDatasets),
		UserPurchases:      cloneSliceMap(l.userPurchases),
		Reviews:            cloneSliceMap(l.reviews),
		RatingSums:         maps.Clone(l.ratingSums),
		Versions:           cloneSliceMap(l.versions),
		DatasetCategories:  maps.Clone(l.datasetCategories),
		DatasetTags:        cloneSliceMap(l.datasetTags),
		Access:             make(map[uint64]types.AccessControl, len(l.access)),
		UserGroups:         cloneSliceMap(l.userGroups),
		Subscriptions:      make([]types.Subscription, 0, len(l.subscriptions)),
		SubscriptionPrices: maps.Clone(l.subscriptionPrices),
	}

	for _, ds := range l.datasets {
		state.Datasets = append(state.Datasets, *ds)
	}
	slices.SortFunc(state.Datasets, func(a, b types.Dataset) int { return cmp.Compare(a.ID, b.ID) })

	for _, cat := range l.categories {
		state.Categories = append(state.Categories, *cat)
	}
	slices.SortFunc(state.Categories, func(a, b types.Category) int { return cmp.Compare(a.ID, b.ID) })

	for id := range l.access {
		state.Access[id] = l.accessControlLocked(id)
	}

	// Transfers only run under the write lock, so the book is consistent with the rest.
	if keeper, ok := l.payments.(BalanceKeeper); ok {
		state.Balances = keeper.Balances()
	}

	for _, sub := range l.subscriptions {
		state.Subscriptions = append(state.Subscriptions, sub)
	}
	slices.SortFunc(state.Subscriptions, func(a, b types.Subscription) int {
		return cmp.Or(cmp.Compare(a.DatasetID, b.DatasetID), cmp.Compare(a.Subscriber, b.Subscriber))
	})

	return state
}

// Restore replaces the ledger's state with a previously exported snapshot.
// The snapshot must belong to the same operator and fee rate, and every
// per-dataset entry must reference a dataset in the snapshot. Rating sums
// are rebuilt from the reviews. An in-process payout book is restored along
// with the ledger. No events are emitted.
func (l *Ledger) Restore(state types.LedgerState) error {
	const op = "Restore"

	if state.Operator != "" && state.Operator != l.operator {
		return newError(ErrInvalidInput, op, "snapshot belongs to operator %q", state.Operator)
	}
	if state.FeeRate != 0 && state.FeeRate != l.feeRate {
		return newError(ErrInvalidInput, op, "snapshot fee rate %d differs from %d", state.FeeRate, l.feeRate)
	}
	if err := validateState(state); err != nil {
		return newError(ErrInvalidInput, op, "%v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.reset()
	l.datasetCount = state.DatasetCount
	l.categoryCount = state.CategoryCount
	l.eventSeq = state.EventSequence

	for _, ds := range state.Datasets {
		l.datasets[ds.ID] = &ds
	}
	for _, cat := range state.Categories {
		l.categories[cat.ID] = &cat
	}
	copySliceMap(l.userDatasets, state.UserDatasets)
	copySliceMap(l.userPurchases, state.UserPurchases)
	copySliceMap(l.reviews, state.Reviews)
	for id, reviews := range l.reviews {
		for _, r := range reviews {
			l.ratingSums[id] += uint64(r.Rating)
		}
	}
	copySliceMap(l.versions, state.Versions)
	maps.Copy(l.datasetCategories, state.DatasetCategories)
	copySliceMap(l.datasetTags, state.DatasetTags)
	copySliceMap(l.userGroups, state.UserGroups)
	maps.Copy(l.subscriptionPrices, state.SubscriptionPrices)

	for id, acl := range state.Access {
		restored := &accessState{
			isPublic: acl.IsPublic,
			allowed:  make(map[string]struct{}, len(acl.AllowedUsers)),
			groups:   slices.Clone(acl.AllowedGroups),
		}
		for _, user := range acl.AllowedUsers {
			restored.allowed[user] = struct{}{}
		}
		l.access[id] = restored
	}
	for _, sub := range state.Subscriptions {
		l.subscriptions[types.SubscriptionKey{DatasetID: sub.DatasetID, Subscriber: sub.Subscriber}] = sub
	}

	if keeper, ok := l.payments.(BalanceKeeper); ok {
		keeper.LoadBalances(state.Balances)
	}

	l.metrics.datasets.Set(float64(l.datasetCount))
	l.metrics.categories.Set(float64(l.categoryCount))

	return nil
}

// validateState checks id ranges and cross references of a snapshot.
func validateState(state types.LedgerState) error {
	datasets := make(map[uint64]bool, len(state.Datasets))
	for _, ds := range state.Datasets {
		if ds.ID == 0 || ds.ID > state.DatasetCount {
			return fmt.Errorf("dataset id %d outside 1..%d", ds.ID, state.DatasetCount)
		}
		datasets[ds.ID] = true
	}
	categories := make(map[uint64]bool, len(state.Categories))
	for _, cat := range state.Categories {
		if cat.ID == 0 || cat.ID > state.CategoryCount {
			return fmt.Errorf("category id %d outside 1..%d", cat.ID, state.CategoryCount)
		}
		categories[cat.ID] = true
	}

	known := func(section string, id uint64) error {
		if !datasets[id] {
			return fmt.Errorf("%s references unknown dataset %d", section, id)
		}
		return nil
	}

	for section, ids := range map[string][]uint64{
		"reviews":             slices.Collect(maps.Keys(state.Reviews)),
		"rating_sums":         slices.Collect(maps.Keys(state.RatingSums)),
		"versions":            slices.Collect(maps.Keys(state.Versions)),
		"dataset_categories":  slices.Collect(maps.Keys(state.DatasetCategories)),
		"dataset_tags":        slices.Collect(maps.Keys(state.DatasetTags)),
		"access":              slices.Collect(maps.Keys(state.Access)),
		"subscription_prices": slices.Collect(maps.Keys(state.SubscriptionPrices)),
	} {
		for _, id := range ids {
			if err := known(section, id); err != nil {
				return err
			}
		}
	}
	for _, lists := range []map[string][]uint64{state.UserDatasets, state.UserPurchases} {
		for _, ids := range lists {
			for _, id := range ids {
				if err := known("user index", id); err != nil {
					return err
				}
			}
		}
	}
	for _, sub := range state.Subscriptions {
		if err := known("subscriptions", sub.DatasetID); err != nil {
			return err
		}
		if sub.Subscriber == "" {
			return fmt.Errorf("subscription to dataset %d has no subscriber", sub.DatasetID)
		}
	}
	for id, categoryID := range state.DatasetCategories {
		if !categories[categoryID] {
			return fmt.Errorf("dataset %d references unknown category %d", id, categoryID)
		}
	}
	for id, reviews := range state.Reviews {
		for _, r := range reviews {
			if r.Rating < MinRating || r.Rating > MaxRating {
				return fmt.Errorf("review of dataset %d has rating %d outside %d..%d", id, r.Rating, MinRating, MaxRating)
			}
		}
	}

	return nil
}

func cloneSliceMap[K comparable, V any](src map[K][]V) map[K][]V {
	dst := make(map[K][]V, len(src))
	copySliceMap(dst, src)

	return dst
}

func copySliceMap[K comparable, V any](dst, src map[K][]V) {
	for k, v := range src {
		dst[k] = slices.Clone(v)
	}
}
