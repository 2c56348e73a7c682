package ledger

import (
	"context"
	"slices"

	"github.com/helix-tools/ledger-go/types"
)

// ListDataset registers a new dataset owned by caller and returns its id.
// Ids are assigned from 1 upward and never reused. Price may be zero and
// content hashes need not be unique.
func (l *Ledger) ListDataset(ctx context.Context, caller string, req types.ListDatasetRequest) (id uint64, err error) {
	const op = "ListDataset"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if err := requireCaller(op, caller); err != nil {
		return 0, err
	}

	return l.listLocked(ctx, caller, req), nil
}

// BatchListDatasets lists one dataset per index of the request arrays, in order.
// The whole batch is rejected before any item is listed if the array lengths differ.
func (l *Ledger) BatchListDatasets(ctx context.Context, caller string, req types.BatchListRequest) (ids []uint64, err error) {
	const op = "BatchListDatasets"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if err := requireCaller(op, caller); err != nil {
		return nil, err
	}

	n := len(req.ContentHashes)
	if len(req.Prices) != n || len(req.Descriptions) != n || len(req.Sizes) != n || len(req.DataTypes) != n {
		return nil, newError(ErrInvalidInput, op, "array lengths mismatch")
	}

	ids = make([]uint64, 0, n)
	for i := range n {
		ids = append(ids, l.listLocked(ctx, caller, types.ListDatasetRequest{
			ContentHash: req.ContentHashes[i],
			Price:       req.Prices[i],
			Description: req.Descriptions[i],
			SizeBytes:   req.Sizes[i],
			DataType:    req.DataTypes[i],
		}))
	}

	return ids, nil
}

func (l *Ledger) listLocked(ctx context.Context, caller string, req types.ListDatasetRequest) uint64 {
	l.datasetCount++
	id := l.datasetCount

	l.datasets[id] = &types.Dataset{
		ID:          id,
		Owner:       caller,
		ContentHash: req.ContentHash,
		Price:       req.Price,
		IsActive:    true,
		Description: req.Description,
		SizeBytes:   req.SizeBytes,
		DataType:    req.DataType,
	}
	l.userDatasets[caller] = append(l.userDatasets[caller], id)
	l.metrics.datasets.Set(float64(l.datasetCount))

	l.emit(ctx, types.Event{
		Type:        types.EventDatasetListed,
		Actor:       caller,
		DatasetID:   id,
		ContentHash: req.ContentHash,
		Price:       req.Price,
	})

	return id
}

// UpdateDatasetPrice sets a new one-time purchase price. Owner only.
func (l *Ledger) UpdateDatasetPrice(ctx context.Context, caller string, id, price uint64) (err error) {
	const op = "UpdateDatasetPrice"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	ds, err := l.ownedDataset(op, caller, id)
	if err != nil {
		return err
	}

	ds.Price = price
	l.emit(ctx, types.Event{Type: types.EventDatasetPriceUpdated, Actor: caller, DatasetID: id, Price: price})

	return nil
}

// DeactivateDataset permanently removes a dataset from purchase, subscription,
// versioning and review eligibility. The record stays queryable. Owner only.
func (l *Ledger) DeactivateDataset(ctx context.Context, caller string, id uint64) (err error) {
	const op = "DeactivateDataset"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	ds, err := l.ownedDataset(op, caller, id)
	if err != nil {
		return err
	}

	ds.IsActive = false
	l.emit(ctx, types.Event{Type: types.EventDatasetDeactivated, Actor: caller, DatasetID: id})

	return nil
}

// AddDatasetVersion appends a version and mirrors its content hash and
// description onto the live record. It returns the 1-based version number.
func (l *Ledger) AddDatasetVersion(ctx context.Context, caller string, id uint64, req types.AddVersionRequest) (version int, err error) {
	const op = "AddDatasetVersion"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	ds, err := l.ownedDataset(op, caller, id)
	if err != nil {
		return 0, err
	}
	if !ds.IsActive {
		return 0, newError(ErrInactive, op, "dataset %d is inactive", id)
	}

	now := l.now().UTC()
	l.versions[id] = append(l.versions[id], types.Version{
		ContentHash: req.ContentHash,
		Description: req.Description,
		Timestamp:   now,
		ChangeLog:   req.ChangeLog,
	})
	ds.ContentHash = req.ContentHash
	ds.Description = req.Description

	version = len(l.versions[id])
	l.emit(ctx, types.Event{
		Type:        types.EventDatasetVersionAdded,
		Actor:       caller,
		Timestamp:   now,
		DatasetID:   id,
		ContentHash: req.ContentHash,
		Version:     version,
	})

	return version, nil
}

// UpdateDatasetCategory assigns an existing, active category. Owner only; last write wins.
func (l *Ledger) UpdateDatasetCategory(ctx context.Context, caller string, id, categoryID uint64) (err error) {
	const op = "UpdateDatasetCategory"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if _, err := l.ownedDataset(op, caller, id); err != nil {
		return err
	}

	cat, ok := l.categories[categoryID]
	if !ok {
		return newError(ErrNotFound, op, "category %d does not exist", categoryID)
	}
	if !cat.IsActive {
		return newError(ErrInactive, op, "category %d is inactive", categoryID)
	}

	l.datasetCategories[id] = categoryID
	l.emit(ctx, types.Event{Type: types.EventDatasetCategoryUpdated, Actor: caller, DatasetID: id, CategoryID: categoryID})

	return nil
}

// UpdateDatasetTags replaces the dataset's tag set. Owner only.
func (l *Ledger) UpdateDatasetTags(ctx context.Context, caller string, id uint64, tags []string) (err error) {
	const op = "UpdateDatasetTags"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if _, err := l.ownedDataset(op, caller, id); err != nil {
		return err
	}

	stored := slices.Clone(tags)
	if stored == nil {
		stored = []string{}
	}
	l.datasetTags[id] = stored
	l.emit(ctx, types.Event{Type: types.EventDatasetTagsUpdated, Actor: caller, DatasetID: id, Tags: slices.Clone(stored)})

	return nil
}

// Dataset returns a copy of the dataset record.
func (l *Ledger) Dataset(id uint64) (types.Dataset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ds, err := l.dataset("Dataset", id)
	if err != nil {
		return types.Dataset{}, err
	}

	return *ds, nil
}

// DatasetCount returns the number of dataset ids assigned so far.
func (l *Ledger) DatasetCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.datasetCount
}

// UserDatasets returns the ids listed by user, in listing order.
func (l *Ledger) UserDatasets(user string) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return cloneIDs(l.userDatasets[user])
}

// UserPurchases returns the ids purchased by user, in purchase order.
func (l *Ledger) UserPurchases(user string) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return cloneIDs(l.userPurchases[user])
}

// DatasetVersions returns the version history of a dataset, oldest first.
func (l *Ledger) DatasetVersions(id uint64) ([]types.Version, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.dataset("DatasetVersions", id); err != nil {
		return nil, err
	}

	out := slices.Clone(l.versions[id])
	if out == nil {
		out = []types.Version{}
	}

	return out, nil
}

// DatasetCategory returns the assigned category id, zero when none.
func (l *Ledger) DatasetCategory(id uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.dataset("DatasetCategory", id); err != nil {
		return 0, err
	}

	return l.datasetCategories[id], nil
}

// DatasetTags returns the current tag set.
func (l *Ledger) DatasetTags(id uint64) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.dataset("DatasetTags", id); err != nil {
		return nil, err
	}

	out := slices.Clone(l.datasetTags[id])
	if out == nil {
		out = []string{}
	}

	return out, nil
}

// DatasetDetails gathers everything stored about one dataset in a single consistent read.
func (l *Ledger) DatasetDetails(id uint64) (types.DatasetDetails, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ds, err := l.dataset("DatasetDetails", id)
	if err != nil {
		return types.DatasetDetails{}, err
	}

	tags := slices.Clone(l.datasetTags[id])
	if tags == nil {
		tags = []string{}
	}

	return types.DatasetDetails{
		Dataset:           *ds,
		CategoryID:        l.datasetCategories[id],
		Tags:              tags,
		Access:            l.accessControlLocked(id),
		SubscriptionPrice: l.subscriptionPrices[id],
		Rating:            l.ratingLocked(id),
		ReviewCount:       len(l.reviews[id]),
		VersionCount:      len(l.versions[id]),
	}, nil
}

func cloneIDs(ids []uint64) []uint64 {
	out := slices.Clone(ids)
	if out == nil {
		out = []uint64{}
	}

	return out
}
