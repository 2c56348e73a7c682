package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-tools/ledger-go/types"
)

func TestListDataset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.list(t, alice, 0)
	second, err := h.l.ListDataset(ctx, alice, types.ListDatasetRequest{
		ContentHash: "QmSame",
		Price:       500,
		Description: "traffic counts",
		SizeBytes:   2048,
		DataType:    "parquet",
	})
	require.NoError(t, err)
	third, err := h.l.ListDataset(ctx, bob, types.ListDatasetRequest{ContentHash: "QmSame"})
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 3}, []uint64{first, second, third})
	assert.Equal(t, uint64(3), h.l.DatasetCount())

	ds, err := h.l.Dataset(second)
	require.NoError(t, err)
	assert.Equal(t, types.Dataset{
		ID:          2,
		Owner:       alice,
		ContentHash: "QmSame",
		Price:       500,
		IsActive:    true,
		Description: "traffic counts",
		SizeBytes:   2048,
		DataType:    "parquet",
	}, ds)

	assert.Equal(t, []uint64{1, 2}, h.l.UserDatasets(alice))
	assert.Equal(t, []uint64{3}, h.l.UserDatasets(bob))
	assert.Empty(t, h.l.UserDatasets(carol))
}

func TestListDatasetRequiresCaller(t *testing.T) {
	h := newHarness(t)

	_, err := h.l.ListDataset(context.Background(), "", types.ListDatasetRequest{ContentHash: "Qm"})
	assert.True(t, IsUnauthorized(err))
	assert.Zero(t, h.l.DatasetCount())
}

func TestBatchListDatasets(t *testing.T) {
	h := newHarness(t)
	h.list(t, carol, 1)

	ids, err := h.l.BatchListDatasets(context.Background(), alice, types.BatchListRequest{
		ContentHashes: []string{"QmA", "QmB", "QmC"},
		Prices:        []uint64{10, 20, 30},
		Descriptions:  []string{"a", "b", "c"},
		Sizes:         []uint64{1, 2, 3},
		DataTypes:     []string{"csv", "json", "csv"},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 4}, ids)

	for i, id := range ids {
		ds, err := h.l.Dataset(id)
		require.NoError(t, err)
		assert.Equal(t, alice, ds.Owner)
		assert.Equal(t, uint64(10*(i+1)), ds.Price)
	}
	assert.Equal(t, ids, h.l.UserDatasets(alice))
}

func TestBatchListDatasetsLengthMismatch(t *testing.T) {
	h := newHarness(t)

	_, err := h.l.BatchListDatasets(context.Background(), alice, types.BatchListRequest{
		ContentHashes: []string{"QmA", "QmB"},
		Prices:        []uint64{10},
		Descriptions:  []string{"a", "b"},
		Sizes:         []uint64{1, 2},
		DataTypes:     []string{"csv", "csv"},
	})
	require.True(t, IsInvalidInput(err))

	assert.Zero(t, h.l.DatasetCount())
	assert.Empty(t, h.l.UserDatasets(alice))
	assert.Empty(t, h.pub.Events())
}

func TestOwnerOnlyOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	catID := h.category(t)
	ds := h.list(t, alice, 10)

	ops := map[string]func(caller string, id uint64) error{
		"UpdateDatasetPrice": func(caller string, id uint64) error {
			return h.l.UpdateDatasetPrice(ctx, caller, id, 99)
		},
		"DeactivateDataset": func(caller string, id uint64) error {
			return h.l.DeactivateDataset(ctx, caller, id)
		},
		"AddDatasetVersion": func(caller string, id uint64) error {
			_, err := h.l.AddDatasetVersion(ctx, caller, id, types.AddVersionRequest{ContentHash: "QmNew"})
			return err
		},
		"UpdateDatasetCategory": func(caller string, id uint64) error {
			return h.l.UpdateDatasetCategory(ctx, caller, id, catID)
		},
		"UpdateDatasetTags": func(caller string, id uint64) error {
			return h.l.UpdateDatasetTags(ctx, caller, id, []string{"x"})
		},
		"SetSubscriptionPrice": func(caller string, id uint64) error {
			return h.l.SetSubscriptionPrice(ctx, caller, id, 5)
		},
		"SetDatasetAccess": func(caller string, id uint64) error {
			return h.l.SetDatasetAccess(ctx, caller, id, true)
		},
		"GrantAccess": func(caller string, id uint64) error {
			return h.l.GrantAccess(ctx, caller, id, carol)
		},
		"RevokeAccess": func(caller string, id uint64) error {
			return h.l.RevokeAccess(ctx, caller, id, carol)
		},
		"SetAllowedGroups": func(caller string, id uint64) error {
			return h.l.SetAllowedGroups(ctx, caller, id, []string{"research"})
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.True(t, IsUnauthorized(op(bob, ds)), "non-owner")
			assert.True(t, IsNotFound(op(alice, 0)), "id zero")
			assert.True(t, IsNotFound(op(alice, 42)), "unassigned id")
		})
	}

	before, err := h.l.Dataset(ds)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), before.Price)
	assert.True(t, before.IsActive)
}

func (h *harness) category(t *testing.T) uint64 {
	t.Helper()

	id, err := h.l.AddCategory(context.Background(), testOperator, "climate", "climate data")
	require.NoError(t, err)

	return id
}

func TestUpdateDatasetPrice(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, alice, 10)

	require.NoError(t, h.l.UpdateDatasetPrice(context.Background(), alice, id, 0))

	ds, err := h.l.Dataset(id)
	require.NoError(t, err)
	assert.Zero(t, ds.Price)

	ev := h.pub.Last()
	assert.Equal(t, types.EventDatasetPriceUpdated, ev.Type)
	assert.Equal(t, id, ev.DatasetID)
}

func TestDeactivateDatasetGatesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 10)
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 5))
	h.purchase(t, bob, id, 10)

	require.NoError(t, h.l.DeactivateDataset(ctx, alice, id))
	require.NoError(t, h.l.DeactivateDataset(ctx, alice, id), "deactivation is idempotent")

	_, err := h.l.AddDatasetVersion(ctx, alice, id, types.AddVersionRequest{ContentHash: "QmNew"})
	assert.True(t, IsInactive(err), "version")

	_, err = h.l.PurchaseDataset(ctx, carol, id, 10)
	assert.True(t, IsInactive(err), "purchase")

	_, err = h.l.Subscribe(ctx, carol, id, 1, 5)
	assert.True(t, IsInactive(err), "subscribe")

	err = h.l.ReviewDataset(ctx, bob, id, 5, "good")
	assert.True(t, IsInactive(err), "review")

	ds, err := h.l.Dataset(id)
	require.NoError(t, err)
	assert.False(t, ds.IsActive)
	assert.Equal(t, alice, ds.Owner)

	// Metadata updates stay available to the owner.
	require.NoError(t, h.l.UpdateDatasetPrice(ctx, alice, id, 20))
	require.NoError(t, h.l.UpdateDatasetTags(ctx, alice, id, []string{"archived"}))
}

func TestAddDatasetVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 10)

	v1, err := h.l.AddDatasetVersion(ctx, alice, id, types.AddVersionRequest{
		ContentHash: "QmV1",
		Description: "first revision",
		ChangeLog:   "fixed units",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	h.clock.Advance(time.Hour)
	v2, err := h.l.AddDatasetVersion(ctx, alice, id, types.AddVersionRequest{
		ContentHash: "QmV2",
		Description: "second revision",
		ChangeLog:   "added 2025",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	ds, err := h.l.Dataset(id)
	require.NoError(t, err)
	assert.Equal(t, "QmV2", ds.ContentHash)
	assert.Equal(t, "second revision", ds.Description)

	versions, err := h.l.DatasetVersions(id)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "QmV1", versions[0].ContentHash)
	assert.Equal(t, "fixed units", versions[0].ChangeLog)
	assert.Equal(t, h.clock.Now(), versions[1].Timestamp)

	ev := h.pub.Last()
	assert.Equal(t, types.EventDatasetVersionAdded, ev.Type)
	assert.Equal(t, 2, ev.Version)

	// Returned history is a copy.
	versions[0].ContentHash = "tampered"
	again, err := h.l.DatasetVersions(id)
	require.NoError(t, err)
	assert.Equal(t, "QmV1", again[0].ContentHash)
}

func TestDatasetVersionsEmpty(t *testing.T) {
	h := newHarness(t)
	id := h.list(t, alice, 10)

	versions, err := h.l.DatasetVersions(id)
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)

	_, err = h.l.DatasetVersions(99)
	assert.True(t, IsNotFound(err))
}

func TestUpdateDatasetCategory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 10)

	climate := h.category(t)
	finance, err := h.l.AddCategory(ctx, testOperator, "finance", "")
	require.NoError(t, err)

	cat, err := h.l.DatasetCategory(id)
	require.NoError(t, err)
	assert.Zero(t, cat)

	require.NoError(t, h.l.UpdateDatasetCategory(ctx, alice, id, climate))
	require.NoError(t, h.l.UpdateDatasetCategory(ctx, alice, id, finance))

	cat, err = h.l.DatasetCategory(id)
	require.NoError(t, err)
	assert.Equal(t, finance, cat)

	err = h.l.UpdateDatasetCategory(ctx, alice, id, 77)
	assert.True(t, IsNotFound(err))

	require.NoError(t, h.l.DeactivateCategory(ctx, testOperator, climate))
	err = h.l.UpdateDatasetCategory(ctx, alice, id, climate)
	assert.True(t, IsInactive(err))

	cat, err = h.l.DatasetCategory(id)
	require.NoError(t, err)
	assert.Equal(t, finance, cat)
}

func TestUpdateDatasetTagsReplaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 10)

	input := []string{"weather", "hourly"}
	require.NoError(t, h.l.UpdateDatasetTags(ctx, alice, id, input))
	input[0] = "mutated"

	tags, err := h.l.DatasetTags(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather", "hourly"}, tags)

	require.NoError(t, h.l.UpdateDatasetTags(ctx, alice, id, []string{"daily"}))
	tags, err = h.l.DatasetTags(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily"}, tags)

	require.NoError(t, h.l.UpdateDatasetTags(ctx, alice, id, nil))
	tags, err = h.l.DatasetTags(id)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestDatasetDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.list(t, alice, 100)
	cat := h.category(t)

	require.NoError(t, h.l.UpdateDatasetCategory(ctx, alice, id, cat))
	require.NoError(t, h.l.UpdateDatasetTags(ctx, alice, id, []string{"geo"}))
	require.NoError(t, h.l.SetSubscriptionPrice(ctx, alice, id, 30))
	require.NoError(t, h.l.GrantAccess(ctx, alice, id, carol))
	h.purchase(t, bob, id, 100)
	require.NoError(t, h.l.ReviewDataset(ctx, bob, id, 4, "solid"))

	details, err := h.l.DatasetDetails(id)
	require.NoError(t, err)
	assert.Equal(t, id, details.ID)
	assert.Equal(t, cat, details.CategoryID)
	assert.Equal(t, []string{"geo"}, details.Tags)
	assert.Equal(t, uint64(30), details.SubscriptionPrice)
	assert.Equal(t, uint64(4), details.Rating)
	assert.Equal(t, 1, details.ReviewCount)
	assert.Zero(t, details.VersionCount)
	assert.Equal(t, []string{carol}, details.Access.AllowedUsers)

	_, err = h.l.DatasetDetails(55)
	assert.True(t, IsNotFound(err))
}
