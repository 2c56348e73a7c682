package api

import (
	"context"
	"sync"
	"testing"
)

// CleanupFunc defines a cleanup function that is called during test teardown.
type CleanupFunc func(ctx context.Context) error

// CleanupRegistry tracks resources created during tests for cleanup.
// Cleanup functions are executed in LIFO (Last-In-First-Out) order,
// ensuring dependent resources are cleaned up before their dependencies.
type CleanupRegistry struct {
	mu       sync.Mutex
	cleanups []CleanupFunc
	t        testing.TB
}

// NewCleanupRegistry creates a new cleanup registry for a test.
func NewCleanupRegistry(t testing.TB) *CleanupRegistry {
	return &CleanupRegistry{
		cleanups: make([]CleanupFunc, 0),
		t:        t,
	}
}

// Register adds a cleanup function to be called during teardown.
func (r *CleanupRegistry) Register(fn CleanupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cleanups = append(r.cleanups, fn)
}

// RunAll executes all cleanup functions in reverse order (LIFO).
// Errors are logged but do not stop subsequent cleanups.
func (r *CleanupRegistry) RunAll(ctx context.Context) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
			r.t.Logf("Cleanup error: %v", err)
		}
	}

	r.cleanups = nil

	return errs
}

// Count returns the number of registered cleanup functions.
func (r *CleanupRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.cleanups)
}

// RegisterDatasetCleanup delists a dataset. Datasets are never deleted.
func (r *CleanupRegistry) RegisterDatasetCleanup(client *Client, datasetID uint64) {
	r.Register(func(ctx context.Context) error {
		r.t.Logf("Cleaning up dataset: %d", datasetID)

		err := client.DeactivateDataset(ctx, datasetID)
		if err != nil && !IsNotFoundError(err) && !IsConflictError(err) {
			return err
		}

		return nil
	})
}

// RegisterSubscriptionCleanup cancels the client identity's subscription.
func (r *CleanupRegistry) RegisterSubscriptionCleanup(client *Client, datasetID uint64) {
	r.Register(func(ctx context.Context) error {
		r.t.Logf("Cleaning up subscription: %d/%s", datasetID, client.Identity())

		err := client.CancelSubscription(ctx, datasetID)
		if err != nil && !IsNotFoundError(err) {
			return err
		}

		return nil
	})
}

// RegisterGrantCleanup revokes a direct access grant.
func (r *CleanupRegistry) RegisterGrantCleanup(client *Client, datasetID uint64, user string) {
	r.Register(func(ctx context.Context) error {
		r.t.Logf("Cleaning up access grant: %d/%s", datasetID, user)

		return client.RevokeAccess(ctx, datasetID, user)
	})
}

// RegisterCategoryCleanup deactivates a category. The client must act as the operator.
func (r *CleanupRegistry) RegisterCategoryCleanup(client *Client, categoryID uint64) {
	r.Register(func(ctx context.Context) error {
		r.t.Logf("Cleaning up category: %d", categoryID)

		err := client.DeactivateCategory(ctx, categoryID)
		if err != nil && !IsNotFoundError(err) && !IsConflictError(err) {
			return err
		}

		return nil
	})
}
