package ledger

import (
	"context"

	"github.com/helix-tools/ledger-go/types"
)

// AddCategory creates a platform category and returns its id. Operator only.
func (l *Ledger) AddCategory(ctx context.Context, caller, name, description string) (id uint64, err error) {
	const op = "AddCategory"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if caller != l.operator {
		return 0, newError(ErrUnauthorized, op, "only the platform operator may add categories")
	}

	l.categoryCount++
	id = l.categoryCount
	l.categories[id] = &types.Category{
		ID:          id,
		Name:        name,
		Description: description,
		IsActive:    true,
	}
	l.metrics.categories.Set(float64(l.categoryCount))

	l.emit(ctx, types.Event{Type: types.EventCategoryAdded, Actor: caller, CategoryID: id, Name: name})

	return id, nil
}

// DeactivateCategory stops a category from being assigned. Datasets already
// assigned to it keep the reference. Operator only.
func (l *Ledger) DeactivateCategory(ctx context.Context, caller string, id uint64) (err error) {
	const op = "DeactivateCategory"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if caller != l.operator {
		return newError(ErrUnauthorized, op, "only the platform operator may deactivate categories")
	}

	cat, ok := l.categories[id]
	if !ok {
		return newError(ErrNotFound, op, "category %d does not exist", id)
	}

	cat.IsActive = false
	l.emit(ctx, types.Event{Type: types.EventCategoryDeactivated, Actor: caller, CategoryID: id})

	return nil
}

// Category returns a copy of the category record.
func (l *Ledger) Category(id uint64) (types.Category, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cat, ok := l.categories[id]
	if !ok {
		return types.Category{}, newError(ErrNotFound, "Category", "category %d does not exist", id)
	}

	return *cat, nil
}

// CategoryCount returns the number of category ids assigned so far.
func (l *Ledger) CategoryCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.categoryCount
}
