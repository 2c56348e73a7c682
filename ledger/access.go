package ledger

import (
	"context"
	"slices"
	"sort"

	"github.com/helix-tools/ledger-go/types"
)

type accessState struct {
	isPublic bool
	allowed  map[string]struct{}
	groups   []string
}

// accessFor returns the mutable access record for id, creating it on first use.
func (l *Ledger) accessFor(id uint64) *accessState {
	acl, ok := l.access[id]
	if !ok {
		acl = &accessState{allowed: make(map[string]struct{})}
		l.access[id] = acl
	}

	return acl
}

// SetDatasetAccess switches the dataset between public and private. Owner only.
func (l *Ledger) SetDatasetAccess(ctx context.Context, caller string, id uint64, isPublic bool) (err error) {
	const op = "SetDatasetAccess"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if _, err := l.ownedDataset(op, caller, id); err != nil {
		return err
	}

	l.accessFor(id).isPublic = isPublic
	l.emit(ctx, types.Event{Type: types.EventAccessUpdated, Actor: caller, DatasetID: id, IsPublic: &isPublic})

	return nil
}

// GrantAccess adds user to the dataset's allow-list. Owner only.
func (l *Ledger) GrantAccess(ctx context.Context, caller string, id uint64, user string) (err error) {
	const op = "GrantAccess"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if _, err := l.ownedDataset(op, caller, id); err != nil {
		return err
	}
	if user == "" {
		return newError(ErrInvalidInput, op, "user identity is required")
	}

	l.accessFor(id).allowed[user] = struct{}{}
	l.emit(ctx, types.Event{Type: types.EventAccessGranted, Actor: caller, DatasetID: id, User: user})

	return nil
}

// RevokeAccess removes user from the dataset's allow-list. Revoking a user
// that was never granted succeeds. Owner only.
func (l *Ledger) RevokeAccess(ctx context.Context, caller string, id uint64, user string) (err error) {
	const op = "RevokeAccess"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if _, err := l.ownedDataset(op, caller, id); err != nil {
		return err
	}

	if acl, ok := l.access[id]; ok {
		delete(acl.allowed, user)
	}
	l.emit(ctx, types.Event{Type: types.EventAccessRevoked, Actor: caller, DatasetID: id, User: user})

	return nil
}

// SetAllowedGroups replaces the dataset's allowed group names. The list is
// stored and reported but HasAccess does not consult it. Owner only.
func (l *Ledger) SetAllowedGroups(ctx context.Context, caller string, id uint64, groups []string) (err error) {
	const op = "SetAllowedGroups"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if _, err := l.ownedDataset(op, caller, id); err != nil {
		return err
	}

	l.accessFor(id).groups = slices.Clone(groups)
	l.emit(ctx, types.Event{Type: types.EventAccessUpdated, Actor: caller, DatasetID: id, Groups: slices.Clone(groups)})

	return nil
}

// AssignUserGroup records user as a member of group in the global group
// registry. Operator only.
func (l *Ledger) AssignUserGroup(ctx context.Context, caller, user, group string) (err error) {
	const op = "AssignUserGroup"

	defer l.publish(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.record(op, caller, err) }()

	if caller != l.operator {
		return newError(ErrUnauthorized, op, "only the platform operator may assign groups")
	}
	if user == "" || group == "" {
		return newError(ErrInvalidInput, op, "user and group are required")
	}

	if !slices.Contains(l.userGroups[user], group) {
		l.userGroups[user] = append(l.userGroups[user], group)
	}
	l.emit(ctx, types.Event{Type: types.EventUserGroupAssigned, Actor: caller, User: user, Group: group})

	return nil
}

// HasAccess reports whether user may read the dataset's content: the owner
// always may, anyone may when the dataset is public, otherwise only
// allow-listed users. Unknown datasets grant nothing. Pure read.
func (l *Ledger) HasAccess(id uint64, user string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ds, ok := l.datasets[id]
	if !ok {
		return false
	}
	if user != "" && ds.Owner == user {
		return true
	}

	acl, ok := l.access[id]
	if !ok {
		return false
	}
	if acl.isPublic {
		return true
	}
	_, allowed := acl.allowed[user]

	return allowed
}

// AccessControl returns the dataset's access record.
func (l *Ledger) AccessControl(id uint64) (types.AccessControl, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.dataset("AccessControl", id); err != nil {
		return types.AccessControl{}, err
	}

	return l.accessControlLocked(id), nil
}

func (l *Ledger) accessControlLocked(id uint64) types.AccessControl {
	out := types.AccessControl{AllowedUsers: []string{}, AllowedGroups: []string{}}

	acl, ok := l.access[id]
	if !ok {
		return out
	}

	out.IsPublic = acl.isPublic
	for user := range acl.allowed {
		out.AllowedUsers = append(out.AllowedUsers, user)
	}
	sort.Strings(out.AllowedUsers)
	out.AllowedGroups = append(out.AllowedGroups, acl.groups...)

	return out
}

// UserGroups returns the groups user has been assigned to, in assignment order.
func (l *Ledger) UserGroups(user string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := slices.Clone(l.userGroups[user])
	if out == nil {
		out = []string{}
	}

	return out
}
