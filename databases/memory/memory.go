// Package memory is an in-process implementation of databases.Store for
// local development and tests only.
//
// A single mutex serializes all access, and WithTransaction holds it for the
// whole callback, so unrelated cases never progress in parallel. Version
// checks on Replace still behave as they do in Mongo, which keeps the
// lifecycle's compare-and-swap paths testable. Production deployments use the
// Mongo store, where writes to different cases run concurrently.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/models"
)

type txKey struct{}

// Store keeps every collection in maps guarded by one mutex
type Store struct {
	mu            sync.Mutex
	rescues       map[string]models.RescueCase
	users         map[string]models.User
	entries       []models.LedgerEntry
	keys          map[string]int
	notifications []models.Notification
}

// New returns an empty store
func New() *Store {
	return &Store{
		rescues: map[string]models.RescueCase{},
		users:   map[string]models.User{},
		keys:    map[string]int{},
	}
}

// Rescues implements databases.Store
func (s *Store) Rescues() databases.RescueDatabase { return rescueDatabase{s} }

// Users implements databases.Store
func (s *Store) Users() databases.UserDatabase { return userDatabase{s} }

// Ledger implements databases.Store
func (s *Store) Ledger() databases.LedgerDatabase { return ledgerDatabase{s} }

// Notifications implements databases.Store
func (s *Store) Notifications() databases.NotificationDatabase { return notificationDatabase{s} }

// WithTransaction holds the store lock for the whole of fn and restores the
// previous state if fn fails
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the mutex unless ctx already runs inside a transaction of s
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	rescues       map[string]models.RescueCase
	users         map[string]models.User
	entries       int
	keys          map[string]int
	notifications int
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		rescues:       make(map[string]models.RescueCase, len(s.rescues)),
		users:         make(map[string]models.User, len(s.users)),
		entries:       len(s.entries),
		keys:          make(map[string]int, len(s.keys)),
		notifications: len(s.notifications),
	}
	for k, v := range s.rescues {
		snap.rescues[k] = v.Clone()
	}
	for k, v := range s.users {
		snap.users[k] = cloneUser(v)
	}
	for k, v := range s.keys {
		snap.keys[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.rescues = snap.rescues
	s.users = snap.users
	s.entries = s.entries[:snap.entries]
	s.keys = snap.keys
	s.notifications = s.notifications[:snap.notifications]
}

func cloneUser(u models.User) models.User {
	out := u
	if u.Details.HomeLocation != nil {
		loc := *u.Details.HomeLocation
		out.Details.HomeLocation = &loc
	}
	if u.Details.LinkedFacility != nil {
		f := *u.Details.LinkedFacility
		out.Details.LinkedFacility = &f
	}
	return out
}

type rescueDatabase struct{ s *Store }

func (r rescueDatabase) Insert(ctx context.Context, c *models.RescueCase) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.rescues[c.ID]; ok {
		return fmt.Errorf("rescue %s: %w", c.ID, databases.ErrDuplicate)
	}
	r.s.rescues[c.ID] = c.Clone()
	return nil
}

func (r rescueDatabase) FindByID(ctx context.Context, id string) (*models.RescueCase, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.rescues[id]
	if !ok {
		return nil, fmt.Errorf("rescue %s: %w", id, databases.ErrNotFound)
	}
	out := c.Clone()
	return &out, nil
}

func (r rescueDatabase) Find(ctx context.Context, q databases.CaseQuery) ([]models.RescueCase, error) {
	defer r.s.lock(ctx)()
	var out []models.RescueCase
	for _, c := range r.s.rescues {
		if matchCase(c, q) {
			out = append(out, c.Clone())
		}
	}
	sortCases(out, q.Sort)
	return databases.Paginate(out, q.Limit, q.Page), nil
}

func (r rescueDatabase) Count(ctx context.Context, q databases.CaseQuery) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for _, c := range r.s.rescues {
		if matchCase(c, q) {
			n++
		}
	}
	return n, nil
}

func (r rescueDatabase) Replace(ctx context.Context, c *models.RescueCase) error {
	defer r.s.lock(ctx)()
	cur, ok := r.s.rescues[c.ID]
	if !ok {
		return fmt.Errorf("rescue %s: %w", c.ID, databases.ErrNotFound)
	}
	if cur.Version != c.Version {
		return fmt.Errorf("rescue %s at version %d: %w", c.ID, c.Version, databases.ErrVersionConflict)
	}
	c.Version++
	r.s.rescues[c.ID] = c.Clone()
	return nil
}

func (r rescueDatabase) Delete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.rescues[id]; !ok {
		return fmt.Errorf("rescue %s: %w", id, databases.ErrNotFound)
	}
	delete(r.s.rescues, id)
	return nil
}

func matchCase(c models.RescueCase, q databases.CaseQuery) bool {
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if c.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Reporter != "" && c.Reporter != q.Reporter {
		return false
	}
	if q.AssignedOrg != "" && !ptrEquals(c.AssignedOrg, q.AssignedOrg) {
		return false
	}
	if q.AssignedFacility != "" && !ptrEquals(c.AssignedFacility, q.AssignedFacility) {
		return false
	}
	if q.AssignedCarrier != "" && !ptrEquals(c.AssignedCarrier, q.AssignedCarrier) {
		return false
	}
	if q.OrgUnassigned && c.AssignedOrg != nil {
		return false
	}
	if q.NotRejectedBy != "" && c.RejectedByOrg(q.NotRejectedBy) {
		return false
	}
	if q.CreatedBefore != nil && c.CreatedAt.After(*q.CreatedBefore) {
		return false
	}
	if q.RefundOutstanding && !(c.DepositHeld && !c.DepositReturned) {
		return false
	}
	return true
}

func ptrEquals(p *string, v string) bool {
	return p != nil && *p == v
}

func sortCases(cases []models.RescueCase, by databases.CaseSort) {
	key := func(c models.RescueCase) time.Time { return c.CreatedAt }
	desc := false
	switch by {
	case databases.SortCreatedDesc:
		desc = true
	case databases.SortEscalatedAsc:
		key = func(c models.RescueCase) time.Time {
			if c.EscalatedAt == nil {
				return c.CreatedAt
			}
			return *c.EscalatedAt
		}
	case databases.SortUpdatedDesc:
		key = func(c models.RescueCase) time.Time { return c.UpdatedAt }
		desc = true
	case databases.SortCompletedDesc:
		key = func(c models.RescueCase) time.Time {
			if c.CompletedAt == nil {
				return time.Time{}
			}
			return *c.CompletedAt
		}
		desc = true
	}
	sort.SliceStable(cases, func(i, j int) bool {
		a, b := key(cases[i]), key(cases[j])
		if a.Equal(b) {
			return cases[i].ID < cases[j].ID
		}
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

type userDatabase struct{ s *Store }

func (u userDatabase) Insert(ctx context.Context, user *models.User) error {
	defer u.s.lock(ctx)()
	user.Details.Email = strings.ToLower(user.Details.Email)
	for _, existing := range u.s.users {
		if existing.ID == user.ID || existing.Details.Email == user.Details.Email {
			return fmt.Errorf("user %s: %w", user.Details.Email, databases.ErrDuplicate)
		}
	}
	u.s.users[user.ID] = cloneUser(*user)
	return nil
}

func (u userDatabase) FindByID(ctx context.Context, id string) (*models.User, error) {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, databases.ErrNotFound)
	}
	out := cloneUser(user)
	return &out, nil
}

func (u userDatabase) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	defer u.s.lock(ctx)()
	email = strings.ToLower(email)
	for _, user := range u.s.users {
		if user.Details.Email == email {
			out := cloneUser(user)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, databases.ErrNotFound)
}

func (u userDatabase) Find(ctx context.Context, q databases.UserQuery) ([]models.User, error) {
	defer u.s.lock(ctx)()
	var out []models.User
	for _, user := range u.s.users {
		if q.Role != models.RoleUnknown && user.Details.Role != q.Role {
			continue
		}
		if q.Approved != nil && user.Details.Approved != *q.Approved {
			continue
		}
		if q.LinkedFacility != "" && !ptrEquals(user.Details.LinkedFacility, q.LinkedFacility) {
			continue
		}
		out = append(out, cloneUser(user))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Details.CreatedAt, out[j].Details.CreatedAt
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (u userDatabase) UpdateProfile(ctx context.Context, id string, p models.ProfileUpdate) (*models.User, error) {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, databases.ErrNotFound)
	}
	if p.Name != nil {
		user.Details.Name = *p.Name
	}
	if p.Phone != nil {
		user.Details.Phone = *p.Phone
	}
	if p.HomeLocation != nil {
		loc := *p.HomeLocation
		user.Details.HomeLocation = &loc
	}
	if p.OrgName != nil {
		user.Details.OrgName = *p.OrgName
	}
	if p.Address != nil {
		user.Details.Address = *p.Address
	}
	if p.VehicleNumber != nil {
		user.Details.VehicleNumber = *p.VehicleNumber
	}
	if p.Capacity != nil {
		user.Details.Capacity = *p.Capacity
	}
	user.Details.UpdatedAt = time.Now().UTC()
	user.Version++
	u.s.users[id] = user
	out := cloneUser(user)
	return &out, nil
}

func (u userDatabase) SetApproved(ctx context.Context, id string, approved bool) (*models.User, error) {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, databases.ErrNotFound)
	}
	user.Details.Approved = approved
	user.Details.UpdatedAt = time.Now().UTC()
	u.s.users[id] = user
	out := cloneUser(user)
	return &out, nil
}

func (u userDatabase) AdjustBalance(ctx context.Context, id string, delta int64) (int64, error) {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", id, databases.ErrNotFound)
	}
	next := user.Details.WalletBalance + delta
	if next < 0 {
		return 0, fmt.Errorf("user %s: %w", id, databases.ErrInsufficientFunds)
	}
	user.Details.WalletBalance = next
	u.s.users[id] = user
	return next, nil
}

func (u userDatabase) ClaimCarrier(ctx context.Context, id string) error {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok || user.Details.Role != models.RoleCarrier || !user.Details.Available {
		return fmt.Errorf("carrier %s: %w", id, databases.ErrCarrierUnavailable)
	}
	user.Details.Available = false
	u.s.users[id] = user
	return nil
}

func (u userDatabase) ReleaseCarrier(ctx context.Context, id string) error {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		return fmt.Errorf("carrier %s: %w", id, databases.ErrNotFound)
	}
	user.Details.Available = true
	u.s.users[id] = user
	return nil
}

type ledgerDatabase struct{ s *Store }

func (l ledgerDatabase) Append(ctx context.Context, e *models.LedgerEntry) error {
	defer l.s.lock(ctx)()
	if _, ok := l.s.keys[e.IdempotencyKey]; ok {
		return fmt.Errorf("ledger key %s: %w", e.IdempotencyKey, databases.ErrDuplicate)
	}
	l.s.keys[e.IdempotencyKey] = len(l.s.entries)
	l.s.entries = append(l.s.entries, *e)
	return nil
}

func (l ledgerDatabase) FindByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	defer l.s.lock(ctx)()
	i, ok := l.s.keys[key]
	if !ok {
		return nil, fmt.Errorf("ledger key %s: %w", key, databases.ErrNotFound)
	}
	out := l.s.entries[i]
	return &out, nil
}

func (l ledgerDatabase) FindByActor(ctx context.Context, actor string, limit int64) ([]models.LedgerEntry, error) {
	defer l.s.lock(ctx)()
	var out []models.LedgerEntry
	for i := len(l.s.entries) - 1; i >= 0; i-- {
		if l.s.entries[i].Actor != actor {
			continue
		}
		out = append(out, l.s.entries[i])
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

type notificationDatabase struct{ s *Store }

func (n notificationDatabase) Insert(ctx context.Context, notification *models.Notification) error {
	defer n.s.lock(ctx)()
	n.s.notifications = append(n.s.notifications, *notification)
	return nil
}

func (n notificationDatabase) FindByRecipient(ctx context.Context, recipient string, limit int64) ([]models.Notification, error) {
	defer n.s.lock(ctx)()
	var out []models.Notification
	for i := len(n.s.notifications) - 1; i >= 0; i-- {
		if n.s.notifications[i].Recipient != recipient {
			continue
		}
		out = append(out, n.s.notifications[i])
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (n notificationDatabase) MarkRead(ctx context.Context, id, recipient string) error {
	defer n.s.lock(ctx)()
	for i := range n.s.notifications {
		if n.s.notifications[i].ID == id && n.s.notifications[i].Recipient == recipient {
			n.s.notifications[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, databases.ErrNotFound)
}
