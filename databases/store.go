package databases

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/models"
)

// Store errors. Implementations wrap these so callers can use errors.Is.
var (
	ErrNotFound           = errors.New("document not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrDuplicate          = errors.New("duplicate key")
	ErrInsufficientFunds  = errors.New("insufficient wallet balance")
	ErrCarrierUnavailable = errors.New("carrier is not available")
)

// CaseSort orders case listings
type CaseSort int

// Case orderings
const (
	SortCreatedAsc CaseSort = iota
	SortCreatedDesc
	SortEscalatedAsc
	SortUpdatedDesc
	SortCompletedDesc
)

// CaseQuery selects rescue cases. Zero fields do not filter.
type CaseQuery struct {
	Statuses         []models.CaseStatus
	Reporter         string
	AssignedOrg      string
	AssignedFacility string
	AssignedCarrier  string
	// OrgUnassigned keeps cases with no accepting org
	OrgUnassigned bool
	// NotRejectedBy drops cases the given org declined
	NotRejectedBy string
	CreatedBefore *time.Time
	// RefundOutstanding keeps cases whose deposit was taken but not returned
	RefundOutstanding bool
	Sort              CaseSort
	Limit             int64
	// Page is 1-based and only applies with a Limit
	Page int64
}

// UserQuery selects users. Zero fields do not filter.
type UserQuery struct {
	Role           models.Role
	Approved       *bool
	LinkedFacility string
	Limit          int64
}

// Transactor runs fn atomically. Nested calls join the outer transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store groups the collections used by the rescue workflow
type Store interface {
	Transactor
	Rescues() RescueDatabase
	Users() UserDatabase
	Ledger() LedgerDatabase
	Notifications() NotificationDatabase
}

type mongoStore struct {
	db            DatabaseHelper
	rescues       RescueDatabase
	users         UserDatabase
	ledger        LedgerDatabase
	notifications NotificationDatabase
}

// NewStore builds the mongo backed store. Transactions need a replica set.
func NewStore(db DatabaseHelper) Store {
	return &mongoStore{
		db:            db,
		rescues:       NewRescueDatabase(db),
		users:         NewUserDatabase(db),
		ledger:        NewLedgerDatabase(db),
		notifications: NewNotificationDatabase(db),
	}
}

func (s *mongoStore) Rescues() RescueDatabase             { return s.rescues }
func (s *mongoStore) Users() UserDatabase                 { return s.users }
func (s *mongoStore) Ledger() LedgerDatabase              { return s.ledger }
func (s *mongoStore) Notifications() NotificationDatabase { return s.notifications }

func (s *mongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the indexes the store relies on for uniqueness and
// for the escalation and visibility queries
func EnsureIndexes(ctx context.Context, db DatabaseHelper) error {
	for name, idx := range indexes() {
		if err := db.Collection(name).CreateIndexes(ctx, idx); err != nil {
			zap.S().Errorw("failed to create indexes", "collection", name, "error", err)
			return err
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
