package databases

// go generate: mockery --name LedgerDatabase

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawsaarthi/rescue-api/models"
)

const ledgerName = "wallettransactions"

// LedgerDatabase contains the methods to use with the append-only wallet
// transaction log
type LedgerDatabase interface {
	// Append stores e. A reused idempotency key fails with ErrDuplicate.
	Append(ctx context.Context, e *models.LedgerEntry) error
	FindByKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	// FindByActor returns the newest entries first. A zero limit returns all.
	FindByActor(ctx context.Context, actor string, limit int64) ([]models.LedgerEntry, error)
}

type ledgerDatabase struct {
	db DatabaseHelper
}

// NewLedgerDatabase initializes a new instance of ledger database with the provided db connection
func NewLedgerDatabase(db DatabaseHelper) LedgerDatabase {
	return &ledgerDatabase{
		db: db,
	}
}

func (l *ledgerDatabase) Append(ctx context.Context, e *models.LedgerEntry) error {
	if _, err := l.db.Collection(ledgerName).InsertOne(ctx, e); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("ledger key %s: %w", e.IdempotencyKey, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (l *ledgerDatabase) FindByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{}
	if err := l.db.Collection(ledgerName).FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(entry); err != nil {
		return nil, fmt.Errorf("ledger key %s: %w", key, err)
	}
	return entry, nil
}

func (l *ledgerDatabase) FindByActor(ctx context.Context, actor string, limit int64) ([]models.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	var entries []models.LedgerEntry
	if err := l.db.Collection(ledgerName).Find(ctx, bson.M{"user": actor}, opts).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}
