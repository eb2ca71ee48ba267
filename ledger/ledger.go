// Package ledger moves money between wallets and the append-only
// transaction log. Every balance change writes exactly one entry and the
// cached wallet balance always equals the sum of the actor's entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/models"
)

// HistoryLimit bounds the wallet history returned to users
const HistoryLimit = 50

// DepositKey is the idempotency key of the deposit taken for a case
func DepositKey(caseID string) string { return "deposit:" + caseID }

// RefundKey is the idempotency key of the deposit refund for a case
func RefundKey(caseID string) string { return "refund:" + caseID }

// TopUpKey is the idempotency key of a gateway payment credit
func TopUpKey(paymentRef string) string { return "topup:" + paymentRef }

// Ledger applies wallet movements atomically with their log entries
type Ledger struct {
	store databases.Store
	now   func() time.Time
}

// New returns a ledger over store. A nil clock uses time.Now.
func New(store databases.Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// Movement describes one wallet change
type Movement struct {
	Actor            string
	Amount           int64
	RelatedCase      *string
	Key              string
	Description      string
	PaymentReference string
}

// Debit withdraws m.Amount. It fails with models.ErrInsufficientFunds
// without side effects when the balance is too small.
func (l *Ledger) Debit(ctx context.Context, m Movement) (*models.LedgerEntry, error) {
	return l.apply(ctx, models.EntryDebit, -m.Amount, m)
}

// Credit adds m.Amount, used for gateway top-ups
func (l *Ledger) Credit(ctx context.Context, m Movement) (*models.LedgerEntry, error) {
	return l.apply(ctx, models.EntryCredit, m.Amount, m)
}

// Refund returns a held deposit. A second refund with the same key fails
// with models.ErrAlreadyProcessed.
func (l *Ledger) Refund(ctx context.Context, m Movement) (*models.LedgerEntry, error) {
	return l.apply(ctx, models.EntryRefund, m.Amount, m)
}

func (l *Ledger) apply(ctx context.Context, kind models.EntryKind, delta int64, m Movement) (*models.LedgerEntry, error) {
	if m.Amount <= 0 {
		return nil, models.Errorf(models.KindBadRequest, "amount must be positive, got %d", m.Amount)
	}
	if m.Key == "" {
		return nil, models.Errorf(models.KindBadRequest, "ledger movement needs an idempotency key")
	}

	var entry *models.LedgerEntry
	err := l.store.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := l.store.Ledger().FindByKey(ctx, m.Key); err == nil {
			return databases.ErrDuplicate
		} else if !errors.Is(err, databases.ErrNotFound) {
			return err
		}

		balance, err := l.store.Users().AdjustBalance(ctx, m.Actor, delta)
		if err != nil {
			return err
		}
		entry = &models.LedgerEntry{
			ID:               primitive.NewObjectID().Hex(),
			Actor:            m.Actor,
			Kind:             kind,
			Amount:           delta,
			RelatedCase:      m.RelatedCase,
			ResultingBalance: balance,
			Description:      m.Description,
			IdempotencyKey:   m.Key,
			PaymentReference: m.PaymentReference,
			CreatedAt:        l.now().UTC(),
		}
		return l.store.Ledger().Append(ctx, entry)
	})
	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, databases.ErrDuplicate):
		return nil, models.Errorf(models.KindAlreadyProcessed, "%s already applied", m.Key)
	case errors.Is(err, databases.ErrInsufficientFunds):
		return nil, models.Errorf(models.KindInsufficientFunds, "insufficient wallet balance for %d", m.Amount)
	case errors.Is(err, databases.ErrNotFound):
		return nil, models.Errorf(models.KindNotFound, "wallet owner not found")
	default:
		return nil, fmt.Errorf("ledger %s %s: %w", kind, m.Key, err)
	}
}

// Balance returns the cached wallet balance of actor
func (l *Ledger) Balance(ctx context.Context, actor string) (int64, error) {
	u, err := l.store.Users().FindByID(ctx, actor)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			return 0, models.Errorf(models.KindNotFound, "wallet owner not found")
		}
		return 0, err
	}
	return u.Details.WalletBalance, nil
}

// History returns the newest entries of actor
func (l *Ledger) History(ctx context.Context, actor string) ([]models.LedgerEntry, error) {
	return l.store.Ledger().FindByActor(ctx, actor, HistoryLimit)
}

// Verify recomputes the balance of actor from its entries and checks each
// entry's resulting balance against the running sum
func (l *Ledger) Verify(ctx context.Context, actor string) (*models.LedgerAudit, error) {
	cached, err := l.Balance(ctx, actor)
	if err != nil {
		return nil, err
	}
	entries, err := l.store.Ledger().FindByActor(ctx, actor, 0)
	if err != nil {
		return nil, err
	}

	audit := &models.LedgerAudit{Actor: actor, CachedBalance: cached, Entries: len(entries), ChainValid: true}
	for i := len(entries) - 1; i >= 0; i-- {
		audit.LedgerBalance += entries[i].Amount
		if entries[i].ResultingBalance != audit.LedgerBalance {
			audit.ChainValid = false
		}
	}
	audit.Consistent = audit.ChainValid && audit.LedgerBalance == cached
	if !audit.Consistent {
		zap.S().Warnw("wallet does not match ledger",
			"user", actor,
			"walletBalance", cached,
			"ledgerBalance", audit.LedgerBalance,
			"chainValid", audit.ChainValid)
	}
	return audit, nil
}
