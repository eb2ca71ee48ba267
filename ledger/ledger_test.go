package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawsaarthi/rescue-api/databases/memory"
	"github.com/pawsaarthi/rescue-api/models"
)

func newLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Users().Insert(context.Background(), &models.User{
		ID:      "u1",
		Details: models.UserDetails{Email: "u1@example.com", Role: models.RoleCitizen, Approved: true},
	}))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return New(s, func() time.Time { return clock }), s
}

func TestCreditThenDebit(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	e, err := l.Credit(ctx, Movement{Actor: "u1", Amount: 25, Key: TopUpKey("pi_1"), PaymentReference: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(25), e.ResultingBalance)
	assert.Equal(t, models.EntryCredit, e.Kind)

	caseID := "c1"
	e, err = l.Debit(ctx, Movement{Actor: "u1", Amount: 20, RelatedCase: &caseID, Key: DepositKey(caseID)})
	require.NoError(t, err)
	assert.Equal(t, int64(-20), e.Amount)
	assert.Equal(t, int64(5), e.ResultingBalance)

	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal)
}

func TestDebitInsufficientFundsHasNoSideEffects(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, Movement{Actor: "u1", Amount: 5, Key: TopUpKey("pi_1")})
	require.NoError(t, err)

	_, err = l.Debit(ctx, Movement{Actor: "u1", Amount: 20, Key: DepositKey("c1")})
	assert.True(t, errors.Is(err, models.ErrInsufficientFunds))

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(5), bal)
	history, _ := l.History(ctx, "u1")
	assert.Len(t, history, 1)
}

func TestRefundIsIdempotent(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.Refund(ctx, Movement{Actor: "u1", Amount: 20, Key: RefundKey("c1")})
	require.NoError(t, err)
	_, err = l.Refund(ctx, Movement{Actor: "u1", Amount: 20, Key: RefundKey("c1")})
	assert.True(t, errors.Is(err, models.ErrAlreadyProcessed))

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(20), bal)
}

func TestConcurrentRefundsApplyOnce(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Refund(ctx, Movement{Actor: "u1", Amount: 20, Key: RefundKey("c1")})
		}()
	}
	wg.Wait()

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(20), bal)
	audit, err := l.Verify(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Equal(t, 1, audit.Entries)
}

func TestVerifyDetectsDrift(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, Movement{Actor: "u1", Amount: 50, Key: TopUpKey("pi_1")})
	require.NoError(t, err)

	audit, err := l.Verify(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Equal(t, int64(50), audit.LedgerBalance)

	_, err = s.Users().AdjustBalance(ctx, "u1", 7)
	require.NoError(t, err)
	audit, err = l.Verify(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, audit.Consistent)
	assert.True(t, audit.ChainValid)
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Credit(context.Background(), Movement{Actor: "u1", Amount: 0, Key: "k"})
	assert.True(t, errors.Is(err, models.ErrBadRequest))
}

func TestUnknownActor(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Credit(context.Background(), Movement{Actor: "ghost", Amount: 10, Key: "k"})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
