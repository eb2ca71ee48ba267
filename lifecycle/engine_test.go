package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/databases/memory"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/models"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store  databases.Store
	ledger *ledger.Ledger
	engine *Engine
	clock  *fakeClock
	events *recorder

	citizen, org1, org2, pendingOrg, facility, otherFacility, carrier, otherCarrier, admin Actor
}

func newFixture(t *testing.T, store databases.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: store, clock: &fakeClock{t: t0}, events: &recorder{}}
	f.ledger = ledger.New(store, f.clock.Now)
	f.engine = New(store, f.ledger, Config{Now: f.clock.Now, Events: f.events})

	facilityID := "hosp-1"
	otherFacilityID := "hosp-2"
	users := []models.User{
		{ID: "cit-1", Details: models.UserDetails{Email: "cit@x.org", Role: models.RoleCitizen, Approved: true}},
		{ID: "ngo-1", Details: models.UserDetails{Email: "ngo1@x.org", Role: models.RoleOrg, Approved: true}},
		{ID: "ngo-2", Details: models.UserDetails{Email: "ngo2@x.org", Role: models.RoleOrg, Approved: true}},
		{ID: "ngo-3", Details: models.UserDetails{Email: "ngo3@x.org", Role: models.RoleOrg}},
		{ID: facilityID, Details: models.UserDetails{Email: "h1@x.org", Role: models.RoleFacility, Approved: true}},
		{ID: otherFacilityID, Details: models.UserDetails{Email: "h2@x.org", Role: models.RoleFacility, Approved: true}},
		{ID: "amb-1", Details: models.UserDetails{Email: "a1@x.org", Role: models.RoleCarrier, Approved: true, Available: true, LinkedFacility: &facilityID}},
		{ID: "amb-2", Details: models.UserDetails{Email: "a2@x.org", Role: models.RoleCarrier, Approved: true, Available: true, LinkedFacility: &otherFacilityID}},
		{ID: "adm-1", Details: models.UserDetails{Email: "adm@x.org", Role: models.RoleAdmin, Approved: true}},
	}
	for i := range users {
		require.NoError(t, store.Users().Insert(ctx, &users[i]))
	}
	actor := func(id string) Actor {
		u, err := store.Users().FindByID(ctx, id)
		require.NoError(t, err)
		return ActorFromUser(u)
	}
	f.citizen = actor("cit-1")
	f.org1 = actor("ngo-1")
	f.org2 = actor("ngo-2")
	f.pendingOrg = actor("ngo-3")
	f.facility = actor(facilityID)
	f.otherFacility = actor(otherFacilityID)
	f.carrier = actor("amb-1")
	f.otherCarrier = actor("amb-2")
	f.admin = actor("adm-1")
	return f
}

func (f *fixture) fund(t *testing.T, amount int64) {
	t.Helper()
	_, err := f.ledger.Credit(context.Background(), ledger.Movement{
		Actor: f.citizen.ID, Amount: amount, Key: ledger.TopUpKey("pi_seed"),
	})
	require.NoError(t, err)
}

func (f *fixture) report(t *testing.T) *models.RescueCase {
	t.Helper()
	c, err := f.engine.CreateCase(context.Background(), f.citizen, NewCase{
		Description: "injured dog near the market",
		Images:      []string{"https://res.cloudinary.com/demo/image/upload/dog.jpg"},
		Location:    models.Location{Lat: 28.6139, Lng: 77.2090, Address: "Connaught Place"},
	})
	require.NoError(t, err)
	return c
}

func balance(t *testing.T, f *fixture) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), f.citizen.ID)
	require.NoError(t, err)
	return b
}

func TestCreateCaseTakesDeposit(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)

	c := f.report(t)

	assert.Equal(t, models.StatusReported, c.Status)
	assert.True(t, c.DepositHeld)
	assert.False(t, c.DepositReturned)
	assert.Equal(t, int64(5), balance(t, f))

	entries, err := f.store.Ledger().FindByActor(context.Background(), f.citizen.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntryDebit, entries[0].Kind)
	assert.Equal(t, int64(-20), entries[0].Amount)
	assert.Equal(t, c.ID, *entries[0].RelatedCase)
	assert.Equal(t, []EventType{EventCaseCreated}, f.events.types())
}

func TestCreateCaseInsufficientFundsHasNoSideEffects(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 15)

	_, err := f.engine.CreateCase(context.Background(), f.citizen, NewCase{
		Description: "cat stuck on a roof",
		Location:    models.Location{Lat: 28.6, Lng: 77.2},
	})
	assert.True(t, errors.Is(err, models.ErrInsufficientFunds))

	assert.Equal(t, int64(15), balance(t, f))
	cases, _ := f.store.Rescues().Find(context.Background(), databases.CaseQuery{})
	assert.Empty(t, cases)
	entries, _ := f.store.Ledger().FindByActor(context.Background(), f.citizen.ID, 0)
	assert.Len(t, entries, 1)
	assert.Empty(t, f.events.types())
}

func TestCreateCaseValidation(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 100)
	ctx := context.Background()

	_, err := f.engine.CreateCase(ctx, f.citizen, NewCase{Location: models.Location{Lat: 1, Lng: 1}})
	assert.True(t, errors.Is(err, models.ErrBadRequest))

	_, err = f.engine.CreateCase(ctx, f.citizen, NewCase{Description: "x"})
	assert.True(t, errors.Is(err, models.ErrBadRequest))

	_, err = f.engine.CreateCase(ctx, f.citizen, NewCase{
		Description: "x",
		Images:      []string{"1", "2", "3", "4", "5", "6"},
		Location:    models.Location{Lat: 1, Lng: 1},
	})
	assert.True(t, errors.Is(err, models.ErrBadRequest))

	_, err = f.engine.CreateCase(ctx, f.org1, NewCase{Description: "x", Location: models.Location{Lat: 1, Lng: 1}})
	assert.True(t, errors.Is(err, models.ErrForbidden))
	assert.Equal(t, int64(100), balance(t, f))
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)

	orgs := []Actor{f.org1, f.org2}
	errs := make([]error, len(orgs))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, org := range orgs {
		wg.Add(1)
		go func(i int, org Actor) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.Accept(context.Background(), c.ID, org)
		}(i, org)
	}
	close(start)
	wg.Wait()

	winners := 0
	var winner string
	for i, err := range errs {
		if err == nil {
			winners++
			winner = orgs[i].ID
			continue
		}
		assert.True(t, errors.Is(err, models.ErrInvalidTransition), err.Error())
	}
	require.Equal(t, 1, winners)

	got, err := f.store.Rescues().FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOrgAccepted, got.Status)
	assert.Equal(t, winner, *got.AssignedOrg)
	assert.NotNil(t, got.AcceptedAt)
}

func TestAcceptAfterDeclineIsForbidden(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)
	ctx := context.Background()

	declined, err := f.engine.Decline(ctx, c.ID, f.org1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReported, declined.Status)
	assert.Equal(t, []string{f.org1.ID}, declined.RejectedBy)

	again, err := f.engine.Decline(ctx, c.ID, f.org1)
	require.NoError(t, err)
	assert.Equal(t, declined.Version, again.Version)

	_, err = f.engine.Accept(ctx, c.ID, f.org1)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	accepted, err := f.engine.Accept(ctx, c.ID, f.org2)
	require.NoError(t, err)
	assert.Equal(t, f.org2.ID, *accepted.AssignedOrg)

	_, err = f.engine.Decline(ctx, c.ID, f.org2)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestCapabilityChecks(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)
	ctx := context.Background()

	_, err := f.engine.Transition(ctx, c.ID, f.citizen, models.StatusOrgAccepted)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.engine.Transition(ctx, c.ID, f.admin, models.StatusOrgAccepted)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.engine.Accept(ctx, c.ID, f.pendingOrg)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.engine.Transition(ctx, c.ID, f.org1, models.StatusFacilityEscalated)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusEnRoute)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	_, err = f.engine.AssignCarrier(ctx, c.ID, f.facility, f.carrier.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	_, err = f.engine.Accept(ctx, "000000000000000000000000", f.org1)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	got, _ := f.store.Rescues().FindByID(ctx, c.ID)
	assert.Equal(t, models.StatusReported, got.Status)
	assert.Equal(t, int64(0), got.Version)
}

func TestEscalationWaitsForDeadline(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)
	ctx := context.Background()

	_, err := f.engine.Escalate(ctx, c.ID, t0.Add(3*time.Minute))
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	escalated, err := f.engine.Escalate(ctx, c.ID, t0.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFacilityEscalated, escalated.Status)
	assert.Equal(t, t0.Add(6*time.Minute), *escalated.EscalatedAt)

	_, err = f.engine.Accept(ctx, c.ID, f.org1)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestEscalatedCaseFullRescue(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)
	ctx := context.Background()
	assert.Equal(t, int64(5), balance(t, f))

	f.clock.Set(t0.Add(6 * time.Minute))
	_, err := f.engine.Escalate(ctx, c.ID, f.clock.Now())
	require.NoError(t, err)

	_, err = f.engine.AssignCarrier(ctx, c.ID, f.facility, f.otherCarrier.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	assigned, err := f.engine.AssignCarrier(ctx, c.ID, f.facility, f.carrier.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCarrierAssigned, assigned.Status)
	assert.Equal(t, f.facility.ID, *assigned.AssignedFacility)
	assert.Equal(t, f.carrier.ID, *assigned.AssignedCarrier)

	amb, _ := f.store.Users().FindByID(ctx, f.carrier.ID)
	assert.False(t, amb.Details.Available)

	_, err = f.engine.Advance(ctx, c.ID, f.otherCarrier, models.StatusEnRoute)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusPickedUp)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusEnRoute)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusPickedUp)
	require.NoError(t, err)
	done, err := f.engine.Advance(ctx, c.ID, f.carrier, models.StatusDelivered)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.True(t, done.DepositReturned)
	assert.NotNil(t, done.DeliveredAt)
	assert.NotNil(t, done.CompletedAt)
	assert.NotNil(t, done.EnRouteAt)
	assert.NotNil(t, done.PickedUpAt)
	assert.Nil(t, done.AcceptedAt)

	amb, _ = f.store.Users().FindByID(ctx, f.carrier.ID)
	assert.True(t, amb.Details.Available)
	assert.Equal(t, int64(25), balance(t, f))

	entries, _ := f.store.Ledger().FindByActor(ctx, f.citizen.ID, 0)
	refunds := 0
	for _, e := range entries {
		if e.Kind == models.EntryRefund {
			refunds++
			assert.Equal(t, int64(20), e.Amount)
			assert.Equal(t, c.ID, *e.RelatedCase)
		}
	}
	assert.Equal(t, 1, refunds)

	audit, err := f.ledger.Verify(ctx, f.citizen.ID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent)

	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusCompleted)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	assert.Equal(t, int64(25), balance(t, f))

	assert.Equal(t, []EventType{
		EventCaseCreated,
		EventEscalated,
		EventCarrierAssigned,
		EventStatusAdvanced,
		EventStatusAdvanced,
		EventCompleted,
		EventDepositRefunded,
	}, f.events.types())
}

func TestAssignUnavailableCarrier(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 40)
	ctx := context.Background()
	first := f.report(t)
	second := f.report(t)

	f.clock.Set(t0.Add(10 * time.Minute))
	for _, c := range []*models.RescueCase{first, second} {
		_, err := f.engine.Escalate(ctx, c.ID, f.clock.Now())
		require.NoError(t, err)
	}

	_, err := f.engine.AssignCarrier(ctx, first.ID, f.facility, f.carrier.ID)
	require.NoError(t, err)
	_, err = f.engine.AssignCarrier(ctx, second.ID, f.facility, f.carrier.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	got, _ := f.store.Rescues().FindByID(ctx, second.ID)
	assert.Equal(t, models.StatusFacilityEscalated, got.Status)

	_, err = f.engine.AssignCarrier(ctx, second.ID, f.facility, "")
	assert.True(t, errors.Is(err, models.ErrBadRequest))
	_, err = f.engine.AssignCarrier(ctx, second.ID, f.facility, "ghost")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

type flakyLedger struct {
	databases.LedgerDatabase
	fail bool
}

func (l *flakyLedger) Append(ctx context.Context, e *models.LedgerEntry) error {
	if l.fail && e.Kind == models.EntryRefund {
		return errors.New("ledger unavailable")
	}
	return l.LedgerDatabase.Append(ctx, e)
}

type flakyStore struct {
	*memory.Store
	ledger *flakyLedger
}

func (s *flakyStore) Ledger() databases.LedgerDatabase { return s.ledger }

func TestRefundFailureKeepsStatusAndIsReconciled(t *testing.T) {
	mem := memory.New()
	store := &flakyStore{Store: mem, ledger: &flakyLedger{LedgerDatabase: mem.Ledger()}}
	f := newFixture(t, store)
	f.fund(t, 25)
	ctx := context.Background()
	c := f.report(t)

	f.clock.Set(t0.Add(6 * time.Minute))
	_, err := f.engine.Escalate(ctx, c.ID, f.clock.Now())
	require.NoError(t, err)
	_, err = f.engine.AssignCarrier(ctx, c.ID, f.facility, f.carrier.ID)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusEnRoute)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusPickedUp)
	require.NoError(t, err)

	store.ledger.fail = true
	done, err := f.engine.Advance(ctx, c.ID, f.carrier, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.False(t, done.DepositReturned)
	assert.Equal(t, int64(5), balance(t, f))

	n, err := f.engine.ReconcileRefunds(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	store.ledger.fail = false
	n, err = f.engine.ReconcileRefunds(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(25), balance(t, f))

	n, err = f.engine.ReconcileRefunds(ctx, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(25), balance(t, f))

	_, err = f.engine.ReconcileRefunds(ctx, f.citizen)
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func TestOverrideBypassesGraphWithoutMovingMoney(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)
	ctx := context.Background()

	cancelled := models.StatusCancelled
	note := "duplicate report"
	got, err := f.engine.Override(ctx, c.ID, f.admin, &cancelled, &note)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, note, got.AdminNote)
	assert.Equal(t, int64(5), balance(t, f))

	_, err = f.engine.Override(ctx, c.ID, f.org1, &cancelled, nil)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	bogus := models.CaseStatus("teleported")
	_, err = f.engine.Override(ctx, c.ID, f.admin, &bogus, nil)
	assert.True(t, errors.Is(err, models.ErrBadRequest))

	_, err = f.engine.Accept(ctx, c.ID, f.org1)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestDelete(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)
	ctx := context.Background()

	assert.True(t, errors.Is(f.engine.Delete(ctx, c.ID, f.citizen), models.ErrForbidden))
	require.NoError(t, f.engine.Delete(ctx, c.ID, f.admin))
	assert.True(t, errors.Is(f.engine.Delete(ctx, c.ID, f.admin), models.ErrNotFound))

	entries, _ := f.store.Ledger().FindByActor(ctx, f.citizen.ID, 0)
	assert.Len(t, entries, 2)
}

// toPickedUp escalates c and carries it to picked_up with f.carrier
func (f *fixture) toPickedUp(t *testing.T, c *models.RescueCase) {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.Escalate(ctx, c.ID, t0.Add(6*time.Minute))
	require.NoError(t, err)
	_, err = f.engine.AssignCarrier(ctx, c.ID, f.facility, f.carrier.ID)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusEnRoute)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusPickedUp)
	require.NoError(t, err)
}

func TestConcurrentCompletionRefundsOnce(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 25)
	c := f.report(t)
	f.toPickedUp(t, c)
	ctx := context.Background()

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.Advance(ctx, c.ID, f.carrier, models.StatusDelivered)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrInvalidTransition), err.Error())
	}
	require.Equal(t, 1, winners)
	assert.Equal(t, int64(25), balance(t, f))

	entries, err := f.store.Ledger().FindByActor(ctx, f.citizen.ID, 0)
	require.NoError(t, err)
	refunds := 0
	for _, e := range entries {
		if e.Kind == models.EntryRefund {
			refunds++
		}
	}
	assert.Equal(t, 1, refunds)

	got, err := f.store.Rescues().FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.True(t, got.DepositReturned)
}

func TestConcurrentCarrierAssignmentHasOneWinner(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 40)
	ctx := context.Background()
	cases := []*models.RescueCase{f.report(t), f.report(t)}
	for _, c := range cases {
		_, err := f.engine.Escalate(ctx, c.ID, t0.Add(6*time.Minute))
		require.NoError(t, err)
	}

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.AssignCarrier(ctx, cases[i%len(cases)].ID, f.facility, f.carrier.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrForbidden) || errors.Is(err, models.ErrInvalidTransition), err.Error())
	}
	require.Equal(t, 1, winners)

	assigned := 0
	for _, c := range cases {
		got, err := f.store.Rescues().FindByID(ctx, c.ID)
		require.NoError(t, err)
		if got.Status == models.StatusCarrierAssigned {
			assigned++
			assert.Equal(t, f.carrier.ID, *got.AssignedCarrier)
		} else {
			assert.Equal(t, models.StatusFacilityEscalated, got.Status)
			assert.Nil(t, got.AssignedCarrier)
		}
	}
	assert.Equal(t, 1, assigned)

	amb, err := f.store.Users().FindByID(ctx, f.carrier.ID)
	require.NoError(t, err)
	assert.False(t, amb.Details.Available)
}

func TestEscalationRacingAcceptHasOneWinner(t *testing.T) {
	const rounds = 100
	f := newFixture(t, memory.New())
	f.fund(t, rounds*DefaultDeposit)
	ctx := context.Background()

	for i := 0; i < rounds; i++ {
		c := f.report(t)

		var escErr, accErr error
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, escErr = f.engine.Escalate(ctx, c.ID, t0.Add(6*time.Minute))
		}()
		go func() {
			defer wg.Done()
			<-start
			_, accErr = f.engine.Accept(ctx, c.ID, f.org1)
		}()
		close(start)
		wg.Wait()

		require.True(t, (escErr == nil) != (accErr == nil), "round %d: escalate=%v accept=%v", i, escErr, accErr)
		got, err := f.store.Rescues().FindByID(ctx, c.ID)
		require.NoError(t, err)
		if escErr == nil {
			assert.True(t, errors.Is(accErr, models.ErrInvalidTransition), accErr.Error())
			assert.Equal(t, models.StatusFacilityEscalated, got.Status)
			assert.Nil(t, got.AssignedOrg)
		} else {
			assert.True(t, errors.Is(escErr, models.ErrInvalidTransition), escErr.Error())
			assert.Equal(t, models.StatusOrgAccepted, got.Status)
			assert.Nil(t, got.EscalatedAt)
		}
	}
}

func TestOverrideReleasesCarrierLeavingTransport(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(t, 40)
	ctx := context.Background()
	c := f.report(t)
	f.toPickedUp(t, c)

	amb, err := f.store.Users().FindByID(ctx, f.carrier.ID)
	require.NoError(t, err)
	require.False(t, amb.Details.Available)

	note := "animal taken in by a passer-by"
	enRoute := models.StatusEnRoute
	_, err = f.engine.Override(ctx, c.ID, f.admin, &enRoute, &note)
	require.NoError(t, err)
	amb, _ = f.store.Users().FindByID(ctx, f.carrier.ID)
	assert.False(t, amb.Details.Available)

	cancelled := models.StatusCancelled
	got, err := f.engine.Override(ctx, c.ID, f.admin, &cancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	amb, _ = f.store.Users().FindByID(ctx, f.carrier.ID)
	assert.True(t, amb.Details.Available)

	second := f.report(t)
	_, err = f.engine.Escalate(ctx, second.ID, t0.Add(6*time.Minute))
	require.NoError(t, err)
	_, err = f.engine.AssignCarrier(ctx, second.ID, f.facility, f.carrier.ID)
	assert.NoError(t, err)
}
