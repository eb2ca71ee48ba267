// Package lifecycle owns every change to a rescue case. Transitions are
// validated against the role capability graph and applied with a version
// compare-and-swap so concurrent actors on the same case are linearized.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/geo"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/models"
)

// DefaultDeposit is the refundable hold taken when a case is reported
const DefaultDeposit int64 = 20

// DefaultEscalationDeadline is how long a case may wait for an org
const DefaultEscalationDeadline = 5 * time.Minute

// maxAttempts bounds the re-read loop on version conflicts
const maxAttempts = 8

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	Deposit            int64
	EscalationDeadline time.Duration
	Now                func() time.Time
	Events             Publisher
}

// Engine applies case transitions
type Engine struct {
	store    databases.Store
	ledger   *ledger.Ledger
	deposit  int64
	deadline time.Duration
	now      func() time.Time
	events   Publisher
}

// New returns an engine over store and l
func New(store databases.Store, l *ledger.Ledger, cfg Config) *Engine {
	e := &Engine{
		store:    store,
		ledger:   l,
		deposit:  cfg.Deposit,
		deadline: cfg.EscalationDeadline,
		now:      cfg.Now,
		events:   cfg.Events,
	}
	if e.deposit <= 0 {
		e.deposit = DefaultDeposit
	}
	if e.deadline <= 0 {
		e.deadline = DefaultEscalationDeadline
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.events == nil {
		e.events = discard{}
	}
	return e
}

// Deposit returns the hold taken per case
func (e *Engine) Deposit() int64 { return e.deposit }

// EscalationDeadline returns how long a case waits before escalation
func (e *Engine) EscalationDeadline() time.Duration { return e.deadline }

// NewCase is the reporter supplied content of a case. Media references are
// already uploaded.
type NewCase struct {
	Description string
	Images      []string
	Video       string
	Location    models.Location
}

// Validate checks the reporter input
func (n NewCase) Validate() error {
	desc := strings.TrimSpace(n.Description)
	switch {
	case desc == "":
		return models.Errorf(models.KindBadRequest, "description is required")
	case len([]rune(desc)) > models.MaxDescriptionLength:
		return models.Errorf(models.KindBadRequest, "description exceeds %d characters", models.MaxDescriptionLength)
	case len(n.Images) > models.MaxCaseImages:
		return models.Errorf(models.KindBadRequest, "at most %d images are allowed", models.MaxCaseImages)
	case !geo.Valid(n.Location) || (n.Location.Lat == 0 && n.Location.Lng == 0):
		return models.Errorf(models.KindBadRequest, "a valid location (lat/lng) is required")
	}
	return nil
}

// CreateCase debits the deposit from the reporter and stores a new case in
// the reported state. Both happen in one transaction.
func (e *Engine) CreateCase(ctx context.Context, actor Actor, in NewCase) (*models.RescueCase, error) {
	if actor.Role != models.RoleCitizen {
		return nil, models.Errorf(models.KindForbidden, "only citizens can report a rescue")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	id := primitive.NewObjectID().Hex()
	c := &models.RescueCase{
		ID:          id,
		Reporter:    actor.ID,
		Description: strings.TrimSpace(in.Description),
		Images:      append([]string{}, in.Images...),
		Video:       in.Video,
		Location:    in.Location,
		Status:      models.StatusReported,
		RejectedBy:  []string{},
		DepositHeld: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := e.store.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := e.ledger.Debit(ctx, ledger.Movement{
			Actor:       actor.ID,
			Amount:      e.deposit,
			RelatedCase: &id,
			Key:         ledger.DepositKey(id),
			Description: fmt.Sprintf("deposit for rescue request #%s", id),
		})
		if err != nil {
			return err
		}
		return e.store.Rescues().Insert(ctx, c)
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			return nil, models.Errorf(models.KindInsufficientFunds,
				"insufficient wallet balance, a deposit of %d is required to report a rescue", e.deposit)
		}
		return nil, err
	}

	zap.S().Infow("rescue case created", "caseId", id, "reporter", actor.ID, "deposit", e.deposit)
	e.emit(ctx, EventCaseCreated, c, actor.ID)
	return c, nil
}

// Transition moves a case to requested on behalf of actor. requested must be
// the single successor the engine expects for the case's status and the
// actor's role.
func (e *Engine) Transition(ctx context.Context, caseID string, actor Actor, requested models.CaseStatus) (*models.RescueCase, error) {
	return e.transition(ctx, caseID, actor, requested, "")
}

// Accept assigns the case to the acting org
func (e *Engine) Accept(ctx context.Context, caseID string, actor Actor) (*models.RescueCase, error) {
	return e.transition(ctx, caseID, actor, models.StatusOrgAccepted, "")
}

// AssignCarrier dispatches carrierID of the acting facility to an escalated case
func (e *Engine) AssignCarrier(ctx context.Context, caseID string, actor Actor, carrierID string) (*models.RescueCase, error) {
	if carrierID == "" {
		return nil, models.Errorf(models.KindBadRequest, "ambulanceId is required")
	}
	return e.transition(ctx, caseID, actor, models.StatusCarrierAssigned, carrierID)
}

// Advance moves a case through transport on behalf of its assigned carrier
func (e *Engine) Advance(ctx context.Context, caseID string, actor Actor, next models.CaseStatus) (*models.RescueCase, error) {
	return e.transition(ctx, caseID, actor, next, "")
}

// Escalate forces a reported case that waited past the deadline at at over
// to facilities. Only the system actor may call it.
func (e *Engine) Escalate(ctx context.Context, caseID string, at time.Time) (*models.RescueCase, error) {
	return e.transitionAt(ctx, caseID, SystemActor, models.StatusFacilityEscalated, "", at)
}

// Decline records that the acting org will not take the case. The case
// stays reported and is hidden from that org.
func (e *Engine) Decline(ctx context.Context, caseID string, actor Actor) (*models.RescueCase, error) {
	if actor.Role != models.RoleOrg {
		return nil, models.Errorf(models.KindForbidden, "only organizations can decline a rescue")
	}
	if err := CheckApproved(actor); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c, err := e.load(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if c.Status != models.StatusReported {
			return nil, models.Errorf(models.KindInvalidTransition,
				"case is in state %s, cannot decline", c.Status)
		}
		if c.RejectedByOrg(actor.ID) {
			return c, nil
		}
		updated := c.Clone()
		updated.RejectedBy = append(updated.RejectedBy, actor.ID)
		updated.UpdatedAt = e.now().UTC()
		err = e.store.Rescues().Replace(ctx, &updated)
		if errors.Is(err, databases.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		zap.S().Infow("rescue case declined", "caseId", caseID, "org", actor.ID)
		e.emit(ctx, EventOrgDeclined, &updated, actor.ID)
		return &updated, nil
	}
	return nil, errConcurrent(caseID)
}

func (e *Engine) transition(ctx context.Context, caseID string, actor Actor, requested models.CaseStatus, carrierID string) (*models.RescueCase, error) {
	return e.transitionAt(ctx, caseID, actor, requested, carrierID, e.now())
}

func (e *Engine) transitionAt(ctx context.Context, caseID string, actor Actor, requested models.CaseStatus, carrierID string, at time.Time) (*models.RescueCase, error) {
	if !CanTransition(actor.Role) {
		return nil, models.Errorf(models.KindForbidden, "a %s cannot change the status of a rescue", actor.Role)
	}
	if err := CheckApproved(actor); err != nil {
		return nil, err
	}
	at = at.UTC()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		c, err := e.load(ctx, caseID)
		if err != nil {
			return nil, err
		}
		next, err := expectedNext(c, actor.Role, requested)
		if err != nil {
			return nil, err
		}
		if err := e.authorize(c, actor, next, at); err != nil {
			return nil, err
		}

		updated := c.Clone()
		apply(&updated, actor, next, carrierID, at)

		if next == models.StatusCarrierAssigned {
			if err := e.claimCarrier(ctx, actor, carrierID); err != nil {
				return nil, err
			}
		}

		err = e.store.Rescues().Replace(ctx, &updated)
		if err != nil {
			if next == models.StatusCarrierAssigned {
				e.releaseCarrier(ctx, carrierID, caseID)
			}
			if errors.Is(err, databases.ErrVersionConflict) {
				zap.S().Debugw("rescue case changed concurrently, re-reading", "caseId", caseID, "attempt", attempt)
				continue
			}
			return nil, err
		}

		zap.S().Infow("rescue case transitioned",
			"caseId", caseID,
			"from", c.Status,
			"to", next,
			"actor", actor.ID,
			"role", actor.Role.String())
		return e.after(ctx, &updated, actor), nil
	}
	return nil, errConcurrent(caseID)
}

// authorize checks the binding of actor to the case for the edge to next
func (e *Engine) authorize(c *models.RescueCase, actor Actor, next models.CaseStatus, at time.Time) error {
	switch next {
	case models.StatusOrgAccepted:
		if c.RejectedByOrg(actor.ID) {
			return models.Errorf(models.KindForbidden, "you already declined this rescue")
		}
	case models.StatusFacilityEscalated:
		if at.Sub(c.CreatedAt) < e.deadline {
			return models.Errorf(models.KindInvalidTransition,
				"case is in state %s and has not passed the escalation deadline", c.Status)
		}
	case models.StatusEnRoute, models.StatusPickedUp, models.StatusCompleted:
		if c.AssignedCarrier == nil || *c.AssignedCarrier != actor.ID {
			return models.Errorf(models.KindForbidden, "this rescue is not assigned to you")
		}
	}
	return nil
}

func apply(c *models.RescueCase, actor Actor, next models.CaseStatus, carrierID string, at time.Time) {
	switch next {
	case models.StatusOrgAccepted:
		c.AssignedOrg = stringOnce(c.AssignedOrg, actor.ID)
		c.AcceptedAt = timeOnce(c.AcceptedAt, at)
	case models.StatusFacilityEscalated:
		c.EscalatedAt = timeOnce(c.EscalatedAt, at)
	case models.StatusCarrierAssigned:
		c.AssignedFacility = stringOnce(c.AssignedFacility, actor.ID)
		c.AssignedCarrier = stringOnce(c.AssignedCarrier, carrierID)
		c.CarrierAssignedAt = timeOnce(c.CarrierAssignedAt, at)
	case models.StatusEnRoute:
		c.EnRouteAt = timeOnce(c.EnRouteAt, at)
	case models.StatusPickedUp:
		c.PickedUpAt = timeOnce(c.PickedUpAt, at)
	case models.StatusCompleted:
		c.DeliveredAt = timeOnce(c.DeliveredAt, at)
		c.CompletedAt = timeOnce(c.CompletedAt, at)
	}
	c.Status = next
	c.UpdatedAt = at
}

// after runs the side effects of a committed transition. Failures here are
// logged and never undo the status change.
func (e *Engine) after(ctx context.Context, c *models.RescueCase, actor Actor) *models.RescueCase {
	switch c.Status {
	case models.StatusOrgAccepted:
		e.emit(ctx, EventOrgAccepted, c, actor.ID)
	case models.StatusFacilityEscalated:
		e.emit(ctx, EventEscalated, c, actor.ID)
	case models.StatusCarrierAssigned:
		e.emit(ctx, EventCarrierAssigned, c, actor.ID)
	case models.StatusEnRoute, models.StatusPickedUp:
		e.emit(ctx, EventStatusAdvanced, c, actor.ID)
	case models.StatusCompleted:
		e.releaseCarrier(ctx, *c.AssignedCarrier, c.ID)
		e.emit(ctx, EventCompleted, c, actor.ID)
		if refunded, err := e.refundDeposit(ctx, c.ID); err != nil {
			zap.S().Errorw("deposit refund failed, left for reconciliation",
				"caseId", c.ID,
				"reporter", c.Reporter,
				"error", err)
		} else if refunded != nil {
			return refunded
		}
	}
	return c
}

func (e *Engine) claimCarrier(ctx context.Context, facility Actor, carrierID string) error {
	carrier, err := e.store.Users().FindByID(ctx, carrierID)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			return models.Errorf(models.KindNotFound, "ambulance not found")
		}
		return err
	}
	if carrier.Details.Role != models.RoleCarrier ||
		carrier.Details.LinkedFacility == nil ||
		*carrier.Details.LinkedFacility != facility.ID {
		return models.Errorf(models.KindForbidden, "ambulance does not belong to your hospital")
	}
	if !carrier.Details.Approved {
		return models.Errorf(models.KindForbidden, "ambulance is not approved")
	}
	if err := e.store.Users().ClaimCarrier(ctx, carrierID); err != nil {
		if errors.Is(err, databases.ErrCarrierUnavailable) {
			return models.Errorf(models.KindForbidden, "ambulance is not available")
		}
		return err
	}
	return nil
}

func (e *Engine) releaseCarrier(ctx context.Context, carrierID, caseID string) {
	if err := e.store.Users().ReleaseCarrier(ctx, carrierID); err != nil {
		zap.S().Errorw("failed to release ambulance", "ambulance", carrierID, "caseId", caseID, "error", err)
	}
}

func (e *Engine) load(ctx context.Context, caseID string) (*models.RescueCase, error) {
	c, err := e.store.Rescues().FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			return nil, models.Errorf(models.KindNotFound, "rescue request not found")
		}
		return nil, err
	}
	return c, nil
}

func errConcurrent(caseID string) error {
	return models.Errorf(models.KindInvalidTransition, "rescue %s is being changed by someone else, try again", caseID)
}

func stringOnce(cur *string, v string) *string {
	if cur != nil {
		return cur
	}
	return &v
}

func timeOnce(cur *time.Time, v time.Time) *time.Time {
	if cur != nil {
		return cur
	}
	return &v
}
