package lifecycle

import (
	"context"
	"time"

	"github.com/pawsaarthi/rescue-api/models"
)

// EventType names a case lifecycle event
type EventType string

// Lifecycle events. One is emitted per successful state change.
const (
	EventCaseCreated     EventType = "created"
	EventOrgAccepted     EventType = "accepted"
	EventOrgDeclined     EventType = "declined"
	EventEscalated       EventType = "escalated"
	EventCarrierAssigned EventType = "assigned"
	EventStatusAdvanced  EventType = "advanced"
	EventCompleted       EventType = "completed"
	EventDepositRefunded EventType = "refunded"
	EventOverridden      EventType = "overridden"
)

// Event carries a snapshot of the case after the change
type Event struct {
	Type    EventType
	Case    models.RescueCase
	ActorID string
	At      time.Time
}

// Publisher receives lifecycle events. Publish must not block on delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

func (e *Engine) emit(ctx context.Context, t EventType, c *models.RescueCase, actorID string) {
	e.events.Publish(ctx, Event{Type: t, Case: c.Clone(), ActorID: actorID, At: e.now().UTC()})
}
