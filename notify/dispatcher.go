// Package notify fans lifecycle events out to in-app notifications, the
// websocket hub, email and the message broker. Delivery is best effort and
// never feeds back into the case workflow.
package notify

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/models"
)

// DefaultQueueSize bounds the number of events waiting for delivery
const DefaultQueueSize = 256

// deliveryTimeout bounds the fan-out of a single event
const deliveryTimeout = 30 * time.Second

// Pusher delivers a payload to a connected user
type Pusher interface {
	Send(userID, event string, data interface{}) bool
}

// Mailer sends a transactional email
type Mailer interface {
	Send(ctx context.Context, to models.User, msg Message) error
}

// Message is one email. Case is nil for account emails.
type Message struct {
	Subject string
	Body    string
	Case    *models.RescueCase
}

// Broker publishes an event body under a routing key
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Config wires the optional sinks. Nil sinks are skipped.
type Config struct {
	QueueSize        int
	OrgRadiusKm      float64
	FacilityRadiusKm float64
	Hub              Pusher
	Mailer           Mailer
	Broker           Broker
	Now              func() time.Time
}

// Dispatcher implements lifecycle.Publisher with a bounded queue drained by
// a single worker
type Dispatcher struct {
	store   databases.Store
	cfg     Config
	queue   chan lifecycle.Event
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewDispatcher returns a dispatcher. Call Start to begin delivery.
func NewDispatcher(store databases.Store, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		store: store,
		cfg:   cfg,
		queue: make(chan lifecycle.Event, cfg.QueueSize),
	}
}

// Publish queues e for delivery. A full queue drops the event.
func (d *Dispatcher) Publish(_ context.Context, e lifecycle.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	select {
	case d.queue <- e:
	default:
		zap.S().Warnw("notification queue full, dropping event", "event", e.Type, "caseId", e.Case.ID)
	}
}

// Start launches the delivery worker
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range d.queue {
			ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			d.handle(ctx, e)
			cancel()
		}
	}()
}

// Stop refuses new events and waits until queued ones are delivered
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, e lifecycle.Event) {
	if d.cfg.Broker != nil {
		if err := d.cfg.Broker.Publish(ctx, Exchange, RoutingKey(e.Type), newBrokerEvent(e)); err != nil {
			zap.S().Warnw("failed to publish rescue event", "event", e.Type, "caseId", e.Case.ID, "error", err)
		}
	}

	c := e.Case
	for _, m := range d.messages(ctx, e) {
		d.deliver(ctx, m.recipient, m.kind, m.title, m.body, &c, m.email)
	}
}

// Notify writes an in-app notification outside the case workflow, such as a
// wallet credit or an account approval, and pushes it to the user
func (d *Dispatcher) Notify(ctx context.Context, recipient string, kind models.NotificationType, title, body string) {
	d.deliver(ctx, recipient, kind, title, body, nil, false)
}

func (d *Dispatcher) deliver(ctx context.Context, recipient string, kind models.NotificationType, title, body string, c *models.RescueCase, email bool) {
	var caseID *string
	if c != nil {
		id := c.ID
		caseID = &id
	}
	n := &models.Notification{
		ID:         primitive.NewObjectID().Hex(),
		Recipient:  recipient,
		Title:      title,
		Message:    body,
		Type:       kind,
		RescueCase: caseID,
		CreatedAt:  d.cfg.Now().UTC(),
	}
	if err := d.store.Notifications().Insert(ctx, n); err != nil {
		zap.S().Errorw("failed to store notification", "recipient", recipient, "type", kind, "error", err)
		return
	}
	if d.cfg.Hub != nil {
		d.cfg.Hub.Send(recipient, EventNewNotification, n)
	}
	if email && d.cfg.Mailer != nil {
		u, err := d.store.Users().FindByID(ctx, recipient)
		if err != nil {
			zap.S().Warnw("failed to load email recipient", "recipient", recipient, "error", err)
			return
		}
		if err := d.cfg.Mailer.Send(ctx, *u, Message{Subject: title, Body: body, Case: c}); err != nil {
			zap.S().Warnw("failed to email notification", "recipient", recipient, "error", err)
		}
	}
}
