package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/models"
)

// Exchange is the topic exchange rescue events are published to
const Exchange = "rescue_events"

// RoutingKey returns the routing key for an event type
func RoutingKey(t lifecycle.EventType) string {
	return "rescue." + string(t)
}

// BrokerEvent is the message body published for each lifecycle event
type BrokerEvent struct {
	EventID   uuid.UUID         `json:"eventId"`
	Type      string            `json:"type"`
	CaseID    string            `json:"caseId"`
	Status    models.CaseStatus `json:"status"`
	Reporter  string            `json:"reporter"`
	ActorID   string            `json:"actorId"`
	Timestamp time.Time         `json:"timestamp"`
}

func newBrokerEvent(e lifecycle.Event) BrokerEvent {
	return BrokerEvent{
		EventID:   uuid.New(),
		Type:      string(e.Type),
		CaseID:    e.Case.ID,
		Status:    e.Case.Status,
		Reporter:  e.Case.Reporter,
		ActorID:   e.ActorID,
		Timestamp: e.At,
	}
}

// Producer publishes JSON messages to RabbitMQ
type Producer struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewProducer dials amqpURL and opens a channel
func NewProducer(amqpURL string) (*Producer, error) {
	clean, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Producer{conn: conn, channel: ch}, nil
}

// Publish declares the exchange and sends body as JSON. A failed publish
// reopens the channel once and retries.
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}
	zap.S().Warnw("publish failed, reopening channel", "exchange", exchange, "routingKey", routingKey, "error", err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	return p.publish(ctx, exchange, routingKey, payload)
}

func (p *Producer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

// Close closes the channel and connection
func (p *Producer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
