package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends an encoded event to a broker under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends the event payload as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, event Event) error {
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Body:         event.Payload,
	})
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Forwarder republishes bus events to a broker. Failures are logged only.
type Forwarder struct {
	publisher Publisher
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewForwarder creates a forwarder with a per-message publish timeout.
func NewForwarder(publisher Publisher, timeout time.Duration, logger *zerolog.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "amqp_forwarder").Logger()
	}
	return &Forwarder{publisher: publisher, timeout: timeout, logger: l}
}

// Attach subscribes the forwarder to every lifecycle event type on bus.
func (f *Forwarder) Attach(bus *EventBus) {
	for _, t := range []string{BookingStatusChanged, PaymentStatusChanged} {
		bus.Subscribe(t, f.handle)
	}
}

func (f *Forwarder) handle(event Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.publisher.Publish(ctx, event.Type, event); err != nil {
		f.logger.Error().Err(err).Str("type", event.Type).Str("event_id", event.ID).Msg("forward event")
	}
	return nil
}
