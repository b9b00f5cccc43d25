// Package amqp publishes subscriber notifications to an AMQP topic exchange
// (ie RabbitMQ) for delivery by an external service.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/vietddude/planbridge/internal/infra/notify"
)

const ChannelName = "amqp"

var _ notify.Channel = (*Publisher)(nil)

// Notification is the JSON body of every published message.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	Format      string    `json:"format"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher holds a broker connection and a reusable channel.
type Publisher struct {
	exchange string
	conn     *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel

	log *slog.Logger
}

// Dial connects to uri and declares the topic exchange.
func Dial(uri, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	p := &Publisher{
		exchange: exchange,
		conn:     conn,
		log:      slog.Default().With("component", "amqp", "exchange", exchange),
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p.ch = ch
	p.log.Info("Connected to broker")
	return p, nil
}

func (p *Publisher) Name() string { return ChannelName }

// RoutingKey is the topic a recipient's notifications are published under.
func RoutingKey(recipientID string) string {
	return "notification." + recipientID
}

// Send publishes one persistent message routed by recipient.
func (p *Publisher) Send(ctx context.Context, recipientID, text string) error {
	if err := ctx.Err(); err != nil {
		return &notify.DeliveryError{Channel: ChannelName, RecipientID: recipientID, Err: err}
	}

	n := Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Text:        text,
		Format:      "markdown",
		CreatedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(n)
	if err != nil {
		return &notify.DeliveryError{Channel: ChannelName, RecipientID: recipientID, Permanent: true, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Obtain a fresh channel if the previous one was closed by a broker error.
	if p.ch == nil {
		if p.ch, err = p.conn.Channel(); err != nil {
			return &notify.DeliveryError{Channel: ChannelName, RecipientID: recipientID, Err: err}
		}
	}
	msg := amqp.Publishing{
		Headers:      amqp.Table{"x-recipient": recipientID},
		MessageId:    n.ID,
		Timestamp:    n.CreatedAt,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if err := p.ch.Publish(p.exchange, RoutingKey(recipientID), false, false, msg); err != nil {
		p.ch = nil
		return &notify.DeliveryError{Channel: ChannelName, RecipientID: recipientID, Err: err}
	}
	return nil
}

// Close terminates the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.log.Warn("Error closing amqp channel", "error", err)
		}
		p.ch = nil
	}
	return p.conn.Close()
}
