// events/rabbitmq.go

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/norun9/rocketshoes-cart/cart"
)

const (
	ExchangeName = "rocketshoes.cart"
	ExchangeType = "topic"

	publishTimeout = 5 * time.Second
)

// CartUpdated is the message published after every successful cart mutation.
type CartUpdated struct {
	SessionID  string    `json:"sessionId"`
	Cart       cart.Cart `json:"cart"`
	TotalItems int       `json:"totalItems"`
	At         time.Time `json:"at"`
}

// SetupConn dials RabbitMQ and declares the cart exchange.
func SetupConn(url string, log logrus.FieldLogger) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	// Simple retry logic for container startup
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.WithError(err).Warnf("Failed to connect to RabbitMQ (attempt %d)", i+1)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "could not open channel")
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, errors.Wrap(err, "could not declare exchange")
	}

	return conn, ch, nil
}

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher broadcasts cart snapshots on the cart exchange.
type Publisher struct {
	ch  Channel
	log logrus.FieldLogger
	now func() time.Time
}

// NewPublisher creates a Publisher on an open channel.
func NewPublisher(ch Channel, log logrus.FieldLogger) *Publisher {
	return &Publisher{ch: ch, log: log, now: time.Now}
}

// RoutingKey is cart.<session>.updated.
func RoutingKey(sessionID string) string {
	return fmt.Sprintf("cart.%s.updated", sessionID)
}

// Publish sends one CartUpdated message.
func (p *Publisher) Publish(ctx context.Context, sessionID string, c cart.Cart) error {
	body, err := json.Marshal(CartUpdated{
		SessionID:  sessionID,
		Cart:       c,
		TotalItems: c.TotalItems(),
		At:         p.now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "could not marshal cart")
	}

	return p.ch.PublishWithContext(ctx,
		ExchangeName,          // exchange
		RoutingKey(sessionID), // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Subscriber returns a callback suitable for cart.Store.Subscribe.
// Publish failures are logged; they never affect the cart.
func (p *Publisher) Subscriber(sessionID string) func(cart.Cart) {
	return func(c cart.Cart) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, sessionID, c); err != nil {
			p.log.WithError(err).WithField("session_id", sessionID).Warn("failed to publish cart update")
		}
	}
}
