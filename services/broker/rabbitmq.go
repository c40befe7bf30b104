package brokersvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/services/breaker"
)

const DefaultQueue = "registration.decided"

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes registration decisions to a durable queue.
type RabbitMQPublisher struct {
	conn   *amqp.Connection
	ch     channel
	queue  string
	cb     *gobreaker.CircuitBreaker
	logger core.Logger
}

var (
	_ registration.EventPublisher = (*RabbitMQPublisher)(nil)
	_ core.Pinger                  = (*RabbitMQPublisher)(nil)
)

func NewRabbitMQPublisher(url, queue string, logger core.Logger) (*RabbitMQPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declaring queue %s", queue)
	}

	pub := newPublisher(ch, queue, logger)
	pub.conn = conn
	return pub, nil
}

func newPublisher(ch channel, queue string, logger core.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		ch:     ch,
		queue:  queue,
		cb:     breakersvc.New(breakersvc.RabbitMQ, logger),
		logger: logger,
	}
}

func (p *RabbitMQPublisher) PublishDecision(ctx context.Context, evt registration.DecisionEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encoding decision event")
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
		return ctx.Err()
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.ch.PublishWithContext(
			ctx,
			"",      // default exchange
			p.queue, // routing key == queue name
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    evt.RegistrationID,
				Type:         "registration." + string(evt.Status),
				Timestamp:    evt.DecidedAt,
				Body:         body,
			},
		)
	})
	if breakersvc.IsOpen(err) {
		return core.NewTransientError(errors.Wrap(err, "broker unavailable"))
	}
	return errors.Wrap(err, "publishing decision event")
}

// PingContext reports whether the broker connection is still open.
func (p *RabbitMQPublisher) PingContext(context.Context) error {
	if p.conn != nil && p.conn.IsClosed() {
		return errors.New("broker connection closed")
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return errors.Wrap(err, "closing channel")
		}
	}
	if p.conn != nil {
		return errors.Wrap(p.conn.Close(), "closing connection")
	}
	return nil
}
