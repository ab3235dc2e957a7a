// Package push receives order push events over RabbitMQ. Push is a latency
// optimization only: every event just accelerates the next poll, so delivery
// here is best-effort and the consumer never blocks the engine.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"cinepos/internal/model"
)

const (
	exchange       = "orders.push"
	reconnectDelay = 5 * time.Second
)

// Handler is invoked for every decoded push event. It must not block.
type Handler func(model.PushEvent)

type Consumer struct {
	url       string
	theaterID string
	handler   Handler
}

func NewConsumer(url, theaterID string, h Handler) *Consumer {
	return &Consumer{url: url, theaterID: theaterID, handler: h}
}

// Run consumes until ctx is done, reconnecting after a fixed delay whenever
// the broker connection drops. The poll loop covers any events lost in the
// gap.
func (c *Consumer) Run(ctx context.Context) {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("push: consumer disconnected")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("push: dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("push: open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("push: declare exchange: %w", err)
	}

	// Exclusive auto-delete queue: each agent instance gets its own stream
	// and stale messages die with the connection.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("push: declare queue: %w", err)
	}
	routingKey := "theater." + c.theaterID
	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("push: bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("push: start consuming: %w", err)
	}
	log.Info().Str("queue", q.Name).Str("routing_key", routingKey).Msg("push: consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closeChan:
			if amqpErr != nil {
				return fmt.Errorf("push: channel closed: %w", amqpErr)
			}
			return fmt.Errorf("push: channel closed")
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("push: message stream closed")
			}
			c.dispatch(msg.Body)
		}
	}
}

// dispatch decodes one message and hands it to the handler. Malformed
// payloads are logged and dropped so one bad producer cannot wedge the
// stream.
func (c *Consumer) dispatch(body []byte) {
	var ev model.PushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Warn().Err(err).Msg("push: undecodable event dropped")
		return
	}
	if !ev.Identity().Valid() {
		log.Warn().RawJSON("event", body).Msg("push: event without order identity dropped")
		return
	}
	c.handler(ev)
}
