package rabbitmq

import (
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// deadLetterSuffix names the exchange and queue that collect messages a handler failed on
// twice.
const deadLetterSuffix = ".dead"

// Consumer delivers messages from a durable queue to per-routing-key handlers.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	default:
		return "dead_letter"
	}
}

// settle decides what happens to a delivery. Unknown routing keys are dropped, a first
// failure is retried once, and a failed redelivery is parked on the dead-letter queue.
func settle(known, handled, redelivered bool) settlement {
	switch {
	case !known, handled:
		return settleAck
	case redelivered:
		return settleDeadLetter
	default:
		return settleRequeue
	}
}

func NewConsumer(amqpURL string, logger *slog.Logger) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}

	return &Consumer{conn: conn, ch: ch, logger: logger.With("component", "rabbitmq_consumer")}, nil
}

// declareTopology declares the topic exchange, the work queue bound to every routing
// key, and the dead-letter exchange and queue behind it.
func (c *Consumer) declareTopology(exchange, queueName string, routingKeys []string) error {
	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	deadExchange := exchange + deadLetterSuffix
	if err := c.ch.ExchangeDeclare(deadExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", deadExchange, err)
	}
	deadQueue, err := c.ch.QueueDeclare(queueName+deadLetterSuffix, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName+deadLetterSuffix, err)
	}
	if err := c.ch.QueueBind(deadQueue.Name, "", deadExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if _, err := c.ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": deadExchange,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	for _, routingKey := range routingKeys {
		if err := c.ch.QueueBind(queueName, routingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queueName, routingKey, err)
		}
	}
	return nil
}

// ConsumeWithBindings binds queueName to exchange for every routing key in bindings and
// dispatches deliveries in a background goroutine. A handler returning false gets the
// message once more; a second failure dead-letters it.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	handlers := make(map[string]func([]byte) bool, len(bindings))
	routingKeys := make([]string, 0, len(bindings))
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		routingKeys = append(routingKeys, routingKey)
	}
	if len(handlers) == 0 {
		return fmt.Errorf("no bindings provided for queue %s", queueName)
	}

	if err := c.declareTopology(exchange, queueName, routingKeys); err != nil {
		return err
	}
	if err := c.ch.Qos(10, 0, false); err != nil {
		return err
	}

	msgs, err := c.ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.logger.Info("consuming", "queue", queueName, "exchange", exchange, "routing_keys", routingKeys)

	go func() {
		for d := range msgs {
			handler, known := handlers[d.RoutingKey]
			handled := known && handler(d.Body)

			outcome := settle(known, handled, d.Redelivered)
			switch outcome {
			case settleAck:
				if !known {
					c.logger.Warn("no handler for routing key; dropping", "routing_key", d.RoutingKey, "message_id", d.MessageId)
				}
				d.Ack(false)
			case settleRequeue:
				c.logger.Warn("handler failed; retrying once", "routing_key", d.RoutingKey, "message_id", d.MessageId)
				d.Nack(false, true)
			case settleDeadLetter:
				c.logger.Error("handler failed on redelivery; dead-lettering",
					"routing_key", d.RoutingKey,
					"message_id", d.MessageId,
					"dead_letter_queue", queueName+deadLetterSuffix,
				)
				d.Nack(false, false)
			}
		}
		c.logger.Info("delivery channel closed", "queue", queueName)
	}()

	return nil
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
