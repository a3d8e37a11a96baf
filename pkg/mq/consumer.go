package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"habittracker/pkg/metrics"
	"habittracker/pkg/trace"
	"habittracker/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// Disposition is what happens to a delivery after the handler ran.
type Disposition int

const (
	Ack Disposition = iota
	Requeue
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	}
	return "unknown"
}

type retryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RetryPolicy bounds redeliveries of retryable failures. Without a counter
// every retryable failure is requeued.
type RetryPolicy struct {
	Counter    retryCounter
	MaxRetries int64
}

// Decide maps a handler error to a disposition.
func (p RetryPolicy) Decide(ctx context.Context, key string, err error) Disposition {
	if err == nil {
		if p.Counter != nil {
			_ = p.Counter.Reset(ctx, key)
		}
		return Ack
	}

	retryable, _ := util.IsRetryableError(err)
	if !retryable {
		return DeadLetter
	}
	if p.Counter == nil {
		return Requeue
	}

	count, cerr := p.Counter.IncrementAndGet(ctx, key)
	if cerr != nil {
		return Requeue
	}
	if util.ShouldRetry(count, p.MaxRetries, true) {
		return Requeue
	}
	_ = p.Counter.Reset(ctx, key)
	return DeadLetter
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	dlq        *Publisher
	policy     RetryPolicy
	logger     *zap.Logger
}

// NewConsumer creates a consumer for a specific routing key.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, ch, err := openSession(url)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// SetFailureHandling wires dead-lettering and bounded retries.
func (c *Consumer) SetFailureHandling(dlq *Publisher, policy RetryPolicy) {
	c.dlq = dlq
	c.policy = policy
}

// IsConnected checks if the consumer connection is still alive
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Stop cancels the delivery channel so StartConsuming returns.
func (c *Consumer) Stop() {
	if c.channel != nil {
		_ = c.channel.Cancel(c.consumerTag(), false)
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Consumer) consumerTag() string {
	return "habit-worker." + c.queue.Name
}

// StartConsuming blocks until the delivery channel closes; run it in a goroutine.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.consumerTag(),
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for msg := range deliveries {
		c.handleDelivery(msg)
	}

	return nil
}

// handleDelivery guarantees every message is acked or nacked, even on panic.
func (c *Consumer) handleDelivery(msg amqp091.Delivery) {
	start := time.Now()
	ctx := context.Background()
	if traceID, ok := msg.Headers[TraceHeader].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	log := c.logger.With(
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
		metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))
	}()

	herr := c.handler(ctx, msg.Body)
	disposition := c.policy.Decide(ctx, c.retryKey(msg), herr)
	if herr != nil {
		log.Error("Handler error",
			zap.String("disposition", disposition.String()),
			zap.Error(herr),
		)
	}

	switch disposition {
	case Ack:
		if err := msg.Ack(false); err != nil {
			log.Error("Failed to ack message", zap.Error(err))
		}
	case Requeue:
		if err := msg.Nack(false, true); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
	case DeadLetter:
		if c.dlq != nil {
			if err := c.dlq.PublishToDLQ(ctx, c.routingKey, msg.Body, herr.Error()); err != nil {
				log.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
				_ = msg.Nack(false, true)
				return
			}
		}
		if err := msg.Ack(false); err != nil {
			log.Error("Failed to ack dead-lettered message", zap.Error(err))
		}
	}
}

func (c *Consumer) retryKey(msg amqp091.Delivery) string {
	id := msg.MessageId
	if id == "" {
		id = fmt.Sprintf("tag-%d", msg.DeliveryTag)
	}
	return util.FormatRetryKey(c.queue.Name, id)
}
