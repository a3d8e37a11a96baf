package mq

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "events"

	heartbeat = 10 * time.Second
)

// Both binaries may start before the broker accepts connections.
var (
	dialAttempts   = 5
	dialBackoff    = 500 * time.Millisecond
	maxDialBackoff = 5 * time.Second

	dial  = amqp091.DialConfig
	sleep = time.Sleep
)

// connectionName shows up in the management UI, e.g. "worker@host-1".
func connectionName() string {
	host, _ := os.Hostname()
	return filepath.Base(os.Args[0]) + "@" + host
}

// NewConnection dials the broker, backing off between failed attempts.
func NewConnection(url string) (*amqp091.Connection, error) {
	cfg := amqp091.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Properties: amqp091.Table{
			"connection_name": connectionName(),
		},
	}

	backoff := dialBackoff
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := dial(url, cfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == dialAttempts {
			break
		}
		sleep(backoff)
		backoff = min(backoff*2, maxDialBackoff)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, lastErr)
}

// DeclareExchange declares the durable topic exchange habit events go to.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil)
}

// openSession connects and returns a channel with the events and dead letter
// exchanges declared. The caller owns both.
func openSession(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	return conn, ch, nil
}
