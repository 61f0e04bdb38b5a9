// Package amqp fans change announcements out over a RabbitMQ fanout exchange
// and queues desktop alerts for an alert agent.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"billtracker/internal/changefeed"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	queueName    string
	origin       string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient dials url and declares the fanout exchange and the alert queue.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		origin:       uuid.NewString(),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Origin identifies this process on the exchange.
func (c *Client) Origin() string {
	return c.origin
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.conn = conn
	c.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return nil
}

// reconnect replaces a dead connection. Caller holds c.mu.
func (c *Client) reconnect() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	return c.connect()
}

// PublishChange announces a table write.
func (c *Client) PublishChange(ctx context.Context, change changefeed.Change) error {
	body, err := NewChangeMessage(change, c.origin).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, c.exchangeName, "", body)
}

// PublishAlert queues a desktop alert for the alert agent.
func (c *Client) PublishAlert(ctx context.Context, msg *AlertMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, "", c.queueName, body)
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %q: %w", exchange+key, ErrCircuitOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.channel.IsClosed() {
		if err := c.reconnect(); err != nil {
			c.recordFailure()
			return fmt.Errorf("reconnect: %w", err)
		}
	}

	err := c.channel.PublishWithContext(ctx, exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			_ = c.reconnect()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// ConsumeChanges binds a private queue to the exchange and hands every foreign
// change to handler. It reconnects with exponential backoff until ctx is done.
func (c *Client) ConsumeChanges(ctx context.Context, handler func(*ChangeMessage)) error {
	return c.consumeLoop(ctx, "changes", func(ch *amqp091.Channel) (<-chan amqp091.Delivery, error) {
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return nil, fmt.Errorf("declare change queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
			return nil, fmt.Errorf("bind change queue: %w", err)
		}
		return ch.Consume(q.Name, "", true, true, false, false, nil)
	}, func(d amqp091.Delivery) {
		msg, err := ChangeMessageFromJSON(d.Body)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal change message", "error", err)
			return
		}
		if msg.Origin == c.origin {
			return
		}
		handler(msg)
	})
}

// ConsumeAlerts delivers queued alerts to handler. Failed alerts are requeued.
func (c *Client) ConsumeAlerts(ctx context.Context, handler func(*AlertMessage) error) error {
	return c.consumeLoop(ctx, "alerts", func(ch *amqp091.Channel) (<-chan amqp091.Delivery, error) {
		if err := ch.Qos(10, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
		return ch.Consume(c.queueName, "", false, false, false, false, nil)
	}, func(d amqp091.Delivery) {
		msg, err := AlertMessageFromJSON(d.Body)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal alert message", "error", err)
			_ = d.Nack(false, false)
			return
		}
		if err := handler(msg); err != nil {
			slog.ErrorContext(ctx, "Failed to handle alert", "error", err, "tag", msg.Tag)
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
	})
}

func (c *Client) consumeLoop(
	ctx context.Context,
	name string,
	start func(*amqp091.Channel) (<-chan amqp091.Delivery, error),
	handle func(amqp091.Delivery),
) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, start, handle)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "consumer", name)
			return ctx.Err()
		}
		if err == nil {
			attempt = 0
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Consumer interrupted, retrying",
			"consumer", name, "error", err, "backoff", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(
	ctx context.Context,
	start func(*amqp091.Channel) (<-chan amqp091.Delivery, error),
	handle func(amqp091.Delivery),
) error {
	c.mu.Lock()
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.reconnect(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	ch, err := c.conn.Channel()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := start(ch)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("message channel closed")
			}
			handle(d)
		}
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// recordFailure is called with c.mu held.
func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
