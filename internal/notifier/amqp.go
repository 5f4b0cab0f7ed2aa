package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

const TicketsIssuedQueue = "tickets.issued"

// AMQPPublisher is a Dispatcher that publishes jobs to a durable RabbitMQ
// queue for a Consumer to deliver.
type AMQPPublisher struct {
	url  string
	dead DeadLetterSink

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string, dead DeadLetterSink) *AMQPPublisher {
	return &AMQPPublisher{url: url, dead: dead}
}

func (p *AMQPPublisher) Dispatch(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	err = p.publish(ctx, body)
	if err != nil {
		// One reconnect attempt covers a broker restart between publishes.
		p.reset()
		err = p.publish(ctx, body)
	}
	if err != nil {
		logger.Errorf("[DISPATCH_FAILED] order_ref=%s publish failed: %v", job.OrderReference, err)
		if p.dead != nil {
			if dlErr := p.dead.Put(job, err); dlErr != nil {
				logger.Errorf("[DISPATCH_FAILED] order_ref=%s dead letter write failed: %v", job.OrderReference, dlErr)
			}
		}
		return err
	}
	logger.Debugf("[DISPATCH] order_ref=%s queued on %s", job.OrderReference, TicketsIssuedQueue)
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return fmt.Errorf("dial broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("open channel: %w", err)
		}
		if _, err := ch.QueueDeclare(TicketsIssuedQueue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare queue: %w", err)
		}
		p.conn, p.ch = conn, ch
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.ch.PublishWithContext(ctx, "", TicketsIssuedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *AMQPPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *AMQPPublisher) Close() {
	p.reset()
}

// Consumer delivers jobs from the tickets.issued queue.
type Consumer struct {
	url      string
	sender   Sender
	dead     DeadLetterSink
	prefetch int
}

func NewConsumer(url string, sender Sender, dead DeadLetterSink, prefetch int) *Consumer {
	if prefetch < 1 {
		prefetch = 1
	}
	return &Consumer{url: url, sender: sender, dead: dead, prefetch: prefetch}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			logger.Warnf("[CONSUMER] dial failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("[CONSUMER] consume loop ended: %v; reconnecting", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		logger.Warnf("[CONSUMER] set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(TicketsIssuedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(TicketsIssuedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		logger.Errorf("[CONSUMER] dropping undecodable message: %v", err)
		return err
	}
	return deliver(ctx, c.sender, c.dead, job)
}
