package triggers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the subset of *amqp.Channel the queue uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Close() error
}

const amqpPollInterval = 200 * time.Millisecond

// AMQPQueue implements Queue on a durable RabbitMQ queue using the default
// exchange. Unacknowledged deliveries are redelivered when the channel closes.
type AMQPQueue struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
	poll  time.Duration
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("triggers: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("triggers: open amqp channel: %w", err)
	}
	q, err := newAMQPQueueWithChannel(ch, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	q.conn = conn
	return q, nil
}

func newAMQPQueueWithChannel(ch amqpChannel, queue string) (*AMQPQueue, error) {
	if ch == nil {
		panic("triggers: amqp channel required")
	}
	if queue == "" {
		panic("triggers: amqp queue name required")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("triggers: declare amqp queue: %w", err)
	}
	return &AMQPQueue{ch: ch, queue: queue, poll: amqpPollInterval}, nil
}

func (q *AMQPQueue) Send(ctx context.Context, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         []byte(body),
	})
	if err != nil {
		return fmt.Errorf("triggers: failed to publish amqp message: %w", err)
	}
	return nil
}

// Receive polls the queue until at least one message arrives, ctx is done, or
// waitSeconds elapse.
func (q *AMQPQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	deadline := time.Now().Add(time.Duration(waitSeconds) * time.Second)
	for {
		messages, err := q.drain(maxMessages)
		if err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			return messages, nil
		}
		if waitSeconds > 0 && !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.poll):
		}
	}
}

func (q *AMQPQueue) drain(max int) ([]queueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var messages []queueMessage
	for len(messages) < max {
		d, ok, err := q.ch.Get(q.queue, false)
		if err != nil {
			return nil, fmt.Errorf("triggers: failed to get amqp message: %w", err)
		}
		if !ok {
			break
		}
		messages = append(messages, queueMessage{
			ID:            d.MessageId,
			Body:          string(d.Body),
			ReceiptHandle: strconv.FormatUint(d.DeliveryTag, 10),
		})
	}
	return messages, nil
}

// Delete acknowledges the delivery identified by receiptHandle.
func (q *AMQPQueue) Delete(_ context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	tag, err := strconv.ParseUint(receiptHandle, 10, 64)
	if err != nil {
		return fmt.Errorf("triggers: invalid amqp receipt %q: %w", receiptHandle, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Ack(tag, false); err != nil {
		return fmt.Errorf("triggers: failed to ack amqp message: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.Close()
	if q.conn != nil {
		if cerr := q.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
