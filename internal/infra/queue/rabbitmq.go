package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
)

// RabbitAudioQueue реализует очередь задач через AMQP с ручным подтверждением.
type RabbitAudioQueue struct {
	conn       *amqp.Connection
	publish    *amqp.Channel
	consume    *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

var _ domain.AudioJobQueue = (*RabbitAudioQueue)(nil)

// NewRabbitAudioQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitAudioQueue(amqpURL, queue string) (*RabbitAudioQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	publish, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if _, err := publish.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitAudioQueue{conn: conn, publish: publish, queue: queue}, nil
}

// Close закрывает соединение с брокером.
func (q *RabbitAudioQueue) Close() error {
	return q.conn.Close()
}

// Enqueue публикует задачу в очередь.
func (q *RabbitAudioQueue) Enqueue(ctx context.Context, job domain.AudioJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.publish.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RabbitAudioQueue) Receive(ctx context.Context) (domain.AudioJob, domain.AudioAckFunc, error) {
	if q.deliveries == nil {
		if err := q.startConsumer(); err != nil {
			return domain.AudioJob{}, nil, err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return domain.AudioJob{}, nil, ctx.Err()
		case d, ok := <-q.deliveries:
			if !ok {
				q.deliveries = nil
				return domain.AudioJob{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var job domain.AudioJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				return d.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

func (q *RabbitAudioQueue) startConsumer() error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	q.consume = ch
	q.deliveries = deliveries
	return nil
}
