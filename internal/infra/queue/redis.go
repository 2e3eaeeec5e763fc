package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-briefing/internal/domain"
)

// RedisAudioQueue реализует очередь задач на базе Redis lists.
type RedisAudioQueue struct {
	client *redis.Client
	key    string
}

var _ domain.AudioJobQueue = (*RedisAudioQueue)(nil)

// NewRedisAudioQueue создаёт очередь по указанному ключу.
func NewRedisAudioQueue(client *redis.Client, key string) *RedisAudioQueue {
	return &RedisAudioQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisAudioQueue) Enqueue(ctx context.Context, job domain.AudioJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Отказ в ack возвращает задачу в хвост очереди.
func (q *RedisAudioQueue) Receive(ctx context.Context) (domain.AudioJob, domain.AudioAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.AudioJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.AudioJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.AudioJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.AudioJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.AudioJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.AudioJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
