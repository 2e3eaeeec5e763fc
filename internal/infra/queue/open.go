package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"voice-briefing/internal/domain"
)

const (
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
)

// Open создаёт очередь задач озвучки выбранного бэкенда. Возвращаемая функция освобождает ресурсы очереди.
func Open(backend, name string, redisClient *redis.Client, rabbitURL string) (domain.AudioJobQueue, func() error, error) {
	switch backend {
	case BackendRedis, "":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("queue: backend %q requires REDIS_ADDR", BackendRedis)
		}
		return NewRedisAudioQueue(redisClient, name), func() error { return nil }, nil
	case BackendRabbitMQ:
		q, err := NewRabbitAudioQueue(rabbitURL, name)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("queue: unknown backend %q", backend)
	}
}
