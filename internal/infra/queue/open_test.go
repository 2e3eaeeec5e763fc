package queue

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestOpenRedisRequiresClient(t *testing.T) {
	_, _, err := Open(BackendRedis, "audio_jobs", nil, "")
	require.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	q, closeFn, err := Open("", "audio_jobs", client, "")
	require.NoError(t, err)
	require.IsType(t, &RedisAudioQueue{}, q)
	require.NoError(t, closeFn())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, _, err := Open("kafka", "audio_jobs", nil, "")
	require.ErrorContains(t, err, "unknown backend")
}

func TestOpenRabbitRequiresURL(t *testing.T) {
	_, _, err := Open(BackendRabbitMQ, "audio_jobs", nil, "")
	require.ErrorContains(t, err, "amqp url is empty")
}
