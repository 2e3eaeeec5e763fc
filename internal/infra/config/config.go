package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Backend string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Audio   string `envconfig:"AUDIO_JOB_QUEUE" default:"audio_jobs"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"20s"`
	} `envconfig:""`

	ElevenLabs struct {
		APIKey  string        `envconfig:"ELEVENLABS_API_KEY"`
		BaseURL string        `envconfig:"ELEVENLABS_BASE_URL"`
		VoiceID string        `envconfig:"ELEVENLABS_VOICE_ID"`
		ModelID string        `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_turbo_v2"`
		Timeout time.Duration `envconfig:"ELEVENLABS_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Audio struct {
		PublicBaseURL string        `envconfig:"AUDIO_PUBLIC_BASE_URL" default:"http://localhost:8080"`
		CacheTTL      time.Duration `envconfig:"AUDIO_CACHE_TTL" default:"168h"`
	} `envconfig:""`

	Session struct {
		StoryCacheTTL  time.Duration `envconfig:"STORY_CACHE_TTL" default:"6h"`
		InactivityTTL  time.Duration `envconfig:"SESSION_INACTIVITY_TTL" default:"24h"`
		SweepSchedule  string        `envconfig:"SWEEP_SCHEDULE" default:"@every 15m"`
		HistoryLimit   int           `envconfig:"CONVERSATION_HISTORY_LIMIT" default:"6"`
		HandlerTimeout time.Duration `envconfig:"HANDLER_TIMEOUT" default:"25s"`
	} `envconfig:""`

	Retry struct {
		MaxAttempts     int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
		InitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"300ms"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
