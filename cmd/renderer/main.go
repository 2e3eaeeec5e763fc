package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voice-briefing/internal/adapters/catalog"
	"voice-briefing/internal/adapters/repo"
	"voice-briefing/internal/adapters/speech"
	"voice-briefing/internal/adapters/tts"
	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/cache"
	"voice-briefing/internal/infra/config"
	"voice-briefing/internal/infra/db"
	applog "voice-briefing/internal/infra/log"
	"voice-briefing/internal/infra/metrics"
	"voice-briefing/internal/infra/queue"
	"voice-briefing/internal/infra/retry"
	audiousecase "voice-briefing/internal/usecase/audio"
)

const (
	backfillInterval = 5 * time.Minute
	backfillBatch    = 50
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("renderer: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	if cfg.ElevenLabs.APIKey == "" {
		logger.Fatal().Msg("renderer: не указан ключ ElevenLabs (ELEVENLABS_API_KEY)")
	}

	var (
		redisClient *redis.Client
		redisCache  domain.Cache
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("renderer: нет подключения к Redis")
		}
		defer redisClient.Close()
		redisCache = cache.NewRedis(redisClient, "briefing:")
	}

	jobQueue, closeQueue, err := queue.Open(cfg.Queues.Backend, cfg.Queues.Audio, redisClient, cfg.RabbitURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("renderer: не удалось инициализировать очередь озвучки")
	}
	defer func() { _ = closeQueue() }()

	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, InitialInterval: cfg.Retry.InitialInterval}
	renderer := speech.NewRenderer(
		tts.NewElevenLabs(tts.Config{
			APIKey:  cfg.ElevenLabs.APIKey,
			BaseURL: cfg.ElevenLabs.BaseURL,
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.ElevenLabs.ModelID,
			Timeout: cfg.ElevenLabs.Timeout,
		}),
		repoAdapter,
		redisCache,
		speech.Options{
			PublicBaseURL: cfg.Audio.PublicBaseURL,
			ContentType:   tts.ContentType,
			CacheTTL:      cfg.Audio.CacheTTL,
			Retry:         policy,
			Retryable:     tts.IsRetryable,
		},
		applog.Component(logger, "speech"),
	)

	var (
		storyCatalog domain.StoryCatalog = repoAdapter
		invalidator  audiousecase.Invalidator
	)
	if redisCache != nil {
		cached := catalog.NewCached(repoAdapter, redisCache, cfg.Session.StoryCacheTTL, applog.Component(logger, "catalog"))
		storyCatalog = cached
		invalidator = cached
	}

	service := audiousecase.NewService(jobQueue, storyCatalog, repoAdapter, renderer, redisCache, invalidator, applog.Component(logger, "audio"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msg("renderer: запуск обработки очереди")
		service.Run(gctx)
		return nil
	})
	g.Go(func() error {
		backfillLoop(gctx, logger, service)
		return nil
	})
	_ = g.Wait()
	logger.Info().Msg("renderer: остановлен")
}

// backfillLoop периодически ставит в очередь новости, оставшиеся без озвучки.
func backfillLoop(ctx context.Context, logger zerolog.Logger, service *audiousecase.Service) {
	ticker := time.NewTicker(backfillInterval)
	defer ticker.Stop()
	for {
		n, err := service.Backfill(ctx, backfillBatch)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error().Err(err).Msg("renderer: ошибка добора новостей без озвучки")
		case n > 0:
			logger.Info().Int("enqueued", n).Msg("renderer: новости поставлены на озвучку")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
