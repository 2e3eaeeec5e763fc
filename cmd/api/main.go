package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voice-briefing/internal/adapters/answerer"
	"voice-briefing/internal/adapters/catalog"
	"voice-briefing/internal/adapters/httpapi"
	"voice-briefing/internal/adapters/playback"
	"voice-briefing/internal/adapters/repo"
	"voice-briefing/internal/adapters/speech"
	"voice-briefing/internal/adapters/tts"
	"voice-briefing/internal/adapters/voice"
	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/cache"
	"voice-briefing/internal/infra/config"
	"voice-briefing/internal/infra/db"
	httpinfra "voice-briefing/internal/infra/http"
	applog "voice-briefing/internal/infra/log"
	"voice-briefing/internal/infra/metrics"
	"voice-briefing/internal/infra/openai"
	"voice-briefing/internal/infra/queue"
	"voice-briefing/internal/infra/retry"
	audiousecase "voice-briefing/internal/usecase/audio"
	"voice-briefing/internal/usecase/briefing"
	"voice-briefing/internal/usecase/intent"
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
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, InitialInterval: cfg.Retry.InitialInterval}

	var (
		redisClient *redis.Client
		storyCache  domain.Cache
		speechCache domain.Cache
		jobDedup    domain.Cache
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
		}
		defer redisClient.Close()
		storyCache = cache.NewRedis(redisClient, "briefing:")
		speechCache = cache.NewRedis(redisClient, "briefing:")
		jobDedup = cache.NewRedis(redisClient, "briefing:")
	} else {
		logger.Warn().Msg("api: REDIS_ADDR не задан, кэш новостей и озвучки отключён")
	}

	var (
		storyCatalog domain.StoryCatalog = repoAdapter
		invalidator  audiousecase.Invalidator
	)
	if storyCache != nil {
		cached := catalog.NewCached(repoAdapter, storyCache, cfg.Session.StoryCacheTTL, applog.Component(logger, "catalog"))
		storyCatalog = cached
		invalidator = cached
	}

	var speechRenderer domain.SpeechRenderer
	if cfg.ElevenLabs.APIKey != "" {
		speechRenderer = speech.NewRenderer(
			tts.NewElevenLabs(tts.Config{
				APIKey:  cfg.ElevenLabs.APIKey,
				BaseURL: cfg.ElevenLabs.BaseURL,
				VoiceID: cfg.ElevenLabs.VoiceID,
				ModelID: cfg.ElevenLabs.ModelID,
				Timeout: cfg.ElevenLabs.Timeout,
			}),
			repoAdapter,
			speechCache,
			speech.Options{
				PublicBaseURL: cfg.Audio.PublicBaseURL,
				ContentType:   tts.ContentType,
				CacheTTL:      cfg.Audio.CacheTTL,
				Retry:         policy,
				Retryable:     tts.IsRetryable,
			},
			applog.Component(logger, "speech"),
		)
	} else {
		logger.Warn().Msg("api: ELEVENLABS_API_KEY не задан, ответы будут только текстовыми")
	}

	var questionAnswerer domain.QuestionAnswerer = answerer.NewStub()
	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		questionAnswerer = answerer.NewOpenAI(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout, policy, applog.Component(logger, "answerer"))
	} else {
		logger.Warn().Msg("api: OPENAI_API_KEY не задан, вопросы обрабатывает заглушка")
	}

	var prefetcher domain.AudioPrefetcher
	jobQueue, closeQueue, err := queue.Open(cfg.Queues.Backend, cfg.Queues.Audio, redisClient, cfg.RabbitURL)
	if err != nil {
		logger.Warn().Err(err).Msg("api: очередь озвучки недоступна, озвучка будет на лету")
	} else {
		defer func() { _ = closeQueue() }()
		prefetcher = audiousecase.NewService(jobQueue, storyCatalog, repoAdapter, nil, jobDedup, invalidator, applog.Component(logger, "audio"))
	}

	hub := voice.NewHub(applog.Component(logger, "voice"))
	player := playback.NewController(hub, applog.Component(logger, "playback"))

	deps := briefing.Dependencies{
		Sessions:   repoAdapter,
		Catalog:    storyCatalog,
		Player:     player,
		Speech:     speechRenderer,
		Classifier: intent.NewDefault(),
		Handlers:   briefing.NewHandlers(storyCatalog, questionAnswerer, repoAdapter, cfg.Session.HistoryLimit),
		Chat:       repoAdapter,
		Prefetcher: prefetcher,
		Events:     repoAdapter,
	}
	coordinator := briefing.NewCoordinator(deps, applog.Component(logger, "coordinator"),
		briefing.WithHandlerTimeout(cfg.Session.HandlerTimeout))
	hub.Attach(coordinator)

	server := httpinfra.NewServer(applog.Component(logger, "http"))
	httpapi.New(coordinator, repoAdapter, hub, applog.Component(logger, "api")).Mount(server.Router)

	if err := run(ctx, logger, server, ":"+strconv.Itoa(cfg.Port), coordinator, cfg.Session.InactivityTTL); err != nil {
		logger.Error().Err(err).Msg("api: сервер остановлен с ошибкой")
	}
	logger.Info().Msg("api: остановлен")
}

const pruneInterval = 15 * time.Minute

func run(ctx context.Context, logger zerolog.Logger, server *httpinfra.Server, addr string, coordinator *briefing.Coordinator, idleTTL time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pruneLoop(gctx, coordinator, idleTTL)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("api: старт")
		return server.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("api: остановка")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// pruneLoop сбрасывает состояние плеера сессий, по которым давно не было реплик.
func pruneLoop(ctx context.Context, coordinator *briefing.Coordinator, idleTTL time.Duration) {
	if idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			coordinator.PruneIdle(time.Now().UTC().Add(-idleTTL))
		}
	}
}
