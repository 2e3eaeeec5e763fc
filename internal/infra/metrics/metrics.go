package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	UtterancesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "briefing_utterances_total",
		Help: "Обработанные реплики по интентам",
	}, []string{"intent"})

	HandlerFaults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "briefing_handler_faults_total",
		Help: "Ошибки обработчиков, превращённые в резервный ответ",
	}, []string{"intent"})

	InterruptionPauseSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "briefing_interruption_pause_seconds",
		Help:    "Время от получения реплики до паузы воспроизведения",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	HandleUtteranceSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "briefing_handle_utterance_seconds",
		Help:    "Полное время обработки реплики",
		Buckets: prometheus.DefBuckets,
	}, []string{"intent"})

	SupersededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "briefing_superseded_total",
		Help: "Реплики, отменённые более новой репликой или остановкой",
	})

	SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "briefing_sessions_started_total",
		Help: "Запущенные брифинги",
	})

	SessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "briefing_sessions_completed_total",
		Help: "Завершённые брифинги",
	})

	SessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "briefing_sessions_swept_total",
		Help: "Сессии, удалённые по неактивности",
	})

	CollaboratorRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collaborator_retries_total",
		Help: "Повторные попытки вызовов внешних сервисов",
	}, []string{"component"})

	AudioJobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_jobs_processed_total",
		Help: "Задачи озвучки по результату",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		UtterancesTotal,
		HandlerFaults,
		InterruptionPauseSeconds,
		HandleUtteranceSeconds,
		SupersededTotal,
		SessionsStarted,
		SessionsCompleted,
		SessionsSwept,
		CollaboratorRetries,
		AudioJobsProcessed,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveUtterance учитывает обработанную реплику.
func ObserveUtterance(intent string, start time.Time) {
	if intent == "" {
		intent = "unknown"
	}
	UtterancesTotal.WithLabelValues(intent).Inc()
	HandleUtteranceSeconds.WithLabelValues(intent).Observe(time.Since(start).Seconds())
}

// ObservePause записывает задержку между репликой и паузой воспроизведения.
func ObservePause(receivedAt time.Time) {
	InterruptionPauseSeconds.Observe(time.Since(receivedAt).Seconds())
}
