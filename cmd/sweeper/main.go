package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"voice-briefing/internal/adapters/repo"
	"voice-briefing/internal/infra/config"
	"voice-briefing/internal/infra/db"
	applog "voice-briefing/internal/infra/log"
	"voice-briefing/internal/infra/metrics"
	"voice-briefing/internal/usecase/sweep"
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
		logger.Fatal().Err(err).Msg("sweeper: нет подключения к БД")
	}
	defer pool.Close()

	service := sweep.NewService(repo.NewPostgres(pool), cfg.Session.InactivityTTL, applog.Component(logger, "sweeper"))
	scheduler, err := sweep.NewScheduler(service, cfg.Session.SweepSchedule, applog.Component(logger, "sweeper"))
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: некорректное расписание")
	}

	logger.Info().Str("schedule", cfg.Session.SweepSchedule).Dur("ttl", cfg.Session.InactivityTTL).Msg("sweeper: старт")
	scheduler.Start()
	<-ctx.Done()
	scheduler.Stop()
	logger.Info().Msg("sweeper: остановлен")
}
