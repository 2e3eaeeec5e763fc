// Package sweep удаляет брифинги, по которым давно не было активности.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
)

const (
	defaultInactivityTTL = 24 * time.Hour
	sweepTimeout         = time.Minute
)

// Service удаляет неактивные сессии.
type Service struct {
	sessions domain.SessionRepo
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис очистки.
func NewService(sessions domain.SessionRepo, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultInactivityTTL
	}
	return &Service{sessions: sessions, ttl: ttl, now: func() time.Time { return time.Now().UTC() }, log: logger}
}

// Sweep удаляет сессии без активности дольше ttl и возвращает их число.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.ttl)
	n, err := s.sessions.DeleteInactiveSessions(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("удаление неактивных сессий: %w", err)
	}
	metrics.SessionsSwept.Add(float64(n))
	return n, nil
}

// Scheduler запускает Sweep по cron-расписанию.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	log     zerolog.Logger
}

// NewScheduler регистрирует очистку по расписанию schedule (например, "@every 15m").
func NewScheduler(service *Service, schedule string, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		service: service,
		log:     logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("расписание %q: %w", schedule, err)
	}
	return s, nil
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения текущего прогона.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	n, err := s.service.Sweep(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweeper: ошибка очистки")
		return
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Msg("sweeper: удалены неактивные сессии")
	}
}
