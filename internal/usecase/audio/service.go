package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
	"voice-briefing/internal/usecase/briefing"
)

const (
	maxJobAttempts     = 3
	defaultDedupWindow = time.Hour
)

// Invalidator сбрасывает закэшированную новость после обновления.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// Service ставит в очередь и выполняет озвучку новостей.
type Service struct {
	queue       domain.AudioJobQueue
	catalog     domain.StoryCatalog
	stories     domain.StoryAudioRepo
	speech      domain.SpeechRenderer
	dedup       domain.Cache
	invalidator Invalidator
	dedupWindow time.Duration
	log         zerolog.Logger
}

var _ domain.AudioPrefetcher = (*Service)(nil)

// NewService создаёт сервис озвучки. speech нужен только воркеру, dedup и invalidator могут быть nil.
func NewService(queue domain.AudioJobQueue, catalog domain.StoryCatalog, stories domain.StoryAudioRepo, speech domain.SpeechRenderer, dedup domain.Cache, invalidator Invalidator, logger zerolog.Logger) *Service {
	return &Service{
		queue:       queue,
		catalog:     catalog,
		stories:     stories,
		speech:      speech,
		dedup:       dedup,
		invalidator: invalidator,
		dedupWindow: defaultDedupWindow,
		log:         logger,
	}
}

// PrefetchAudio ставит в очередь новости без озвучки. Одна новость ставится не чаще раза в окно.
func (s *Service) PrefetchAudio(ctx context.Context, stories []domain.Story) error {
	var errs []error
	for _, story := range stories {
		if story.AudioURL != "" {
			continue
		}
		if err := s.enqueueOnce(ctx, story.ID, domain.AudioCauseSessionStart); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Backfill ставит в очередь свежие новости, у которых ещё нет озвучки.
func (s *Service) Backfill(ctx context.Context, limit int) (int, error) {
	stories, err := s.stories.ListStoriesWithoutAudio(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("новости без озвучки: %w", err)
	}
	queued := 0
	for _, story := range stories {
		if err := s.enqueueOnce(ctx, story.ID, domain.AudioCauseBackfill); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func (s *Service) enqueueOnce(ctx context.Context, storyID string, cause domain.AudioJobCause) error {
	enqueue := func() error {
		return s.queue.Enqueue(ctx, domain.AudioJob{
			ID:          uuid.NewString(),
			StoryID:     storyID,
			RequestedAt: time.Now().UTC(),
			Cause:       cause,
		})
	}
	if s.dedup == nil {
		return enqueue()
	}
	if err := s.dedup.Once(ctx, "audio-job:"+storyID, s.dedupWindow, enqueue); err != nil {
		return fmt.Errorf("постановка озвучки %s: %w", storyID, err)
	}
	return nil
}

// Process озвучивает новость и сохраняет ссылку.
func (s *Service) Process(ctx context.Context, job domain.AudioJob) error {
	story, err := s.catalog.GetStory(ctx, job.StoryID)
	if err != nil {
		return fmt.Errorf("получение новости: %w", err)
	}
	if story.AudioURL != "" {
		return nil
	}
	text := briefing.Narration(story)
	if text == "" {
		return fmt.Errorf("новость %s без текста", story.ID)
	}
	url, err := s.speech.RenderSpeech(ctx, text)
	if err != nil {
		return fmt.Errorf("синтез: %w", err)
	}
	if err := s.stories.SetStoryAudioURL(ctx, story.ID, url); err != nil {
		return fmt.Errorf("сохранение ссылки: %w", err)
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, story.ID); err != nil {
			s.log.Warn().Err(err).Str("story_id", story.ID).Msg("audio: не удалось сбросить кэш новости")
		}
	}
	return nil
}

// Run читает очередь до отмены ctx.
func (s *Service) Run(ctx context.Context) {
	for {
		job, ack, err := s.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.log.Error().Err(err).Msg("audio: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		s.handle(ctx, job, ack)
	}
}

func (s *Service) handle(ctx context.Context, job domain.AudioJob, ack domain.AudioAckFunc) {
	log := s.log.With().Str("job_id", job.ID).Str("story_id", job.StoryID).Str("cause", string(job.Cause)).Int("attempt", job.Attempt).Logger()

	if job.StoryID == "" {
		log.Error().Msg("audio: задача без новости, подтверждаем и пропускаем")
		metrics.AudioJobsProcessed.WithLabelValues("invalid").Inc()
		s.ack(log, ack, true)
		return
	}

	err := s.Process(ctx, job)
	switch {
	case err == nil:
		metrics.AudioJobsProcessed.WithLabelValues("done").Inc()
		log.Info().Msg("audio: новость озвучена")
		s.ack(log, ack, true)
	case errors.Is(err, domain.ErrStoryNotFound):
		metrics.AudioJobsProcessed.WithLabelValues("dropped").Inc()
		log.Warn().Err(err).Msg("audio: новость не найдена, задача снята")
		s.ack(log, ack, true)
	case ctx.Err() != nil:
		s.ack(log, ack, false)
	case job.Attempt+1 >= maxJobAttempts:
		metrics.AudioJobsProcessed.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("audio: достигнут предел попыток")
		s.ack(log, ack, true)
	default:
		metrics.AudioJobsProcessed.WithLabelValues("retry").Inc()
		log.Warn().Err(err).Msg("audio: ошибка озвучки, повторим позже")
		retryJob := job
		retryJob.Attempt++
		if err := s.queue.Enqueue(ctx, retryJob); err != nil {
			log.Error().Err(err).Msg("audio: не удалось переставить задачу")
			s.ack(log, ack, false)
			return
		}
		s.ack(log, ack, true)
	}
}

func (s *Service) ack(log zerolog.Logger, ack domain.AudioAckFunc, success bool) {
	if ack == nil {
		return
	}
	if err := ack(success); err != nil {
		log.Error().Err(err).Bool("success", success).Msg("audio: не удалось подтвердить задачу")
	}
}
