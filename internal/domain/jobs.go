package domain

import (
	"context"
	"time"
)

// AudioJobCause описывает источник задачи на озвучку.
type AudioJobCause string

const (
	// AudioCauseSessionStart — новость попала в очередь только что созданной сессии.
	AudioCauseSessionStart AudioJobCause = "session_start"
	// AudioCauseBackfill — периодический добор новостей без аудио.
	AudioCauseBackfill AudioJobCause = "backfill"
)

// AudioJob содержит информацию о задаче озвучки новости.
type AudioJob struct {
	ID          string        `json:"job_id,omitempty"`
	StoryID     string        `json:"story_id"`
	RequestedAt time.Time     `json:"requested_at"`
	Cause       AudioJobCause `json:"cause"`
	Attempt     int           `json:"attempt,omitempty"`
}

// AudioJobQueue описывает очередь задач на озвучку.
type AudioJobQueue interface {
	Enqueue(ctx context.Context, job AudioJob) error
	Receive(ctx context.Context) (AudioJob, AudioAckFunc, error)
}

// AudioAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AudioAckFunc func(success bool) error
