package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     string
	SessionID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventBriefingStarted фиксирует старт брифинга.
	BusinessMetricEventBriefingStarted = "briefing_started"
	// BusinessMetricEventBriefingCompleted фиксирует завершение брифинга.
	BusinessMetricEventBriefingCompleted = "briefing_completed"
	// BusinessMetricEventUtteranceHandled фиксирует обработанную реплику.
	BusinessMetricEventUtteranceHandled = "utterance_handled"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
