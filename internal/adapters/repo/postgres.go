package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool        *pgxpool.Pool
	queueWindow time.Duration
}

var (
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
	_ domain.SessionRepo        = (*Postgres)(nil)
	_ domain.StoryCatalog       = (*Postgres)(nil)
	_ domain.StoryAudioRepo     = (*Postgres)(nil)
	_ domain.ConversationLog    = (*Postgres)(nil)
	_ domain.AudioStore         = (*Postgres)(nil)
)

const defaultQueueWindow = 24 * time.Hour

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, queueWindow: defaultQueueWindow}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, session_id, metadata, occurred_at)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5)
`, metric.Event, metric.UserID, metric.SessionID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}
