package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
)

const sessionColumns = `id, owner_id, story_queue, current_index, status, version, created_at, last_activity_at`

// CreateSession реализует domain.SessionRepo.
func (p *Postgres) CreateSession(ctx context.Context, s domain.Session) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO briefing_sessions (id, owner_id, story_queue, current_index, status, version, created_at, last_activity_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, s.ID, s.OwnerID, s.StoryQueue, s.CurrentIndex, string(s.Status), s.Version, s.CreatedAt, s.LastActivityAt)
	metrics.ObserveNetworkRequest("postgres", "sessions_insert", "briefing_sessions", start, err)
	return err
}

// LoadSession реализует domain.SessionRepo.
func (p *Postgres) LoadSession(ctx context.Context, id string) (domain.Session, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM briefing_sessions WHERE id=$1`, id)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "sessions_get", "briefing_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s, err
}

// UpdateSession сохраняет сессию при совпадении версии и увеличивает её.
func (p *Postgres) UpdateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE briefing_sessions
SET current_index=$3, status=$4, last_activity_at=$5, version=version+1
WHERE id=$1 AND version=$2
RETURNING `+sessionColumns,
		s.ID, s.Version, s.CurrentIndex, string(s.Status), s.LastActivityAt)
	saved, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "sessions_update", "briefing_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, loadErr := p.LoadSession(ctx, s.ID); errors.Is(loadErr, domain.ErrSessionNotFound) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("сессия %s версия %d: %w", s.ID, s.Version, domain.ErrVersionConflict)
	}
	return saved, err
}

// DeleteInactiveSessions реализует domain.SessionRepo.
func (p *Postgres) DeleteInactiveSessions(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM briefing_sessions WHERE last_activity_at < $1`, before)
	metrics.ObserveNetworkRequest("postgres", "sessions_delete_inactive", "briefing_sessions", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		s      domain.Session
		status string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.StoryQueue, &s.CurrentIndex, &status, &s.Version, &s.CreatedAt, &s.LastActivityAt); err != nil {
		return domain.Session{}, err
	}
	s.Status = domain.SessionStatus(status)
	return s, nil
}
