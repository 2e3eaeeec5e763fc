package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
)

// SaveAudio сохраняет аудиофайл. Повторное сохранение того же ключа ничего не меняет.
func (p *Postgres) SaveAudio(ctx context.Context, a domain.AudioAsset) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO audio_assets (key, content_type, data, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (key) DO NOTHING
`, a.Key, a.ContentType, a.Data, a.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "audio_insert", "audio_assets", start, err)
	return err
}

// LoadAudio реализует domain.AudioStore.
func (p *Postgres) LoadAudio(ctx context.Context, key string) (domain.AudioAsset, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var a domain.AudioAsset
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT key, content_type, data, created_at FROM audio_assets WHERE key=$1`, key).
		Scan(&a.Key, &a.ContentType, &a.Data, &a.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "audio_get", "audio_assets", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AudioAsset{}, domain.ErrAudioNotFound
	}
	return a, err
}
