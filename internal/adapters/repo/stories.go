package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
)

const storyColumns = `id, headline, short_summary, long_summary, source_name, publisher, issue_subject, url, published_at, audio_url`

// FetchStoryQueue возвращает новости пользователя за последние сутки в порядке выдачи конвейера.
func (p *Postgres) FetchStoryQueue(ctx context.Context, userID string) ([]domain.Story, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	since := time.Now().UTC().Add(-p.queueWindow)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+storyColumns+`
FROM stories
WHERE user_id=$1 AND created_at >= $2
ORDER BY position ASC, published_at DESC, id ASC
`, userID, since)
	metrics.ObserveNetworkRequest("postgres", "stories_queue", "stories", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []domain.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// GetStory реализует domain.StoryCatalog.
func (p *Postgres) GetStory(ctx context.Context, id string) (domain.Story, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanStory(p.pool.QueryRow(ctx, `SELECT `+storyColumns+` FROM stories WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "stories_get", "stories", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Story{}, domain.ErrStoryNotFound
	}
	return s, err
}

// ListStoriesWithoutAudio возвращает свежие новости, для которых ещё нет озвучки.
func (p *Postgres) ListStoriesWithoutAudio(ctx context.Context, limit int) ([]domain.Story, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+storyColumns+`
FROM stories
WHERE COALESCE(audio_url,'') = '' AND created_at >= $1
ORDER BY created_at ASC
LIMIT $2
`, time.Now().UTC().Add(-p.queueWindow), limit)
	metrics.ObserveNetworkRequest("postgres", "stories_without_audio", "stories", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []domain.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// SetStoryAudioURL сохраняет ссылку на озвучку новости.
func (p *Postgres) SetStoryAudioURL(ctx context.Context, storyID, audioURL string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE stories SET audio_url=$2 WHERE id=$1`, storyID, audioURL)
	metrics.ObserveNetworkRequest("postgres", "stories_set_audio", "stories", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStoryNotFound
	}
	return nil
}

func scanStory(row pgx.Row) (domain.Story, error) {
	var (
		s                                             domain.Story
		long, source, publisher, issue, url, audioURL sql.NullString
		published                                     sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Headline, &s.ShortSummary, &long, &source, &publisher, &issue, &url, &published, &audioURL); err != nil {
		return domain.Story{}, err
	}
	s.LongSummary = long.String
	s.SourceName = source.String
	s.Publisher = publisher.String
	s.IssueSubject = issue.String
	s.URL = url.String
	s.AudioURL = audioURL.String
	if published.Valid {
		s.PublishedAt = published.Time
	}
	return s, nil
}
