package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
)

// Cached — кэш новостей поверх основного каталога.
// Очередь всегда читается из источника, отдельные новости кэшируются.
type Cached struct {
	next  domain.StoryCatalog
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ domain.StoryCatalog = (*Cached)(nil)

// NewCached оборачивает каталог кэшем.
func NewCached(next domain.StoryCatalog, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Cached{next: next, cache: cache, ttl: ttl, log: logger}
}

// FetchStoryQueue читает очередь из источника и прогревает кэш новостей.
func (c *Cached) FetchStoryQueue(ctx context.Context, userID string) ([]domain.Story, error) {
	stories, err := c.next.FetchStoryQueue(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, s := range stories {
		c.store(ctx, s)
	}
	return stories, nil
}

// GetStory возвращает новость из кэша или источника.
func (c *Cached) GetStory(ctx context.Context, id string) (domain.Story, error) {
	if data, err := c.cache.Get(ctx, storyKey(id)); err == nil {
		var s cachedStory
		if err := json.Unmarshal(data, &s); err == nil {
			return s.toDomain(), nil
		}
		c.log.Warn().Str("story_id", id).Msg("catalog: битая запись кэша")
	}

	story, err := c.next.GetStory(ctx, id)
	if err != nil {
		return domain.Story{}, err
	}
	c.store(ctx, story)
	return story, nil
}

// Invalidate удаляет новость из кэша, например после появления озвучки.
func (c *Cached) Invalidate(ctx context.Context, id string) error {
	return c.cache.Delete(ctx, storyKey(id))
}

func (c *Cached) store(ctx context.Context, s domain.Story) {
	data, err := json.Marshal(fromDomain(s))
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, storyKey(s.ID), data, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("story_id", s.ID).Msg("catalog: не удалось записать кэш")
	}
}

func storyKey(id string) string {
	return "story:" + id
}

type cachedStory struct {
	ID           string    `json:"id"`
	Headline     string    `json:"headline"`
	ShortSummary string    `json:"short_summary"`
	LongSummary  string    `json:"long_summary,omitempty"`
	SourceName   string    `json:"source_name,omitempty"`
	Publisher    string    `json:"publisher,omitempty"`
	IssueSubject string    `json:"issue_subject,omitempty"`
	URL          string    `json:"url,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	AudioURL     string    `json:"audio_url,omitempty"`
}

func fromDomain(s domain.Story) cachedStory {
	return cachedStory(s)
}

func (s cachedStory) toDomain() domain.Story {
	return domain.Story(s)
}
