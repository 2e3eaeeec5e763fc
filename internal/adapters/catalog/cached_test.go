package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/cache"
)

type countingCatalog struct {
	stories map[string]domain.Story
	gets    int
}

func (c *countingCatalog) FetchStoryQueue(context.Context, string) ([]domain.Story, error) {
	out := make([]domain.Story, 0, len(c.stories))
	for _, id := range []string{"a", "b"} {
		if s, ok := c.stories[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *countingCatalog) GetStory(_ context.Context, id string) (domain.Story, error) {
	c.gets++
	s, ok := c.stories[id]
	if !ok {
		return domain.Story{}, domain.ErrStoryNotFound
	}
	return s, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapCache) Once(context.Context, string, time.Duration, func() error) error {
	return errors.New("not used")
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestCachedCatalogReadsThrough(t *testing.T) {
	published := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	src := &countingCatalog{stories: map[string]domain.Story{
		"a": {ID: "a", Headline: "A", SourceName: "Brew", PublishedAt: published},
	}}
	c := NewCached(src, &mapCache{data: map[string][]byte{}}, time.Hour, zerolog.Nop())
	ctx := context.Background()

	first, err := c.GetStory(ctx, "a")
	require.NoError(t, err)
	second, err := c.GetStory(ctx, "a")
	require.NoError(t, err)

	require.Equal(t, first.Headline, second.Headline)
	require.Equal(t, "Brew", second.SourceName)
	require.True(t, published.Equal(second.PublishedAt))
	require.Equal(t, 1, src.gets)

	require.NoError(t, c.Invalidate(ctx, "a"))
	_, err = c.GetStory(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 2, src.gets)
}

func TestCachedCatalogWarmsOnQueueFetch(t *testing.T) {
	src := &countingCatalog{stories: map[string]domain.Story{
		"a": {ID: "a", Headline: "A"},
		"b": {ID: "b", Headline: "B"},
	}}
	c := NewCached(src, &mapCache{data: map[string][]byte{}}, 0, zerolog.Nop())
	ctx := context.Background()

	queue, err := c.FetchStoryQueue(ctx, "user")
	require.NoError(t, err)
	require.Len(t, queue, 2)

	_, err = c.GetStory(ctx, "b")
	require.NoError(t, err)
	require.Zero(t, src.gets)
}

func TestCachedCatalogPassesNotFound(t *testing.T) {
	c := NewCached(&countingCatalog{stories: map[string]domain.Story{}}, &mapCache{data: map[string][]byte{}}, time.Hour, zerolog.Nop())
	_, err := c.GetStory(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrStoryNotFound)
}
