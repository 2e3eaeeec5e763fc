package briefing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
)

type memSessions struct {
	mu        sync.Mutex
	sessions  map[string]domain.Session
	conflicts int
	updates   int
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]domain.Session)}
}

func (m *memSessions) CreateSession(ctx context.Context, s domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memSessions) LoadSession(ctx context.Context, id string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memSessions) UpdateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		return domain.Session{}, domain.ErrVersionConflict
	}
	if stored.Version != s.Version {
		return domain.Session{}, domain.ErrVersionConflict
	}
	s.Version++
	m.sessions[s.ID] = s.Clone()
	m.updates++
	return s.Clone(), nil
}

func (m *memSessions) DeleteInactiveSessions(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.LastActivityAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type memCatalog struct {
	stories []domain.Story
}

func (c *memCatalog) FetchStoryQueue(context.Context, string) ([]domain.Story, error) {
	return append([]domain.Story(nil), c.stories...), nil
}

func (c *memCatalog) GetStory(_ context.Context, id string) (domain.Story, error) {
	for _, s := range c.stories {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Story{}, domain.ErrStoryNotFound
}

type recordingPlayer struct {
	mu       sync.Mutex
	calls    []string
	released []string
}

func (p *recordingPlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *recordingPlayer) Play(_ context.Context, _ string, url string, from time.Duration) error {
	p.record(fmt.Sprintf("play:%s@%d", url, from.Milliseconds()))
	return nil
}

func (p *recordingPlayer) Pause(context.Context, string) (time.Duration, error) {
	p.record("pause")
	return 0, nil
}

func (p *recordingPlayer) Resume(context.Context, string) error {
	p.record("resume")
	return nil
}

func (p *recordingPlayer) Stop(context.Context, string) error {
	p.record("stop")
	return nil
}

func (p *recordingPlayer) Speak(_ context.Context, _ string, url string) error {
	p.record("speak:" + url)
	return nil
}

func (p *recordingPlayer) Release(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, sessionID)
}

func (p *recordingPlayer) releasedSessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.released...)
}

func (p *recordingPlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *recordingPlayer) last() string {
	calls := p.snapshot()
	if len(calls) == 0 {
		return ""
	}
	return calls[len(calls)-1]
}

type fakeSpeech struct {
	err error
}

func (f *fakeSpeech) RenderSpeech(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("tts://%d", len(text)), nil
}

type answerFunc func(ctx context.Context, question, context string) (string, error)

func (f answerFunc) AnswerQuestion(ctx context.Context, question, context string) (string, error) {
	return f(ctx, question, context)
}

type memChat struct {
	mu      sync.Mutex
	entries []domain.ChatEntry
}

func (m *memChat) AppendChat(ctx context.Context, e domain.ChatEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memChat) RecentChat(_ context.Context, sessionID string, limit int) ([]domain.ChatEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChatEntry
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type harness struct {
	coord    *Coordinator
	sessions *memSessions
	catalog  *memCatalog
	player   *recordingPlayer
	speech   *fakeSpeech
	chat     *memChat
}

var errLLMDown = errors.New("llm unavailable")

func testStories(n int) []domain.Story {
	out := make([]domain.Story, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Story{
			ID:           fmt.Sprintf("story-%d", i),
			Headline:     fmt.Sprintf("Headline %d", i),
			ShortSummary: fmt.Sprintf("Short summary %d.", i),
			LongSummary:  fmt.Sprintf("Long summary %d with every detail.", i),
			SourceName:   fmt.Sprintf("Morning Brew %d", i),
			PublishedAt:  time.Date(2024, 3, i, 7, 0, 0, 0, time.UTC),
			AudioURL:     fmt.Sprintf("https://cdn.test/story-%d.mp3", i),
		})
	}
	return out
}

func newHarness(stories []domain.Story, answerer domain.QuestionAnswerer, opts ...Option) *harness {
	h := &harness{
		sessions: newMemSessions(),
		catalog:  &memCatalog{stories: stories},
		player:   &recordingPlayer{},
		speech:   &fakeSpeech{},
		chat:     &memChat{},
	}
	if answerer == nil {
		answerer = answerFunc(func(context.Context, string, string) (string, error) {
			return "An answer.", nil
		})
	}
	h.coord = NewCoordinator(Dependencies{
		Sessions: h.sessions,
		Catalog:  h.catalog,
		Player:   h.player,
		Speech:   h.speech,
		Handlers: NewHandlers(h.catalog, answerer, h.chat, 4),
		Chat:     h.chat,
	}, zerolog.Nop(), opts...)
	return h
}
