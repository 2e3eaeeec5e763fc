package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
)

// ErrNothingToResume возвращается, если для сессии не было запущено ни одной новости.
var ErrNothingToResume = errors.New("nothing to resume")

// ErrNoAudio возвращается при попытке воспроизвести пустую ссылку.
var ErrNoAudio = errors.New("empty audio url")

// CommandType — тип команды клиентскому плееру.
type CommandType string

const (
	CommandPlay   CommandType = "play"
	CommandPause  CommandType = "pause"
	CommandResume CommandType = "resume"
	CommandStop   CommandType = "stop"
	CommandSpeak  CommandType = "speak"
)

// Command отправляется клиенту, который физически проигрывает звук.
type Command struct {
	Type       CommandType `json:"type"`
	SessionID  string      `json:"session_id"`
	AudioURL   string      `json:"audio_url,omitempty"`
	PositionMS int64       `json:"position_ms"`
}

// Sink доставляет команды клиенту. Send не должен блокироваться надолго:
// контроллер вызывает его под своей блокировкой, чтобы сохранить порядок команд.
type Sink interface {
	Send(ctx context.Context, cmd Command) error
}

// NopSink выбрасывает команды. Используется, когда клиент управляет звуком сам.
type NopSink struct{}

// Send реализует Sink.
func (NopSink) Send(context.Context, Command) error { return nil }

type track struct {
	url       string
	offset    time.Duration
	playing   bool
	startedAt time.Time
}

// Controller хранит состояние воспроизведения по сессиям и шлёт команды в Sink.
type Controller struct {
	sink Sink
	log  zerolog.Logger
	now  func() time.Time

	mu     sync.Mutex
	tracks map[string]*track
}

var _ domain.Player = (*Controller)(nil)

// NewController создаёт контроллер воспроизведения.
func NewController(sink Sink, logger zerolog.Logger) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	return &Controller{sink: sink, log: logger, now: time.Now, tracks: make(map[string]*track)}
}

// Play запускает аудио с позиции from. Активный поток сессии сначала останавливается.
func (c *Controller) Play(ctx context.Context, sessionID, audioURL string, from time.Duration) error {
	if audioURL == "" {
		return ErrNoAudio
	}
	if from < 0 {
		from = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tracks[sessionID]; ok && t.playing {
		if err := c.send(ctx, Command{Type: CommandStop, SessionID: sessionID, PositionMS: c.position(t).Milliseconds()}); err != nil {
			return err
		}
	}
	c.tracks[sessionID] = &track{url: audioURL, offset: from, playing: true, startedAt: c.now()}
	return c.send(ctx, Command{Type: CommandPlay, SessionID: sessionID, AudioURL: audioURL, PositionMS: from.Milliseconds()})
}

// Pause останавливает поток и возвращает позицию. Повторный вызов возвращает ту же позицию.
func (c *Controller) Pause(ctx context.Context, sessionID string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tracks[sessionID]
	if !ok {
		return 0, nil
	}
	if !t.playing {
		return t.offset, nil
	}
	t.offset = c.position(t)
	t.playing = false
	return t.offset, c.send(ctx, Command{Type: CommandPause, SessionID: sessionID, AudioURL: t.url, PositionMS: t.offset.Milliseconds()})
}

// Resume продолжает поток с сохранённой позиции.
func (c *Controller) Resume(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tracks[sessionID]
	if !ok {
		return fmt.Errorf("сессия %s: %w", sessionID, ErrNothingToResume)
	}
	if t.playing {
		return nil
	}
	t.playing = true
	t.startedAt = c.now()
	return c.send(ctx, Command{Type: CommandResume, SessionID: sessionID, AudioURL: t.url, PositionMS: t.offset.Milliseconds()})
}

// Stop завершает воспроизведение сессии.
func (c *Controller) Stop(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tracks[sessionID]
	if !ok {
		return nil
	}
	delete(c.tracks, sessionID)
	return c.send(ctx, Command{Type: CommandStop, SessionID: sessionID, AudioURL: t.url, PositionMS: c.position(t).Milliseconds()})
}

// Release забывает поток сессии без команды клиенту.
func (c *Controller) Release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, sessionID)
}

// Speak проигрывает короткий ответ поверх паузы, позиция новости не меняется.
func (c *Controller) Speak(ctx context.Context, sessionID, audioURL string) error {
	if audioURL == "" {
		return ErrNoAudio
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, Command{Type: CommandSpeak, SessionID: sessionID, AudioURL: audioURL})
}

// Position возвращает текущую позицию и признак воспроизведения.
func (c *Controller) Position(sessionID string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracks[sessionID]
	if !ok {
		return 0, false
	}
	return c.position(t), t.playing
}

func (c *Controller) position(t *track) time.Duration {
	if !t.playing {
		return t.offset
	}
	return t.offset + c.now().Sub(t.startedAt)
}

func (c *Controller) send(ctx context.Context, cmd Command) error {
	if err := c.sink.Send(ctx, cmd); err != nil {
		c.log.Warn().Err(err).Str("session_id", cmd.SessionID).Str("command", string(cmd.Type)).Msg("playback: команда не доставлена")
		return fmt.Errorf("команда %s: %w", cmd.Type, err)
	}
	c.log.Debug().Str("session_id", cmd.SessionID).Str("command", string(cmd.Type)).Int64("position_ms", cmd.PositionMS).Msg("playback: команда отправлена")
	return nil
}
