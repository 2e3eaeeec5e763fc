package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	cmds []Command
}

func (s *recordingSink) Send(_ context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *recordingSink) types() []CommandType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommandType, 0, len(s.cmds))
	for _, c := range s.cmds {
		out = append(out, c.Type)
	}
	return out
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestController() (*Controller, *recordingSink, *fakeClock) {
	sink := &recordingSink{}
	clock := &fakeClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	c := NewController(sink, zerolog.Nop())
	c.now = clock.now
	return c, sink, clock
}

func TestPauseIsIdempotent(t *testing.T) {
	c, sink, clock := newTestController()
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "s1", "https://audio/1.mp3", 0))
	clock.advance(7 * time.Second)

	first, err := c.Pause(ctx, "s1")
	require.NoError(t, err)
	clock.advance(3 * time.Second)
	second, err := c.Pause(ctx, "s1")
	require.NoError(t, err)

	require.Equal(t, 7*time.Second, first)
	require.Equal(t, first, second)
	require.Equal(t, []CommandType{CommandPlay, CommandPause}, sink.types())
}

func TestPauseWithoutTrack(t *testing.T) {
	c, sink, _ := newTestController()
	pos, err := c.Pause(context.Background(), "missing")
	require.NoError(t, err)
	require.Zero(t, pos)
	require.Empty(t, sink.types())
}

func TestPlayStopsActiveStreamFirst(t *testing.T) {
	c, sink, clock := newTestController()
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "s1", "https://audio/1.mp3", 0))
	clock.advance(2 * time.Second)
	require.NoError(t, c.Play(ctx, "s1", "https://audio/2.mp3", 0))

	require.Equal(t, []CommandType{CommandPlay, CommandStop, CommandPlay}, sink.types())
	pos, playing := c.Position("s1")
	require.True(t, playing)
	require.Zero(t, pos)
}

func TestResumeContinuesFromSavedPosition(t *testing.T) {
	c, sink, clock := newTestController()
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "s1", "https://audio/1.mp3", time.Second))
	clock.advance(4 * time.Second)
	_, err := c.Pause(ctx, "s1")
	require.NoError(t, err)

	clock.advance(time.Minute)
	require.NoError(t, c.Resume(ctx, "s1"))
	clock.advance(2 * time.Second)

	pos, playing := c.Position("s1")
	require.True(t, playing)
	require.Equal(t, 7*time.Second, pos)

	last := sink.cmds[len(sink.cmds)-1]
	require.Equal(t, CommandResume, last.Type)
	require.Equal(t, int64(5000), last.PositionMS)
}

func TestResumeWithoutTrack(t *testing.T) {
	c, _, _ := newTestController()
	require.ErrorIs(t, c.Resume(context.Background(), "s1"), ErrNothingToResume)
}

func TestSpeakKeepsPosition(t *testing.T) {
	c, sink, clock := newTestController()
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "s1", "https://audio/1.mp3", 0))
	clock.advance(3 * time.Second)
	_, err := c.Pause(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, c.Speak(ctx, "s1", "https://audio/answer.mp3"))

	pos, playing := c.Position("s1")
	require.False(t, playing)
	require.Equal(t, 3*time.Second, pos)
	require.Equal(t, []CommandType{CommandPlay, CommandPause, CommandSpeak}, sink.types())
	require.ErrorIs(t, c.Speak(ctx, "s1", ""), ErrNoAudio)
}

func TestStopForgetsTrack(t *testing.T) {
	c, sink, _ := newTestController()
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "s1", "https://audio/1.mp3", 0))
	require.NoError(t, c.Stop(ctx, "s1"))
	require.NoError(t, c.Stop(ctx, "s1"))

	_, ok := c.Position("s1")
	require.False(t, ok)
	require.Equal(t, []CommandType{CommandPlay, CommandStop}, sink.types())
}

func TestReleaseDropsTrackSilently(t *testing.T) {
	c, sink, _ := newTestController()
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "s1", "https://audio/1.mp3", 0))
	require.NoError(t, c.Play(ctx, "s2", "https://audio/2.mp3", 0))
	c.Release("s1")
	c.Release("missing")

	_, ok := c.Position("s1")
	require.False(t, ok)
	_, ok = c.Position("s2")
	require.True(t, ok)
	require.ErrorIs(t, c.Resume(ctx, "s1"), ErrNothingToResume)
	require.Equal(t, []CommandType{CommandPlay, CommandPlay}, sink.types())
}
