package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voice-briefing/internal/adapters/playback"
	"voice-briefing/internal/domain"
	"voice-briefing/internal/usecase/briefing"
)

type echoCoordinator struct {
	transcripts chan string
}

func (e *echoCoordinator) HandleUtterance(_ context.Context, sessionID, transcript string) (briefing.Outcome, error) {
	e.transcripts <- transcript
	return briefing.Outcome{
		Intent:           domain.IntentTellMore,
		Result:           domain.ActionResult{ResponseText: "Long summary.", Policy: domain.ResumeCurrent},
		ResponseAudioURL: "https://briefing.test/api/v1/audio/abc",
		Session:          domain.Session{ID: sessionID, Status: domain.StatusBriefing},
	}, nil
}

func dial(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Connected(sessionID) }, time.Second, 5*time.Millisecond)
	return conn
}

func TestUtteranceGetsResponse(t *testing.T) {
	coord := &echoCoordinator{transcripts: make(chan string, 1)}
	hub := NewHub(zerolog.Nop())
	hub.Attach(coord)
	conn := dial(t, hub, "s1")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "utterance", Transcript: "tell me more"}))
	require.Equal(t, "tell me more", <-coord.transcripts)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp ResponseMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "response", resp.Type)
	require.Equal(t, "Long summary.", resp.ResponseText)
	require.Equal(t, "resume_current", resp.ResumePolicy)
	require.Equal(t, "https://briefing.test/api/v1/audio/abc", resp.ResponseAudioURL)
}

func TestSendDeliversPlaybackCommands(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub, "s1")

	require.NoError(t, hub.Send(context.Background(), playback.Command{Type: playback.CommandPause, SessionID: "s1", PositionMS: 1500}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var cmd playback.Command
	require.NoError(t, conn.ReadJSON(&cmd))
	require.Equal(t, playback.CommandPause, cmd.Type)
	require.Equal(t, int64(1500), cmd.PositionMS)
}

func TestSendWithoutClientIsDropped(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	require.NoError(t, hub.Send(context.Background(), playback.Command{Type: playback.CommandPlay, SessionID: "nobody"}))
}

func TestPingPong(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub, "s1")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg["type"])
}

type blockingCoordinator struct {
	started chan struct{}
	ended   chan error
}

func (b *blockingCoordinator) HandleUtterance(ctx context.Context, _, _ string) (briefing.Outcome, error) {
	close(b.started)
	<-ctx.Done()
	b.ended <- ctx.Err()
	return briefing.Outcome{}, ctx.Err()
}

func TestDisconnectCancelsUtteranceInFlight(t *testing.T) {
	coord := &blockingCoordinator{started: make(chan struct{}), ended: make(chan error, 1)}
	hub := NewHub(zerolog.Nop())
	hub.Attach(coord)
	conn := dial(t, hub, "s1")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "utterance", Transcript: "why did that happen"}))
	select {
	case <-coord.started:
	case <-time.After(2 * time.Second):
		t.Fatal("utterance was not dispatched")
	}

	require.NoError(t, conn.Close())
	select {
	case err := <-coord.ended:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("utterance context was not cancelled on disconnect")
	}
	require.Eventually(t, func() bool { return !hub.Connected("s1") }, time.Second, 5*time.Millisecond)
}
