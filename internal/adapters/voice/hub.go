package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-briefing/internal/adapters/playback"
	"voice-briefing/internal/usecase/briefing"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 16 << 10
	sendBuffer     = 64
)

// ErrSlowClient возвращается, если клиент не успевает забирать команды.
var ErrSlowClient = errors.New("voice: client send buffer is full")

// Coordinator — то, что голосовой канал вызывает на каждую реплику.
type Coordinator interface {
	HandleUtterance(ctx context.Context, sessionID, transcript string) (briefing.Outcome, error)
}

// ClientMessage — входящее сообщение клиента.
type ClientMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
}

// ResponseMessage — ответ на реплику.
type ResponseMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	Intent           string `json:"intent,omitempty"`
	ResponseText     string `json:"response_text,omitempty"`
	ResponseAudioURL string `json:"response_audio_url,omitempty"`
	ResumePolicy     string `json:"resume_policy,omitempty"`
	Status           string `json:"status,omitempty"`
	CurrentIndex     int    `json:"current_index"`
	Error            string `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub держит по одному WebSocket-соединению на сессию и доставляет в него команды плеера.
type Hub struct {
	coord    Coordinator
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

var _ playback.Sink = (*Hub)(nil)

// NewHub создаёт хаб. Координатор задаётся позже через Attach, чтобы разорвать цикл зависимостей с плеером.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Attach задаёт координатор.
func (h *Hub) Attach(coord Coordinator) {
	h.coord = coord
}

// Send реализует playback.Sink. Команда для сессии без подключения отбрасывается.
func (h *Hub) Send(_ context.Context, cmd playback.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return h.push(cmd.SessionID, data)
}

// Connected сообщает, подключён ли клиент сессии.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

func (h *Hub) push(sessionID string, data []byte) error {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return nil
	default:
		return ErrSlowClient
	}
}

// ServeWS поднимает WebSocket для сессии. Новое подключение вытесняет старое.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("voice: не удалось поднять websocket")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	if prev, ok := h.clients[sessionID]; ok {
		prev.close()
	}
	h.clients[sessionID] = c
	h.mu.Unlock()

	log := h.log.With().Str("session_id", sessionID).Logger()
	log.Info().Msg("voice: клиент подключён")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer func() {
		cancel()
		h.mu.Lock()
		if h.clients[sessionID] == c {
			delete(h.clients, sessionID)
		}
		h.mu.Unlock()
		c.close()
		log.Info().Msg("voice: клиент отключён")
	}()

	go h.writePump(c, log)
	h.readPump(ctx, c, sessionID, log)
}

func (h *Hub) readPump(ctx context.Context, c *client, sessionID string, log zerolog.Logger) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("voice: ошибка чтения")
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}

		switch msg.Type {
		case "utterance":
			go h.handleUtterance(ctx, sessionID, msg.Transcript, log)
		case "ping":
			_ = h.pushJSON(sessionID, map[string]string{"type": "pong"})
		default:
			log.Debug().Str("type", msg.Type).Msg("voice: неизвестный тип сообщения")
		}
	}
}

// handleUtterance выполняется в своей горутине, чтобы новая реплика могла вытеснить текущую.
func (h *Hub) handleUtterance(ctx context.Context, sessionID, transcript string, log zerolog.Logger) {
	if h.coord == nil {
		log.Error().Msg("voice: координатор не подключён")
		return
	}
	out, err := h.coord.HandleUtterance(ctx, sessionID, transcript)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("voice: реплика не обработана")
		}
		_ = h.pushJSON(sessionID, ResponseMessage{Type: "error", SessionID: sessionID, Error: "temporarily unavailable, please retry"})
		return
	}
	if out.Superseded {
		return
	}
	_ = h.pushJSON(sessionID, ResponseMessage{
		Type:             "response",
		SessionID:        sessionID,
		Intent:           string(out.Intent),
		ResponseText:     out.Result.ResponseText,
		ResponseAudioURL: out.ResponseAudioURL,
		ResumePolicy:     string(out.Result.Policy),
		Status:           string(out.Session.Status),
		CurrentIndex:     out.Session.CurrentIndex,
	})
}

func (h *Hub) pushJSON(sessionID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.push(sessionID, data)
}

func (h *Hub) writePump(c *client, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("voice: ошибка записи")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
