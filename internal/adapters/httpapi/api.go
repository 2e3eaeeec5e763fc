// Package httpapi публикует координатор брифинга по HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/usecase/briefing"
)

const maxBodyBytes = 64 << 10

// Briefings — операции координатора, доступные снаружи.
type Briefings interface {
	StartSession(ctx context.Context, userID string) (domain.Session, error)
	GetSessionState(ctx context.Context, sessionID string) (domain.Session, error)
	HandleUtterance(ctx context.Context, sessionID, transcript string) (briefing.Outcome, error)
	Control(ctx context.Context, sessionID string, cmd briefing.Command) (domain.Session, error)
}

// VoiceServer поднимает голосовой WebSocket для сессии.
type VoiceServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID string)
}

// API — HTTP-обработчики брифинга.
type API struct {
	briefings Briefings
	audio     domain.AudioStore
	voice     VoiceServer
	log       zerolog.Logger
}

// New создаёт API. audio и voice могут быть nil, тогда соответствующие маршруты не регистрируются.
func New(briefings Briefings, audio domain.AudioStore, voice VoiceServer, logger zerolog.Logger) *API {
	return &API{briefings: briefings, audio: audio, voice: voice, log: logger}
}

// Mount регистрирует маршруты.
func (a *API) Mount(r chi.Router) {
	r.Route("/api/v1/briefings", func(r chi.Router) {
		r.Post("/", a.start)
		r.Get("/{id}", a.state)
		r.Post("/{id}/utterances", a.utterance)
		r.Post("/{id}/control", a.control)
		if a.voice != nil {
			r.Get("/{id}/voice", a.serveVoice)
		}
	})
	if a.audio != nil {
		r.Get("/api/v1/audio/{key}", a.serveAudio)
	}
}

type startRequest struct {
	UserID string `json:"user_id"`
}

type utteranceRequest struct {
	Transcript string `json:"transcript"`
}

type controlRequest struct {
	Command string `json:"command"`
}

// SessionView — представление сессии в ответах API.
type SessionView struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	StoryQueue     []string        `json:"story_queue"`
	CurrentIndex   int             `json:"current_index"`
	Status         string          `json:"status"`
	Version        int64           `json:"version"`
	Progress       domain.Progress `json:"progress"`
	CreatedAt      string          `json:"created_at"`
	LastActivityAt string          `json:"last_activity_at"`
}

// UtteranceResponse — ответ на реплику.
type UtteranceResponse struct {
	ResponseText     string      `json:"response_text"`
	ResponseAudioURL string      `json:"response_audio_url,omitempty"`
	Intent           string      `json:"intent"`
	ResumePolicy     string      `json:"resume_policy"`
	Superseded       bool        `json:"superseded,omitempty"`
	Session          SessionView `json:"session"`
}

func viewOf(s domain.Session) SessionView {
	return SessionView{
		ID:             s.ID,
		OwnerID:        s.OwnerID,
		StoryQueue:     s.StoryQueue,
		CurrentIndex:   s.CurrentIndex,
		Status:         string(s.Status),
		Version:        s.Version,
		Progress:       s.Progress(),
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
		LastActivityAt: s.LastActivityAt.Format(time.RFC3339),
	}
}

func (a *API) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	session, err := a.briefings.StartSession(r.Context(), req.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(session))
}

func (a *API) state(w http.ResponseWriter, r *http.Request) {
	session, err := a.briefings.GetSessionState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (a *API) utterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := a.briefings.HandleUtterance(r.Context(), chi.URLParam(r, "id"), req.Transcript)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UtteranceResponse{
		ResponseText:     out.Result.ResponseText,
		ResponseAudioURL: out.ResponseAudioURL,
		Intent:           string(out.Intent),
		ResumePolicy:     string(out.Result.Policy),
		Superseded:       out.Superseded,
		Session:          viewOf(out.Session),
	})
}

func (a *API) control(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if !decode(w, r, &req) {
		return
	}
	cmd, err := briefing.ParseCommand(req.Command)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	session, err := a.briefings.Control(r.Context(), chi.URLParam(r, "id"), cmd)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (a *API) serveVoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.briefings.GetSessionState(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.voice.ServeWS(w, r, id)
}

func (a *API) serveAudio(w http.ResponseWriter, r *http.Request) {
	asset, err := a.audio.LoadAudio(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
	w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(asset.Data)
}

// StatusFor сопоставляет доменную ошибку HTTP-статусу.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrStoryNotFound),
		errors.Is(err, domain.ErrAudioNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyQueue),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrSessionCompleted):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusServiceUnavailable {
		a.log.Error().Err(err).Str("path", r.URL.Path).Msg("api: запрос не выполнен")
		w.Header().Set("Retry-After", "1")
		writeError(w, status, "temporarily unavailable, please retry")
		return
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
