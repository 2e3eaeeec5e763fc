package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voice-briefing/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoice   = "21m00Tcm4TlvDq8ikWAM"
	defaultModel   = "eleven_turbo_v2"
	// ContentType — формат, который возвращает ElevenLabs при Accept: audio/mpeg.
	ContentType = "audio/mpeg"
)

// ErrNoAPIKey возвращается, если ключ ElevenLabs не задан.
var ErrNoAPIKey = errors.New("elevenlabs: api key is empty")

// Config описывает параметры голоса.
type Config struct {
	APIKey     string
	BaseURL    string
	VoiceID    string
	ModelID    string
	Stability  float64
	Similarity float64
	Timeout    time.Duration
}

// ElevenLabs синтезирует речь через ElevenLabs text-to-speech.
type ElevenLabs struct {
	http *http.Client
	cfg  Config
}

// NewElevenLabs создаёт клиента.
func NewElevenLabs(cfg Config) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoice
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModel
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.75
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ElevenLabs{http: &http.Client{Timeout: cfg.Timeout}, cfg: cfg}
}

// Voice возвращает идентификатор голоса.
func (e *ElevenLabs) Voice() string {
	return e.cfg.VoiceID + "/" + e.cfg.ModelID
}

// StatusError — ответ API с кодом ошибки.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elevenlabs: status %d: %s", e.Code, e.Body)
}

// Retryable сообщает, имеет ли смысл повторить запрос.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsRetryable проверяет ошибку клиента на временный характер.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNoAPIKey) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize возвращает mp3 для текста.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if e.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	body, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       e.cfg.Stability,
			SimilarityBoost: e.cfg.Similarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", e.cfg.BaseURL, e.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ContentType)
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("elevenlabs", "text_to_speech", e.cfg.VoiceID, start, err)
		return nil, fmt.Errorf("elevenlabs: do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("elevenlabs", "text_to_speech", e.cfg.VoiceID, start, err)
		return nil, fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		metrics.ObserveNetworkRequest("elevenlabs", "text_to_speech", e.cfg.VoiceID, start, statusErr)
		return nil, statusErr
	}
	metrics.ObserveNetworkRequest("elevenlabs", "text_to_speech", e.cfg.VoiceID, start, nil)
	if len(data) == 0 {
		return nil, errors.New("elevenlabs: empty audio")
	}
	return data, nil
}
