package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/retry"
)

// Synthesizer превращает текст в аудио.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Voice() string
}

// Renderer реализует domain.SpeechRenderer: TTS, хранение файла и кэш ссылок.
// Одинаковый текст тем же голосом всегда даёт одну и ту же ссылку.
type Renderer struct {
	tts         Synthesizer
	store       domain.AudioStore
	cache       domain.Cache
	baseURL     string
	contentType string
	ttl         time.Duration
	policy      retry.Policy
	retryable   func(error) bool
	log         zerolog.Logger
	group       singleflight.Group
}

var _ domain.SpeechRenderer = (*Renderer)(nil)

// Options — параметры Renderer.
type Options struct {
	PublicBaseURL string
	ContentType   string
	CacheTTL      time.Duration
	Retry         retry.Policy
	// Retryable отделяет временные ошибки TTS от постоянных. По умолчанию повторяется всё.
	Retryable func(error) bool
}

// NewRenderer создаёт синтезатор ответов. cache может быть nil.
func NewRenderer(tts Synthesizer, store domain.AudioStore, cache domain.Cache, opts Options, logger zerolog.Logger) *Renderer {
	if opts.ContentType == "" {
		opts.ContentType = "audio/mpeg"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 7 * 24 * time.Hour
	}
	if opts.Retryable == nil {
		opts.Retryable = func(error) bool { return true }
	}
	return &Renderer{
		tts:         tts,
		store:       store,
		cache:       cache,
		baseURL:     strings.TrimRight(opts.PublicBaseURL, "/"),
		contentType: opts.ContentType,
		ttl:         opts.CacheTTL,
		policy:      opts.Retry,
		retryable:   opts.Retryable,
		log:         logger,
	}
}

// Key возвращает ключ аудиофайла для голоса и текста.
func Key(voice, text string) string {
	sum := sha256.Sum256([]byte(voice + "|" + text))
	return hex.EncodeToString(sum[:])
}

// URL возвращает публичную ссылку на аудиофайл.
func (r *Renderer) URL(key string) string {
	return r.baseURL + "/api/v1/audio/" + key
}

// RenderSpeech реализует domain.SpeechRenderer.
func (r *Renderer) RenderSpeech(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("speech: пустой текст")
	}
	key := Key(r.tts.Voice(), text)
	url := r.URL(key)

	if r.cached(ctx, key) {
		return url, nil
	}

	_, err, _ := r.group.Do(key, func() (any, error) {
		return nil, r.render(ctx, key, text)
	})
	if err != nil {
		return "", err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey(key), []byte(url), r.ttl); err != nil {
			r.log.Warn().Err(err).Msg("speech: не удалось записать кэш")
		}
	}
	return url, nil
}

func (r *Renderer) cached(ctx context.Context, key string) bool {
	if r.cache == nil {
		return false
	}
	data, err := r.cache.Get(ctx, cacheKey(key))
	return err == nil && len(data) > 0
}

func (r *Renderer) render(ctx context.Context, key, text string) error {
	if _, err := r.store.LoadAudio(ctx, key); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrAudioNotFound) {
		r.log.Warn().Err(err).Msg("speech: хранилище аудио недоступно, синтезируем заново")
	}

	var audio []byte
	for _, chunk := range SplitText(text, chunkLimit) {
		data, err := r.synthesize(ctx, chunk)
		if err != nil {
			return fmt.Errorf("%w: синтез речи: %v", domain.ErrCollaboratorUnavailable, err)
		}
		// MPEG-кадры склеиваются без перекодирования.
		audio = append(audio, data...)
	}

	asset := domain.AudioAsset{Key: key, ContentType: r.contentType, Data: audio, CreatedAt: time.Now().UTC()}
	if err := r.store.SaveAudio(ctx, asset); err != nil {
		return fmt.Errorf("%w: сохранение аудио: %v", domain.ErrCollaboratorUnavailable, err)
	}
	r.log.Debug().Str("key", key).Int("bytes", len(audio)).Msg("speech: аудио сохранено")
	return nil
}

func (r *Renderer) synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := retry.Do(ctx, r.policy, "tts", r.log, func(ctx context.Context) error {
		data, err := r.tts.Synthesize(ctx, text)
		if err != nil {
			if !r.retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		audio = data
		return nil
	})
	return audio, err
}

func cacheKey(key string) string {
	return "speech:" + key
}
