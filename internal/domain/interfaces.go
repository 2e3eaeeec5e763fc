package domain

import (
	"context"
	"time"
)

// StoryCatalog отдаёт новости, подготовленные конвейером рассылок.
type StoryCatalog interface {
	// FetchStoryQueue возвращает упорядоченную очередь новостей пользователя на сегодня.
	FetchStoryQueue(ctx context.Context, userID string) ([]Story, error)
	GetStory(ctx context.Context, id string) (Story, error)
}

// StoryAudioRepo управляет озвучкой новостей.
type StoryAudioRepo interface {
	ListStoriesWithoutAudio(ctx context.Context, limit int) ([]Story, error)
	SetStoryAudioURL(ctx context.Context, storyID, audioURL string) error
}

// SessionRepo хранит сессии брифинга.
type SessionRepo interface {
	CreateSession(ctx context.Context, session Session) error
	LoadSession(ctx context.Context, id string) (Session, error)
	// UpdateSession сохраняет сессию, если версия в хранилище совпадает с session.Version.
	// Возвращает сохранённую сессию с увеличенной версией или ErrVersionConflict.
	UpdateSession(ctx context.Context, session Session) (Session, error)
	// DeleteInactiveSessions удаляет сессии без активности с момента before.
	DeleteInactiveSessions(ctx context.Context, before time.Time) (int64, error)
}

// ConversationLog — журнал реплик в рамках сессии, только добавление.
type ConversationLog interface {
	AppendChat(ctx context.Context, entry ChatEntry) error
	RecentChat(ctx context.Context, sessionID string, limit int) ([]ChatEntry, error)
}

// SpeechRenderer превращает текст в ссылку на воспроизводимое аудио.
// Для одинакового текста и голоса результат одинаков.
type SpeechRenderer interface {
	RenderSpeech(ctx context.Context, text string) (string, error)
}

// QuestionAnswerer отвечает на свободный вопрос по контексту новости.
type QuestionAnswerer interface {
	AnswerQuestion(ctx context.Context, question, context string) (string, error)
}

// AudioStore хранит отрендеренные аудиофайлы.
type AudioStore interface {
	SaveAudio(ctx context.Context, asset AudioAsset) error
	LoadAudio(ctx context.Context, key string) (AudioAsset, error)
}

// Player — контроллер воспроизведения одной сессии.
type Player interface {
	Play(ctx context.Context, sessionID, audioURL string, from time.Duration) error
	// Pause идемпотентна: повторный вызов возвращает последнюю известную позицию.
	Pause(ctx context.Context, sessionID string) (time.Duration, error)
	Resume(ctx context.Context, sessionID string) error
	Stop(ctx context.Context, sessionID string) error
	// Speak проигрывает короткий ответ, не трогая сохранённую позицию новости.
	Speak(ctx context.Context, sessionID, audioURL string) error
	// Release забывает состояние сессии, ничего не отправляя клиенту.
	Release(sessionID string)
}

// AudioPrefetcher ставит в очередь озвучку новостей без аудио.
type AudioPrefetcher interface {
	PrefetchAudio(ctx context.Context, stories []Story) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
