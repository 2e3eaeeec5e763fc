package domain

import "time"

// Story описывает одну новость из рассылки, подготовленную для озвучки.
// После создания не изменяется, кроме проставления AudioURL фоновым рендером.
type Story struct {
	ID           string
	Headline     string
	ShortSummary string
	LongSummary  string
	SourceName   string
	Publisher    string
	IssueSubject string
	URL          string
	PublishedAt  time.Time
	AudioURL     string
}

// SessionStatus — состояние брифинга.
type SessionStatus string

const (
	// StatusBriefing — озвучка новости идёт.
	StatusBriefing SessionStatus = "briefing"
	// StatusListening — воспроизведение приостановлено, обрабатывается реплика пользователя.
	StatusListening SessionStatus = "listening"
	// StatusPaused — пользователь явно поставил брифинг на паузу.
	StatusPaused SessionStatus = "paused"
	// StatusCompleted — терминальное состояние.
	StatusCompleted SessionStatus = "completed"
)

// Valid сообщает, известен ли статус.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusBriefing, StatusListening, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Session хранит прогресс одного пользователя по очереди новостей.
// StoryQueue фиксируется при создании и дальше не меняется.
type Session struct {
	ID             string
	OwnerID        string
	StoryQueue     []string
	CurrentIndex   int
	Status         SessionStatus
	Version        int64
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Clone возвращает копию, не разделяющую очередь с оригиналом.
func (s Session) Clone() Session {
	out := s
	out.StoryQueue = append([]string(nil), s.StoryQueue...)
	return out
}

// Completed сообщает, что сессия в терминальном состоянии.
func (s Session) Completed() bool {
	return s.Status == StatusCompleted
}

// CurrentStoryID возвращает идентификатор текущей новости.
func (s Session) CurrentStoryID() (string, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.StoryQueue) {
		return "", false
	}
	return s.StoryQueue[s.CurrentIndex], true
}

// NextStoryID возвращает идентификатор следующей новости, если она есть.
func (s Session) NextStoryID() (string, bool) {
	next := s.CurrentIndex + 1
	if next < 0 || next >= len(s.StoryQueue) {
		return "", false
	}
	return s.StoryQueue[next], true
}

// Progress описывает положение пользователя в очереди.
type Progress struct {
	CurrentIndex int     `json:"current_index"`
	Total        int     `json:"total"`
	Remaining    int     `json:"remaining"`
	Percent      float64 `json:"percent"`
}

// Progress считает прогресс по очереди.
func (s Session) Progress() Progress {
	total := len(s.StoryQueue)
	p := Progress{CurrentIndex: s.CurrentIndex, Total: total}
	if total == 0 {
		return p
	}
	if s.CurrentIndex < total {
		p.Remaining = total - s.CurrentIndex - 1
	}
	p.Percent = float64(int(float64(s.CurrentIndex)/float64(total)*1000+0.5)) / 10
	return p
}

// UtteranceEvent — распознанная реплика пользователя.
type UtteranceEvent struct {
	SessionID  string    `json:"session_id"`
	Transcript string    `json:"transcript"`
	ReceivedAt time.Time `json:"received_at"`
}

// Intent — назначение реплики. Набор закрытый.
type Intent string

const (
	IntentSkip                Intent = "skip"
	IntentTellMore            Intent = "tell_more"
	IntentMetadata            Intent = "metadata"
	IntentConversationalQuery Intent = "conversational_query"
	IntentPause               Intent = "pause"
	IntentResume              Intent = "resume"
	IntentStop                Intent = "stop"
	IntentUnknown             Intent = "unknown"
)

// Intents перечисляет все интенты, кроме Unknown.
var Intents = []Intent{
	IntentSkip,
	IntentTellMore,
	IntentMetadata,
	IntentConversationalQuery,
	IntentPause,
	IntentResume,
	IntentStop,
}

// ResumePolicy говорит координатору, как продолжить воспроизведение после обработчика.
type ResumePolicy string

const (
	ResumeCurrent ResumePolicy = "resume_current"
	AdvanceToNext ResumePolicy = "advance_to_next"
	Halt          ResumePolicy = "halt"
)

// SessionDelta — частичное изменение сессии, предложенное обработчиком.
// Применяется к свежей копии сессии внутри атомарного обновления.
type SessionDelta struct {
	Advance  int
	Complete bool
}

// ActionResult — контракт между обработчиком и координатором.
type ActionResult struct {
	ResponseText string
	Delta        *SessionDelta
	Policy       ResumePolicy
}

// ChatRole — автор записи в журнале разговора.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatEntry — запись журнала разговора в рамках сессии.
type ChatEntry struct {
	ID        string
	SessionID string
	Role      ChatRole
	Content   string
	Intent    Intent
	CreatedAt time.Time
}

// AudioAsset — отрендеренный звуковой файл.
type AudioAsset struct {
	Key         string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}
