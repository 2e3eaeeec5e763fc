package briefing

import (
	"context"
	"fmt"
	"strings"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/usecase/intent"
)

const (
	closingResponse      = "That was the last story in your briefing. Hope you have a great day! Your newsletter briefing is complete."
	noAnswerResponse     = "I don't have an answer to that right now. Let's continue with the story."
	defaultQuestion      = "Can you tell me more about this?"
	pauseResponse        = "Okay, pausing your briefing. Say resume when you're ready."
	resumeResponse       = "Resuming your briefing."
	stopResponse         = "Okay, stopping your briefing. See you next time."
	noLongSummaryPrefix  = "There isn't a longer version of this story."
	publishedDateLayout  = "January 2, 2006"
	defaultHistoryLimit  = 6
	maxContextFieldChars = 4000
)

// Handler выполняет одно намерение и предлагает изменение сессии.
// Обработчик не пишет в хранилище сессий сам: дельта применяется координатором.
type Handler interface {
	Handle(ctx context.Context, session domain.Session, transcript string) (domain.ActionResult, error)
}

// HandlerFunc позволяет использовать функцию как Handler.
type HandlerFunc func(ctx context.Context, session domain.Session, transcript string) (domain.ActionResult, error)

// Handle вызывает f.
func (f HandlerFunc) Handle(ctx context.Context, session domain.Session, transcript string) (domain.ActionResult, error) {
	return f(ctx, session, transcript)
}

// Handlers — закрытая таблица обработчиков по намерениям.
type Handlers struct {
	Skip     Handler
	TellMore Handler
	Metadata Handler
	Query    Handler
	Pause    Handler
	Resume   Handler
	Stop     Handler
}

// NewHandlers собирает стандартный набор обработчиков.
func NewHandlers(catalog domain.StoryCatalog, answerer domain.QuestionAnswerer, chat domain.ConversationLog, historyLimit int) Handlers {
	return Handlers{
		Skip:     &SkipHandler{catalog: catalog},
		TellMore: &TellMoreHandler{catalog: catalog},
		Metadata: &MetadataHandler{catalog: catalog},
		Query:    NewQueryHandler(catalog, answerer, chat, historyLimit),
		Pause:    fixedResponse(pauseResponse, domain.Halt, nil),
		Resume:   fixedResponse(resumeResponse, domain.ResumeCurrent, nil),
		Stop:     fixedResponse(stopResponse, domain.Halt, &domain.SessionDelta{Complete: true}),
	}
}

// For возвращает обработчик намерения. Unknown уходит в ConversationalQuery.
func (h Handlers) For(i domain.Intent) Handler {
	switch i {
	case domain.IntentSkip:
		return h.Skip
	case domain.IntentTellMore:
		return h.TellMore
	case domain.IntentMetadata:
		return h.Metadata
	case domain.IntentPause:
		return h.Pause
	case domain.IntentResume:
		return h.Resume
	case domain.IntentStop:
		return h.Stop
	case domain.IntentConversationalQuery, domain.IntentUnknown:
		return h.Query
	default:
		return h.Query
	}
}

func fixedResponse(text string, policy domain.ResumePolicy, delta *domain.SessionDelta) Handler {
	return HandlerFunc(func(context.Context, domain.Session, string) (domain.ActionResult, error) {
		var d *domain.SessionDelta
		if delta != nil {
			copied := *delta
			d = &copied
		}
		return domain.ActionResult{ResponseText: text, Delta: d, Policy: policy}, nil
	})
}

// SkipHandler переходит к следующей новости и сразу зачитывает её анонс.
type SkipHandler struct {
	catalog domain.StoryCatalog
}

// Handle реализует Handler.
func (h *SkipHandler) Handle(ctx context.Context, session domain.Session, _ string) (domain.ActionResult, error) {
	nextID, ok := session.NextStoryID()
	if !ok {
		return domain.ActionResult{
			ResponseText: closingResponse,
			Delta:        &domain.SessionDelta{Advance: 1, Complete: true},
			Policy:       domain.Halt,
		}, nil
	}

	result := domain.ActionResult{
		Delta:  &domain.SessionDelta{Advance: 1},
		Policy: domain.AdvanceToNext,
	}

	var b strings.Builder
	b.WriteString("Skipping to the next story.")
	// без анонса переход всё равно выполняется
	if next, err := h.catalog.GetStory(ctx, nextID); err == nil {
		if headline := strings.TrimSpace(next.Headline); headline != "" {
			b.WriteString(" " + sentence(headline))
		}
		if summary := strings.TrimSpace(next.ShortSummary); summary != "" {
			b.WriteString(" " + sentence(summary))
		}
	}

	remaining := len(session.StoryQueue) - session.CurrentIndex - 2
	switch {
	case remaining == 1:
		b.WriteString(" That's 1 more story after this one.")
	case remaining > 1:
		fmt.Fprintf(&b, " That's %d more stories after this one.", remaining)
	}

	result.ResponseText = b.String()
	return result, nil
}

// TellMoreHandler зачитывает подробную версию текущей новости.
type TellMoreHandler struct {
	catalog domain.StoryCatalog
}

// Handle реализует Handler.
func (h *TellMoreHandler) Handle(ctx context.Context, session domain.Session, _ string) (domain.ActionResult, error) {
	story, err := currentStory(ctx, h.catalog, session)
	if err != nil {
		return domain.ActionResult{}, err
	}
	text := story.LongSummary
	if strings.TrimSpace(text) == "" {
		text = noLongSummaryPrefix
		if summary := strings.TrimSpace(story.ShortSummary); summary != "" {
			text += " " + sentence(summary)
		}
	}
	return domain.ActionResult{ResponseText: text, Policy: domain.ResumeCurrent}, nil
}

// MetadataHandler отвечает на вопросы об источнике, дате и заголовке только по полям новости.
type MetadataHandler struct {
	catalog domain.StoryCatalog
}

// Handle реализует Handler.
func (h *MetadataHandler) Handle(ctx context.Context, session domain.Session, transcript string) (domain.ActionResult, error) {
	story, err := currentStory(ctx, h.catalog, session)
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{ResponseText: describeMetadata(story, transcript), Policy: domain.ResumeCurrent}, nil
}

func describeMetadata(story domain.Story, question string) string {
	words := make(map[string]bool)
	for _, w := range strings.Fields(intent.Normalize(question)) {
		words[w] = true
	}
	has := func(candidates ...string) bool {
		for _, c := range candidates {
			if words[c] {
				return true
			}
		}
		return false
	}

	switch {
	case has("newsletter", "source", "from", "wrote", "publisher", "sent"):
		return sourceSentence(story)
	case has("when", "date", "published", "day"):
		return dateSentence(story)
	case has("headline", "title", "called"):
		return headlineSentence(story)
	case has("subject", "issue", "edition"):
		if issue := strings.TrimSpace(story.IssueSubject); issue != "" {
			return fmt.Sprintf("This story comes from the issue titled %q.", issue)
		}
		return sourceSentence(story)
	}

	parts := []string{sourceSentence(story)}
	if !story.PublishedAt.IsZero() {
		parts = append(parts, dateSentence(story))
	}
	if strings.TrimSpace(story.Headline) != "" {
		parts = append(parts, headlineSentence(story))
	}
	return strings.Join(parts, " ")
}

func sourceSentence(story domain.Story) string {
	source := strings.TrimSpace(story.SourceName)
	publisher := strings.TrimSpace(story.Publisher)
	switch {
	case source == "" && publisher == "":
		return "I don't know which newsletter this story came from."
	case source == "":
		return fmt.Sprintf("This story was published by %s.", publisher)
	case publisher == "" || strings.EqualFold(publisher, source):
		return fmt.Sprintf("This story is from %s.", source)
	default:
		return fmt.Sprintf("This story is from %s, published by %s.", source, publisher)
	}
}

func dateSentence(story domain.Story) string {
	if story.PublishedAt.IsZero() {
		return "I don't have a publication date for this story."
	}
	return fmt.Sprintf("This story was published on %s.", story.PublishedAt.UTC().Format(publishedDateLayout))
}

func headlineSentence(story domain.Story) string {
	headline := strings.TrimSpace(story.Headline)
	if headline == "" {
		return "This story doesn't have a headline."
	}
	return "The headline is: " + sentence(headline)
}

// QueryHandler отвечает на свободный вопрос через языковую модель.
// Ошибки модели не пробрасываются: пользователь слышит запасной ответ.
type QueryHandler struct {
	catalog      domain.StoryCatalog
	answerer     domain.QuestionAnswerer
	chat         domain.ConversationLog
	historyLimit int
}

// NewQueryHandler создаёт обработчик свободных вопросов. chat может быть nil.
func NewQueryHandler(catalog domain.StoryCatalog, answerer domain.QuestionAnswerer, chat domain.ConversationLog, historyLimit int) *QueryHandler {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &QueryHandler{catalog: catalog, answerer: answerer, chat: chat, historyLimit: historyLimit}
}

// Handle реализует Handler.
func (h *QueryHandler) Handle(ctx context.Context, session domain.Session, transcript string) (domain.ActionResult, error) {
	fallback := domain.ActionResult{ResponseText: noAnswerResponse, Policy: domain.ResumeCurrent}

	story, err := currentStory(ctx, h.catalog, session)
	if err != nil {
		return fallback, nil
	}

	question := strings.TrimSpace(transcript)
	if question == "" {
		question = defaultQuestion
	}

	var history []domain.ChatEntry
	if h.chat != nil {
		history, _ = h.chat.RecentChat(ctx, session.ID, h.historyLimit)
	}

	answer, err := h.answerer.AnswerQuestion(ctx, question, BuildContext(story, history))
	if err != nil {
		return fallback, nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fallback, nil
	}
	return domain.ActionResult{ResponseText: answer, Policy: domain.ResumeCurrent}, nil
}

// BuildContext собирает контекст новости и недавней переписки для языковой модели.
func BuildContext(story domain.Story, history []domain.ChatEntry) string {
	var b strings.Builder
	field := func(name, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(name + ": " + truncate(value, maxContextFieldChars) + "\n")
	}

	field("HEADLINE", story.Headline)
	field("BRIEF SUMMARY", story.ShortSummary)
	field("DETAILED SUMMARY", story.LongSummary)
	field("SOURCE", story.SourceName)
	field("PUBLISHER", story.Publisher)
	if !story.PublishedAt.IsZero() {
		field("PUBLISHED", story.PublishedAt.UTC().Format(publishedDateLayout))
	}
	field("ISSUE TITLE", story.IssueSubject)
	field("URL", story.URL)

	if len(history) > 0 {
		b.WriteString("\nRECENT CONVERSATION:\n")
		for _, entry := range history {
			speaker := "User"
			if entry.Role == domain.ChatRoleAssistant {
				speaker = "Assistant"
			}
			b.WriteString(speaker + ": " + strings.TrimSpace(entry.Content) + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func currentStory(ctx context.Context, catalog domain.StoryCatalog, session domain.Session) (domain.Story, error) {
	id, ok := session.CurrentStoryID()
	if !ok {
		return domain.Story{}, fmt.Errorf("%w: позиция %d вне очереди", domain.ErrStoryNotFound, session.CurrentIndex)
	}
	story, err := catalog.GetStory(ctx, id)
	if err != nil {
		return domain.Story{}, fmt.Errorf("получение новости %s: %w", id, err)
	}
	return story, nil
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
