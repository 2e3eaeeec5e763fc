package briefing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
	"voice-briefing/internal/infra/metrics"
	"voice-briefing/internal/usecase/intent"
)

const (
	faultResponse     = "I couldn't process that, let's continue."
	completedResponse = "Your briefing is already complete. Start a new briefing whenever you're ready."

	maxUpdateAttempts     = 5
	defaultHandlerTimeout = 25 * time.Second
	persistTimeout        = 10 * time.Second
)

// Command — явная команда управления без голоса.
type Command string

const (
	CommandPause    Command = "pause"
	CommandResume   Command = "resume"
	CommandStop     Command = "stop"
	CommandPrevious Command = "previous"
)

// ParseCommand разбирает команду управления.
func ParseCommand(raw string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(raw)))
	switch cmd {
	case CommandPause, CommandResume, CommandStop, CommandPrevious:
		return cmd, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownCommand, raw)
}

// Outcome — результат обработки реплики.
type Outcome struct {
	Intent           domain.Intent
	Result           domain.ActionResult
	ResponseAudioURL string
	Session          domain.Session
	// NoOp — сессия уже завершена, состояние не менялось.
	NoOp bool
	// Superseded — пока шла обработка, пришла более новая реплика или команда.
	// Ответ не озвучивается и воспроизведением не управляет.
	Superseded bool
}

// Dependencies — внешние зависимости координатора.
// Chat, Prefetcher и Events необязательны.
type Dependencies struct {
	Sessions   domain.SessionRepo
	Catalog    domain.StoryCatalog
	Player     domain.Player
	Speech     domain.SpeechRenderer
	Classifier *intent.Classifier
	Handlers   Handlers
	Chat       domain.ConversationLog
	Prefetcher domain.AudioPrefetcher
	Events     domain.BusinessMetricRepo
}

// Coordinator управляет сессией брифинга: прерывает воспроизведение,
// классифицирует реплику, вызывает обработчик и применяет его результат.
type Coordinator struct {
	deps           Dependencies
	log            zerolog.Logger
	now            func() time.Time
	handlerTimeout time.Duration

	mu      sync.Mutex
	slots   map[string]*slot
	loaded  map[string]loadedStory
	callSeq uint64
}

// loadedStory — новость, запущенная в плеере сессии.
type loadedStory struct {
	storyID string
	touched time.Time
}

// slot сериализует вызовы по одной сессии.
type slot struct {
	sem    chan struct{}
	refs   int
	owner  uint64
	cancel context.CancelFunc
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithHandlerTimeout ограничивает время работы обработчика.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.handlerTimeout = d
		}
	}
}

// NewCoordinator создаёт координатор.
func NewCoordinator(deps Dependencies, logger zerolog.Logger, opts ...Option) *Coordinator {
	if deps.Classifier == nil {
		deps.Classifier = intent.NewDefault()
	}
	c := &Coordinator{
		deps:           deps,
		log:            logger,
		now:            func() time.Time { return time.Now().UTC() },
		handlerTimeout: defaultHandlerTimeout,
		slots:          make(map[string]*slot),
		loaded:         make(map[string]loadedStory),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSession создаёт сессию из текущей очереди новостей пользователя и запускает первую новость.
func (c *Coordinator) StartSession(ctx context.Context, userID string) (domain.Session, error) {
	stories, err := c.deps.Catalog.FetchStoryQueue(ctx, userID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("очередь новостей: %w", err)
	}

	seen := make(map[string]bool, len(stories))
	queue := make([]string, 0, len(stories))
	unique := make([]domain.Story, 0, len(stories))
	for _, s := range stories {
		if s.ID == "" || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		queue = append(queue, s.ID)
		unique = append(unique, s)
	}
	if len(queue) == 0 {
		return domain.Session{}, domain.ErrEmptyQueue
	}

	now := c.now()
	session := domain.Session{
		ID:             uuid.NewString(),
		OwnerID:        userID,
		StoryQueue:     queue,
		CurrentIndex:   0,
		Status:         domain.StatusBriefing,
		Version:        1,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := c.deps.Sessions.CreateSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("создание сессии: %w", err)
	}

	log := c.log.With().Str("session_id", session.ID).Str("user_id", userID).Logger()

	if c.deps.Prefetcher != nil {
		if err := c.deps.Prefetcher.PrefetchAudio(ctx, unique); err != nil {
			log.Warn().Err(err).Msg("coordinator: не удалось поставить озвучку в очередь")
		}
	}

	c.playStory(ctx, log, session.ID, unique[0])

	metrics.SessionsStarted.Inc()
	c.recordEvent(ctx, domain.BusinessMetricEventBriefingStarted, session, map[string]any{"stories": len(queue)})
	log.Info().Int("stories", len(queue)).Msg("coordinator: брифинг начат")
	return session, nil
}

// GetSessionState возвращает снимок сессии.
func (c *Coordinator) GetSessionState(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := c.deps.Sessions.LoadSession(ctx, sessionID)
	if err != nil {
		c.forgetMissing(sessionID, err)
		return domain.Session{}, fmt.Errorf("загрузка сессии: %w", err)
	}
	return session, nil
}

// HandleUtterance обрабатывает реплику пользователя.
// Ошибки обработчиков превращаются в ответ; наружу уходят только ошибки хранилища.
func (c *Coordinator) HandleUtterance(ctx context.Context, sessionID, transcript string) (Outcome, error) {
	start := time.Now()

	session, err := c.deps.Sessions.LoadSession(ctx, sessionID)
	if err != nil {
		c.forgetMissing(sessionID, err)
		return Outcome{}, fmt.Errorf("загрузка сессии: %w", err)
	}
	if session.Completed() {
		return c.noOp(session), nil
	}

	c.pause(ctx, sessionID)
	metrics.ObservePause(start)

	callCtx, release, err := c.acquire(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	defer release()
	c.touch(sessionID)

	// состояние сессии дописывается и после ухода вызывающего
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	// предыдущий вызов мог успеть запустить воспроизведение до отмены
	c.pause(persistCtx, sessionID)

	kind := c.deps.Classifier.Classify(transcript)
	log := c.log.With().Str("session_id", sessionID).Str("intent", string(kind)).Logger()

	session, err = c.update(persistCtx, sessionID, func(s *domain.Session) error {
		if s.Completed() {
			return domain.ErrSessionCompleted
		}
		if err := enterListening(s); err != nil {
			return err
		}
		s.LastActivityAt = c.now()
		return nil
	})
	if errors.Is(err, domain.ErrSessionCompleted) {
		return c.noOp(session), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	result := c.dispatch(callCtx, log, kind, session, transcript)
	superseded := callCtx.Err() != nil && ctx.Err() == nil

	var finished bool
	session, err = c.update(persistCtx, sessionID, func(s *domain.Session) error {
		if s.Completed() {
			return domain.ErrSessionCompleted
		}
		if err := enterListening(s); err != nil {
			return err
		}
		finished = applyDelta(s, result.Delta)
		event := policyEvent(result.Policy)
		if finished {
			event = EventFinish
		}
		next, err := Transition(s.Status, event)
		if err != nil {
			return err
		}
		s.Status = next
		s.LastActivityAt = c.now()
		return nil
	})
	if errors.Is(err, domain.ErrSessionCompleted) {
		return c.noOp(session), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	c.appendChat(persistCtx, log, session.ID, domain.ChatRoleUser, transcript, kind)
	if finished {
		c.onCompleted(persistCtx, session)
	}

	outcome := Outcome{Intent: kind, Result: result, Session: session}
	if superseded {
		metrics.SupersededTotal.Inc()
		outcome.Superseded = true
		log.Info().Msg("coordinator: реплика вытеснена более новой")
		return outcome, nil
	}

	// вызывающий ушёл: воспроизведение продолжается без него
	playCtx := callCtx
	if ctx.Err() != nil {
		playCtx = persistCtx
	}

	c.appendChat(persistCtx, log, session.ID, domain.ChatRoleAssistant, result.ResponseText, kind)
	outcome.ResponseAudioURL = c.synthesize(playCtx, log, result.ResponseText)
	c.drive(playCtx, log, session, result.Policy, outcome.ResponseAudioURL, finished)

	metrics.ObserveUtterance(string(kind), start)
	c.recordEvent(persistCtx, domain.BusinessMetricEventUtteranceHandled, session, map[string]any{
		"intent":        string(kind),
		"resume_policy": string(result.Policy),
	})
	log.Info().
		Str("resume_policy", string(result.Policy)).
		Int("current_index", session.CurrentIndex).
		Str("status", string(session.Status)).
		Dur("latency", time.Since(start)).
		Msg("coordinator: реплика обработана")
	return outcome, nil
}

// Control применяет явную команду управления через тот же автомат состояний.
func (c *Coordinator) Control(ctx context.Context, sessionID string, cmd Command) (domain.Session, error) {
	if _, err := ParseCommand(string(cmd)); err != nil {
		return domain.Session{}, err
	}

	callCtx, release, err := c.acquire(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	defer release()
	c.touch(sessionID)

	log := c.log.With().Str("session_id", sessionID).Str("command", string(cmd)).Logger()

	var changed bool
	session, err := c.update(ctx, sessionID, func(s *domain.Session) error {
		changed = false
		switch cmd {
		case CommandStop:
			if s.Completed() {
				return errUnchanged
			}
		case CommandPause:
			if s.Completed() {
				return domain.ErrSessionCompleted
			}
			if s.Status == domain.StatusPaused {
				return errUnchanged
			}
		case CommandResume:
			if s.Completed() {
				return domain.ErrSessionCompleted
			}
			if s.Status == domain.StatusBriefing {
				return errUnchanged
			}
		case CommandPrevious:
			if s.Completed() {
				return domain.ErrSessionCompleted
			}
			if s.CurrentIndex > 0 {
				s.CurrentIndex--
			}
			if s.Status == domain.StatusBriefing {
				s.LastActivityAt = c.now()
				changed = true
				return nil
			}
		}

		next, err := Transition(s.Status, commandEvent(cmd))
		if err != nil {
			return err
		}
		s.Status = next
		s.LastActivityAt = c.now()
		changed = true
		return nil
	})
	if errors.Is(err, errUnchanged) {
		err = nil
	}
	if err != nil {
		c.forgetMissing(sessionID, err)
		return session, err
	}

	switch cmd {
	case CommandPause:
		if _, err := c.deps.Player.Pause(callCtx, sessionID); err != nil {
			log.Warn().Err(err).Msg("coordinator: пауза не удалась")
		}
	case CommandResume:
		c.resumeCurrent(callCtx, log, session)
	case CommandStop:
		if changed {
			if err := c.deps.Player.Stop(callCtx, sessionID); err != nil {
				log.Warn().Err(err).Msg("coordinator: остановка не удалась")
			}
			c.onCompleted(ctx, session)
		}
	case CommandPrevious:
		if id, ok := session.CurrentStoryID(); ok {
			story, err := c.deps.Catalog.GetStory(callCtx, id)
			if err != nil {
				log.Warn().Err(err).Msg("coordinator: новость для повтора не найдена")
			} else {
				c.playStory(callCtx, log, sessionID, story)
			}
		}
	}

	log.Info().Str("status", string(session.Status)).Int("current_index", session.CurrentIndex).Msg("coordinator: команда применена")
	return session, nil
}

var errUnchanged = errors.New("session unchanged")

func commandEvent(cmd Command) Event {
	switch cmd {
	case CommandPause:
		return EventPause
	case CommandStop:
		return EventStop
	}
	return EventResume
}

// enterListening переводит сессию в Listening, если она ещё не там.
func enterListening(s *domain.Session) error {
	if s.Status == domain.StatusListening {
		return nil
	}
	next, err := Transition(s.Status, EventUtterance)
	if err != nil {
		return err
	}
	s.Status = next
	return nil
}

// update — атомарное чтение-изменение-запись с проверкой версии.
// При конфликте версий изменение повторяется на свежей копии.
func (c *Coordinator) update(ctx context.Context, sessionID string, mutate func(*domain.Session) error) (domain.Session, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := c.deps.Sessions.LoadSession(ctx, sessionID)
		if err != nil {
			return domain.Session{}, fmt.Errorf("загрузка сессии: %w", err)
		}
		next := current.Clone()
		if err := mutate(&next); err != nil {
			return current, err
		}
		saved, err := c.deps.Sessions.UpdateSession(ctx, next)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return current, fmt.Errorf("сохранение сессии: %w", err)
		}
		return saved, nil
	}
	return domain.Session{}, fmt.Errorf("сохранение сессии %s: %w", sessionID, domain.ErrVersionConflict)
}

// acquire занимает сессию. Вызов, который уже идёт по этой сессии, отменяется.
func (c *Coordinator) acquire(ctx context.Context, sessionID string) (context.Context, func(), error) {
	callCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	s, ok := c.slots[sessionID]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		c.slots[sessionID] = s
	}
	if s.cancel != nil {
		s.cancel()
	}
	c.callSeq++
	id := c.callSeq
	s.owner = id
	s.cancel = cancel
	s.refs++
	c.mu.Unlock()

	leave := func() {
		cancel()
		c.mu.Lock()
		if s.owner == id {
			s.cancel = nil
		}
		s.refs--
		if s.refs == 0 {
			delete(c.slots, sessionID)
		}
		c.mu.Unlock()
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		leave()
		return nil, nil, ctx.Err()
	}

	return callCtx, func() {
		<-s.sem
		leave()
	}, nil
}

// dispatch вызывает обработчик, перехватывая ошибки и паники.
func (c *Coordinator) dispatch(ctx context.Context, log zerolog.Logger, kind domain.Intent, session domain.Session, transcript string) (result domain.ActionResult) {
	handler := c.deps.Handlers.For(kind)
	if handler == nil {
		log.Error().Msg("coordinator: обработчик не зарегистрирован")
		metrics.HandlerFaults.WithLabelValues(string(kind)).Inc()
		return domain.ActionResult{ResponseText: faultResponse, Policy: domain.ResumeCurrent}
	}

	handlerCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("coordinator: паника в обработчике")
			metrics.HandlerFaults.WithLabelValues(string(kind)).Inc()
			result = domain.ActionResult{ResponseText: faultResponse, Policy: domain.ResumeCurrent}
		}
	}()

	res, err := handler.Handle(handlerCtx, session.Clone(), transcript)
	if err != nil {
		log.Error().Err(err).Msg("coordinator: ошибка обработчика")
		metrics.HandlerFaults.WithLabelValues(string(kind)).Inc()
		return domain.ActionResult{ResponseText: faultResponse, Policy: domain.ResumeCurrent}
	}
	if strings.TrimSpace(res.ResponseText) == "" {
		res.ResponseText = faultResponse
	}
	switch res.Policy {
	case domain.ResumeCurrent, domain.AdvanceToNext, domain.Halt:
	default:
		res.Policy = domain.ResumeCurrent
	}
	if res.Delta != nil && res.Delta.Advance < 0 {
		res.Delta.Advance = 0
	}
	return res
}

func (c *Coordinator) pause(ctx context.Context, sessionID string) {
	if _, err := c.deps.Player.Pause(ctx, sessionID); err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("coordinator: пауза не удалась, считаем воспроизведение остановленным")
	}
}

// synthesize озвучивает ответ. При сбое TTS ответ остаётся текстовым.
func (c *Coordinator) synthesize(ctx context.Context, log zerolog.Logger, text string) string {
	if c.deps.Speech == nil || strings.TrimSpace(text) == "" {
		return ""
	}
	url, err := c.deps.Speech.RenderSpeech(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("coordinator: синтез ответа не удался, отвечаем текстом")
		return ""
	}
	return url
}

// drive применяет resume_policy к воспроизведению.
func (c *Coordinator) drive(ctx context.Context, log zerolog.Logger, session domain.Session, policy domain.ResumePolicy, responseURL string, finished bool) {
	if finished {
		if err := c.deps.Player.Stop(ctx, session.ID); err != nil {
			log.Warn().Err(err).Msg("coordinator: остановка не удалась")
		}
	}
	if responseURL != "" {
		if err := c.deps.Player.Speak(ctx, session.ID, responseURL); err != nil {
			log.Warn().Err(err).Msg("coordinator: не удалось проиграть ответ")
		}
	}
	if finished {
		return
	}

	switch policy {
	case domain.AdvanceToNext:
		id, ok := session.CurrentStoryID()
		if !ok {
			return
		}
		story, err := c.deps.Catalog.GetStory(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("story_id", id).Msg("coordinator: следующая новость недоступна")
			return
		}
		c.playStory(ctx, log, session.ID, story)
	case domain.ResumeCurrent:
		c.resumeCurrent(ctx, log, session)
	case domain.Halt:
	}
}

// resumeCurrent продолжает текущую новость с сохранённой позиции.
// Если в плеере другая новость, текущая запускается с начала.
func (c *Coordinator) resumeCurrent(ctx context.Context, log zerolog.Logger, session domain.Session) {
	id, ok := session.CurrentStoryID()
	if !ok {
		return
	}
	c.mu.Lock()
	loaded := c.loaded[session.ID]
	c.mu.Unlock()

	if loaded.storyID == id {
		err := c.deps.Player.Resume(ctx, session.ID)
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("coordinator: продолжение не удалось, перезапускаем новость")
	}
	story, err := c.deps.Catalog.GetStory(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("story_id", id).Msg("coordinator: текущая новость недоступна")
		return
	}
	c.playStory(ctx, log, session.ID, story)
}

func (c *Coordinator) playStory(ctx context.Context, log zerolog.Logger, sessionID string, story domain.Story) {
	url := story.AudioURL
	if url == "" {
		url = c.synthesize(ctx, log, narration(story))
	}
	if url == "" {
		log.Warn().Str("story_id", story.ID).Msg("coordinator: у новости нет аудио")
		return
	}
	if err := c.deps.Player.Play(ctx, sessionID, url, 0); err != nil {
		log.Warn().Err(err).Str("story_id", story.ID).Msg("coordinator: запуск новости не удался")
		c.forget(sessionID)
		return
	}
	c.mu.Lock()
	c.loaded[sessionID] = loadedStory{storyID: story.ID, touched: c.now()}
	c.mu.Unlock()
}

// touch отмечает активность сессии в плеере.
func (c *Coordinator) touch(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.loaded[sessionID]; ok {
		l.touched = c.now()
		c.loaded[sessionID] = l
	}
}

// forget сбрасывает состояние плеера сессии, ничего не отправляя клиенту.
func (c *Coordinator) forget(sessionID string) {
	c.mu.Lock()
	delete(c.loaded, sessionID)
	c.mu.Unlock()
	c.deps.Player.Release(sessionID)
}

func (c *Coordinator) forgetMissing(sessionID string, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		c.forget(sessionID)
	}
}

// PruneIdle сбрасывает состояние плеера сессий, неактивных с момента before,
// и возвращает их число. Сами сессии удаляет sweeper.
func (c *Coordinator) PruneIdle(before time.Time) int {
	c.mu.Lock()
	idle := make([]string, 0)
	for id, l := range c.loaded {
		if l.touched.Before(before) {
			idle = append(idle, id)
		}
	}
	c.mu.Unlock()

	for _, id := range idle {
		c.forget(id)
	}
	if len(idle) > 0 {
		c.log.Info().Int("sessions", len(idle)).Msg("coordinator: состояние неактивных сессий сброшено")
	}
	return len(idle)
}

// Narration возвращает текст озвучки новости.
func Narration(story domain.Story) string {
	return narration(story)
}

func narration(story domain.Story) string {
	parts := make([]string, 0, 2)
	if h := sentence(story.Headline); h != "" {
		parts = append(parts, h)
	}
	if s := sentence(story.ShortSummary); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func (c *Coordinator) noOp(session domain.Session) Outcome {
	return Outcome{
		Intent:  domain.IntentUnknown,
		Result:  domain.ActionResult{ResponseText: completedResponse, Policy: domain.Halt},
		Session: session,
		NoOp:    true,
	}
}

func (c *Coordinator) onCompleted(ctx context.Context, session domain.Session) {
	c.mu.Lock()
	delete(c.loaded, session.ID)
	c.mu.Unlock()
	metrics.SessionsCompleted.Inc()
	c.recordEvent(ctx, domain.BusinessMetricEventBriefingCompleted, session, map[string]any{
		"current_index": session.CurrentIndex,
		"stories":       len(session.StoryQueue),
	})
}

func (c *Coordinator) appendChat(ctx context.Context, log zerolog.Logger, sessionID string, role domain.ChatRole, content string, kind domain.Intent) {
	if c.deps.Chat == nil || strings.TrimSpace(content) == "" {
		return
	}
	entry := domain.ChatEntry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Intent:    kind,
		CreatedAt: c.now(),
	}
	if err := c.deps.Chat.AppendChat(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("coordinator: не удалось записать реплику в журнал")
	}
}

func (c *Coordinator) recordEvent(ctx context.Context, event string, session domain.Session, meta map[string]any) {
	if c.deps.Events == nil {
		return
	}
	err := c.deps.Events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:      event,
		UserID:     session.OwnerID,
		SessionID:  session.ID,
		Metadata:   meta,
		OccurredAt: c.now(),
	})
	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("coordinator: не удалось сохранить бизнес-метрику")
	}
}
