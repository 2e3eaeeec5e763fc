package briefing

import (
	"fmt"

	"voice-briefing/internal/domain"
)

// Event — событие конечного автомата сессии.
type Event string

const (
	EventUtterance Event = "utterance"
	EventResume    Event = "resume"
	EventAdvance   Event = "advance"
	EventFinish    Event = "finish"
	EventHalt      Event = "halt"
	EventPause     Event = "pause"
	EventStop      Event = "stop"
)

// Transition — единственное место, где меняется статус сессии.
func Transition(current domain.SessionStatus, event Event) (domain.SessionStatus, error) {
	if event == EventStop {
		return domain.StatusCompleted, nil
	}

	switch current {
	case domain.StatusBriefing:
		switch event {
		case EventUtterance:
			return domain.StatusListening, nil
		case EventPause:
			return domain.StatusPaused, nil
		case EventFinish:
			return domain.StatusCompleted, nil
		}
	case domain.StatusListening:
		switch event {
		case EventResume, EventAdvance:
			return domain.StatusBriefing, nil
		case EventFinish:
			return domain.StatusCompleted, nil
		case EventHalt, EventPause:
			return domain.StatusPaused, nil
		}
	case domain.StatusPaused:
		switch event {
		case EventResume:
			return domain.StatusBriefing, nil
		case EventUtterance:
			return domain.StatusListening, nil
		case EventPause:
			return domain.StatusPaused, nil
		}
	case domain.StatusCompleted:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state domain.SessionStatus, event Event) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", domain.ErrInvalidTransition, state, event)
}

// policyEvent переводит resume_policy обработчика в событие автомата.
func policyEvent(policy domain.ResumePolicy) Event {
	switch policy {
	case domain.AdvanceToNext:
		return EventAdvance
	case domain.Halt:
		return EventHalt
	default:
		return EventResume
	}
}

// applyDelta сдвигает указатель очереди. Индекс не выходит за длину очереди;
// достижение конца очереди или явное завершение означает finish.
func applyDelta(s *domain.Session, delta *domain.SessionDelta) (finished bool) {
	if delta == nil {
		return false
	}
	if delta.Advance > 0 {
		s.CurrentIndex += delta.Advance
		if s.CurrentIndex > len(s.StoryQueue) {
			s.CurrentIndex = len(s.StoryQueue)
		}
	}
	return delta.Complete || s.CurrentIndex >= len(s.StoryQueue)
}
