package briefing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"voice-briefing/internal/domain"
)

func TestTransitionHappyPath(t *testing.T) {
	s := domain.StatusBriefing

	next, err := Transition(s, EventUtterance)
	require.NoError(t, err)
	require.Equal(t, domain.StatusListening, next)

	next, err = Transition(next, EventAdvance)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBriefing, next)

	next, err = Transition(next, EventUtterance)
	require.NoError(t, err)
	next, err = Transition(next, EventHalt)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaused, next)

	next, err = Transition(next, EventResume)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBriefing, next)
}

func TestTransitionStopFromAnyState(t *testing.T) {
	for _, state := range []domain.SessionStatus{domain.StatusBriefing, domain.StatusListening, domain.StatusPaused, domain.StatusCompleted} {
		next, err := Transition(state, EventStop)
		require.NoError(t, err)
		require.Equal(t, domain.StatusCompleted, next)
	}
}

func TestTransitionMatrix(t *testing.T) {
	tests := []struct {
		name    string
		state   domain.SessionStatus
		event   Event
		want    domain.SessionStatus
		wantErr bool
	}{
		{name: "briefing resume invalid", state: domain.StatusBriefing, event: EventResume, want: domain.StatusBriefing, wantErr: true},
		{name: "briefing halt invalid", state: domain.StatusBriefing, event: EventHalt, want: domain.StatusBriefing, wantErr: true},
		{name: "briefing pause", state: domain.StatusBriefing, event: EventPause, want: domain.StatusPaused},
		{name: "listening finish", state: domain.StatusListening, event: EventFinish, want: domain.StatusCompleted},
		{name: "listening utterance invalid", state: domain.StatusListening, event: EventUtterance, want: domain.StatusListening, wantErr: true},
		{name: "listening explicit pause", state: domain.StatusListening, event: EventPause, want: domain.StatusPaused},
		{name: "paused utterance", state: domain.StatusPaused, event: EventUtterance, want: domain.StatusListening},
		{name: "paused advance invalid", state: domain.StatusPaused, event: EventAdvance, want: domain.StatusPaused, wantErr: true},
		{name: "paused pause idempotent", state: domain.StatusPaused, event: EventPause, want: domain.StatusPaused},
		{name: "completed utterance invalid", state: domain.StatusCompleted, event: EventUtterance, want: domain.StatusCompleted, wantErr: true},
		{name: "completed resume invalid", state: domain.StatusCompleted, event: EventResume, want: domain.StatusCompleted, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(domain.SessionStatus("mystery"), EventResume)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, domain.SessionStatus("mystery"), next)
}

func TestApplyDeltaClampsIndex(t *testing.T) {
	s := domain.Session{StoryQueue: []string{"a", "b"}, CurrentIndex: 1}
	finished := applyDelta(&s, &domain.SessionDelta{Advance: 5})
	require.True(t, finished)
	require.Equal(t, 2, s.CurrentIndex)

	s = domain.Session{StoryQueue: []string{"a", "b", "c"}}
	require.False(t, applyDelta(&s, &domain.SessionDelta{Advance: 1}))
	require.Equal(t, 1, s.CurrentIndex)
	require.False(t, applyDelta(&s, nil))
	require.True(t, applyDelta(&s, &domain.SessionDelta{Complete: true}))
}
