package briefing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voice-briefing/internal/domain"
)

func TestDescribeMetadata(t *testing.T) {
	story := domain.Story{
		Headline:     "Rates hold steady",
		SourceName:   "The Daily Ledger",
		Publisher:    "Ledger Media",
		IssueSubject: "Tuesday edition",
		PublishedAt:  time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
	}

	tests := []struct {
		question string
		want     string
	}{
		{"what newsletter is this from", "This story is from The Daily Ledger, published by Ledger Media."},
		{"who wrote this", "This story is from The Daily Ledger, published by Ledger Media."},
		{"when was this published", "This story was published on January 2, 2024."},
		{"what's the headline", "The headline is: Rates hold steady."},
		{"what issue is this", `This story comes from the issue titled "Tuesday edition".`},
		{"tell me about this story's details", "This story is from The Daily Ledger, published by Ledger Media. This story was published on January 2, 2024. The headline is: Rates hold steady."},
	}
	for _, tc := range tests {
		t.Run(tc.question, func(t *testing.T) {
			require.Equal(t, tc.want, describeMetadata(story, tc.question))
		})
	}
}

func TestDescribeMetadataMissingFields(t *testing.T) {
	require.Equal(t, "I don't know which newsletter this story came from.", describeMetadata(domain.Story{}, "what newsletter"))
	require.Equal(t, "I don't have a publication date for this story.", describeMetadata(domain.Story{}, "when was this published"))
	require.Equal(t, "This story is from Axios.", describeMetadata(domain.Story{SourceName: "Axios", Publisher: "axios"}, "source"))
}

func TestSkipRemainingPhrasing(t *testing.T) {
	catalog := &memCatalog{stories: testStories(3)}
	h := &SkipHandler{catalog: catalog}
	session := domain.Session{StoryQueue: []string{"story-1", "story-2", "story-3"}}

	res, err := h.Handle(context.Background(), session, "skip")
	require.NoError(t, err)
	require.Contains(t, res.ResponseText, "That's 1 more story after this one.")

	session.CurrentIndex = 1
	res, err = h.Handle(context.Background(), session, "skip")
	require.NoError(t, err)
	require.NotContains(t, res.ResponseText, "more stor")
	require.Equal(t, &domain.SessionDelta{Advance: 1}, res.Delta)

	session.CurrentIndex = 2
	res, err = h.Handle(context.Background(), session, "skip")
	require.NoError(t, err)
	require.Equal(t, closingResponse, res.ResponseText)
	require.Equal(t, domain.Halt, res.Policy)
	require.True(t, res.Delta.Complete)
}

func TestSkipWithoutPreviewStillAdvances(t *testing.T) {
	h := &SkipHandler{catalog: &memCatalog{}}
	session := domain.Session{StoryQueue: []string{"a", "b"}}

	res, err := h.Handle(context.Background(), session, "skip")
	require.NoError(t, err)
	require.Equal(t, "Skipping to the next story.", res.ResponseText)
	require.Equal(t, domain.AdvanceToNext, res.Policy)
}

func TestTellMoreWithoutLongSummary(t *testing.T) {
	stories := testStories(1)
	stories[0].LongSummary = "  "
	h := &TellMoreHandler{catalog: &memCatalog{stories: stories}}

	res, err := h.Handle(context.Background(), domain.Session{StoryQueue: []string{"story-1"}}, "tell me more")
	require.NoError(t, err)
	require.Equal(t, "There isn't a longer version of this story. Short summary 1.", res.ResponseText)
	require.Equal(t, domain.ResumeCurrent, res.Policy)
	require.Nil(t, res.Delta)
}

func TestHandlersForCoversEveryIntent(t *testing.T) {
	hs := NewHandlers(&memCatalog{}, answerFunc(func(context.Context, string, string) (string, error) { return "", nil }), nil, 0)
	for _, i := range append(domain.Intents, domain.IntentUnknown) {
		require.NotNil(t, hs.For(i), string(i))
	}
	require.Same(t, hs.Query, hs.For(domain.IntentUnknown))
}

func TestBuildContextSkipsEmptyFields(t *testing.T) {
	require.Equal(t, "HEADLINE: H", BuildContext(domain.Story{Headline: "H", SourceName: " "}, nil))
}
