package intent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"voice-briefing/internal/domain"
)

func TestClassifySkipTriggers(t *testing.T) {
	c := NewDefault()
	for _, transcript := range []string{
		"skip",
		"Skip.",
		"next",
		"Next please",
		"move on",
		"Let's move on",
		"OK, skip this one, please.",
		"can you skip this story",
		"next story",
		"go to the next one",
		"I want to skip",
	} {
		require.Equal(t, domain.IntentSkip, c.Classify(transcript), transcript)
	}
}

func TestClassifyTellMoreTriggers(t *testing.T) {
	c := NewDefault()
	for _, transcript := range []string{
		"tell me more",
		"Could you tell me more about this?",
		"go deeper",
		"give me the full story",
		"I'd like more details",
	} {
		require.Equal(t, domain.IntentTellMore, c.Classify(transcript), transcript)
	}
}

func TestClassifyMetadataTriggers(t *testing.T) {
	c := NewDefault()
	for _, transcript := range []string{
		"what newsletter is this from?",
		"Which newsletter was that?",
		"who wrote this",
		"When was this published?",
		"where is this from",
		"what’s the headline",
	} {
		require.Equal(t, domain.IntentMetadata, c.Classify(transcript), transcript)
	}
}

func TestClassifyControlCommands(t *testing.T) {
	c := NewDefault()
	cases := map[string]domain.Intent{
		"pause":             domain.IntentPause,
		"hold on":           domain.IntentPause,
		"Wait a second.":    domain.IntentPause,
		"stop for a moment": domain.IntentPause,
		"resume":            domain.IntentResume,
		"keep going":        domain.IntentResume,
		"Continue, please":  domain.IntentResume,
		"stop":              domain.IntentStop,
		"I'm done":          domain.IntentStop,
		"end the briefing":  domain.IntentStop,
	}
	for transcript, want := range cases {
		require.Equal(t, want, c.Classify(transcript), transcript)
	}
}

func TestClassifyNearMissesAreConversational(t *testing.T) {
	c := NewDefault()
	for _, transcript := range []string{
		"what's next for the stock market",
		"What comes next for the Fed?",
		"who is next in line for the throne",
		"is the economy going to skip a recession",
		"how did they move on from the scandal",
		"what happens next",
		"skipping breakfast is healthy, right?",
		"why would anyone wait for the rate cut",
		"can the company continue operating after this",
		"what did the newsletter say about inflation",
		"",
	} {
		got := c.Classify(transcript)
		require.Equal(t, domain.IntentConversationalQuery, got, transcript)
		require.NotEqual(t, domain.IntentSkip, got, transcript)
	}
}

// Пропуск распознаётся только в начале команды, после слов-паразитов.
func TestClassifyTrailingSkipIsConversational(t *testing.T) {
	c := NewDefault()
	require.Equal(t, domain.IntentConversationalQuery, c.Classify("ugh, this is boring, skip it"))
	require.Equal(t, domain.IntentConversationalQuery, c.Classify("this one's dull, next story please"))
	require.Equal(t, domain.IntentSkip, c.Classify("okay, skip it"))
}

func TestClassifyPriorityOrder(t *testing.T) {
	c := NewDefault()
	// Skip важнее всех остальных фраз.
	require.Equal(t, domain.IntentSkip, c.Classify("skip, and tell me more about the next one"))
	// Metadata важнее TellMore.
	require.Equal(t, domain.IntentMetadata, c.Classify("tell me more about what newsletter this is"))
	require.Equal(t, domain.IntentMetadata, c.Classify("wait, what newsletter is this from?"))
}

func TestClassifyNeverReturnsUnknown(t *testing.T) {
	c := NewDefault()
	for _, transcript := range []string{"", "   ", "???", "blorp", "こんにちは"} {
		require.NotEqual(t, domain.IntentUnknown, c.Classify(transcript))
	}
}

func TestCustomRuleTable(t *testing.T) {
	c := New(Rule{Intent: domain.IntentPause, Match: Exactly("freeze")})
	require.Equal(t, domain.IntentPause, c.Classify("Freeze!"))
	require.Equal(t, domain.IntentConversationalQuery, c.Classify("skip"))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "what's next", Normalize("  What’s   NEXT?! "))
	require.Equal(t, "follow up", Normalize("follow-up"))
	require.Equal(t, "skip this", Parse("Okay, skip this, thanks").Command)
}
