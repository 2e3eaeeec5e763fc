// Package intent сопоставляет распознанную реплику одному из интентов брифинга.
package intent

import (
	"strings"
	"unicode"

	"voice-briefing/internal/domain"
)

// Utterance — реплика в нескольких нормализованных видах.
type Utterance struct {
	Raw        string
	Normalized string
	// Command — Normalized без вводных слов («okay», «can you», «please» и т.п.).
	Command string
}

// Rule связывает предикат с интентом. Правила проверяются по порядку.
type Rule struct {
	Intent domain.Intent
	Match  func(u Utterance) bool
}

// Classifier — упорядоченная таблица правил с откатом в ConversationalQuery.
type Classifier struct {
	rules []Rule
}

// New создаёт классификатор с заданным порядком правил.
func New(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// NewDefault возвращает классификатор с курируемыми наборами фраз.
func NewDefault() *Classifier {
	return New(DefaultRules()...)
}

// Classify возвращает интент реплики. Unknown не возвращается никогда:
// всё, что не совпало с фразами, уходит в ConversationalQuery.
func (c *Classifier) Classify(transcript string) domain.Intent {
	u := Parse(transcript)
	for _, rule := range c.rules {
		if rule.Match(u) {
			return rule.Intent
		}
	}
	return domain.IntentConversationalQuery
}

// DefaultRules — таблица по приоритету: Skip > Metadata > TellMore > Stop > Pause > Resume.
func DefaultRules() []Rule {
	return []Rule{
		{Intent: domain.IntentSkip, Match: StartsWith(skipCommands...)},
		{Intent: domain.IntentMetadata, Match: Contains(metadataPhrases...)},
		{Intent: domain.IntentTellMore, Match: Contains(tellMorePhrases...)},
		{Intent: domain.IntentStop, Match: Exactly(stopCommands...)},
		{Intent: domain.IntentPause, Match: Exactly(pauseCommands...)},
		{Intent: domain.IntentResume, Match: Exactly(resumeCommands...)},
	}
}

// Команда пропуска должна открывать реплику: «next» внутри вопроса не считается.
var skipCommands = []string{
	"skip",
	"next",
	"move on",
	"go to the next",
	"go on to the next",
	"on to the next",
	"onto the next",
}

var metadataPhrases = []string{
	"what newsletter",
	"which newsletter",
	"what source",
	"which source",
	"where is this from",
	"where's this from",
	"where is this story from",
	"where does this come from",
	"who wrote",
	"who published",
	"when was this published",
	"when was it published",
	"when was this story published",
	"when published",
	"publication date",
	"what's the headline",
	"what is the headline",
}

var tellMorePhrases = []string{
	"tell me more",
	"go deeper",
	"full story",
	"whole story",
	"more details",
	"more detail",
	"expand on this",
	"expand on that",
}

var stopCommands = []string{
	"stop",
	"stop the briefing",
	"stop briefing",
	"end the briefing",
	"end briefing",
	"i'm done",
	"we're done",
	"that's enough",
	"that's all",
	"quit",
}

var pauseCommands = []string{
	"pause",
	"pause the briefing",
	"pause briefing",
	"pause for a moment",
	"stop for a moment",
	"hold on",
	"hold on a second",
	"wait",
	"wait a second",
	"one moment",
	"give me a moment",
	"give me a second",
}

var resumeCommands = []string{
	"resume",
	"resume the briefing",
	"continue",
	"continue the briefing",
	"keep going",
	"go on",
	"carry on",
	"play",
	"unpause",
}

// StartsWith срабатывает, если команда начинается с одной из фраз по границе слова.
func StartsWith(phrases ...string) func(Utterance) bool {
	return func(u Utterance) bool {
		for _, p := range phrases {
			if u.Command == p || strings.HasPrefix(u.Command, p+" ") {
				return true
			}
		}
		return false
	}
}

// Contains срабатывает, если фраза встречается в реплике целыми словами.
func Contains(phrases ...string) func(Utterance) bool {
	return func(u Utterance) bool {
		padded := " " + u.Normalized + " "
		for _, p := range phrases {
			if strings.Contains(padded, " "+p+" ") {
				return true
			}
		}
		return false
	}
}

// Exactly срабатывает, если команда целиком совпадает с одной из фраз.
func Exactly(phrases ...string) func(Utterance) bool {
	return func(u Utterance) bool {
		for _, p := range phrases {
			if u.Command == p {
				return true
			}
		}
		return false
	}
}

var leadingFillers = []string{
	"okay", "ok", "um", "uh", "hey", "so", "well", "alright", "all right", "actually",
	"please", "just", "can you", "could you", "would you", "can we", "could we",
	"let's", "lets", "i want to", "i'd like to", "go ahead and",
}

var trailingFillers = []string{"please", "thanks", "thank you", "now"}

// Parse нормализует реплику: нижний регистр, без пунктуации, одиночные пробелы.
func Parse(transcript string) Utterance {
	norm := Normalize(transcript)
	return Utterance{Raw: transcript, Normalized: norm, Command: stripFillers(norm)}
}

// Normalize приводит реплику к виду для сравнения с фразами.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func stripFillers(norm string) string {
	cmd := norm
	for changed := true; changed; {
		changed = false
		for _, f := range leadingFillers {
			if strings.HasPrefix(cmd, f+" ") {
				cmd = strings.TrimPrefix(cmd, f+" ")
				changed = true
			}
		}
		for _, f := range trailingFillers {
			if strings.HasSuffix(cmd, " "+f) {
				cmd = strings.TrimSuffix(cmd, " "+f)
				changed = true
			}
		}
	}
	return cmd
}
