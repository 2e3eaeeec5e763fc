package answerer

import (
	"context"
	"strings"

	"voice-briefing/internal/domain"
)

// Stub отвечает без LLM: пересказывает подробную часть контекста.
// Используется, когда ключ OpenAI не задан.
type Stub struct{}

var _ domain.QuestionAnswerer = Stub{}

// NewStub создаёт заглушку.
func NewStub() Stub {
	return Stub{}
}

// AnswerQuestion реализует domain.QuestionAnswerer.
func (Stub) AnswerQuestion(ctx context.Context, _ string, storyContext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var brief, detailed string
	for _, line := range strings.Split(storyContext, "\n") {
		switch {
		case strings.HasPrefix(line, "DETAILED SUMMARY: "):
			detailed = strings.TrimPrefix(line, "DETAILED SUMMARY: ")
		case strings.HasPrefix(line, "BRIEF SUMMARY: "):
			brief = strings.TrimPrefix(line, "BRIEF SUMMARY: ")
		}
	}
	text := strings.TrimSpace(detailed)
	if text == "" {
		text = strings.TrimSpace(brief)
	}
	if text == "" {
		return "", nil
	}
	return "Here's what the story says: " + firstSentences(text, 2), nil
}

func firstSentences(text string, n int) string {
	count := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count == n {
				return text[:i+1]
			}
		}
	}
	return text
}
