package answerer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-briefing/internal/domain"
	openai "voice-briefing/internal/infra/openai"
	"voice-briefing/internal/infra/retry"
)

const systemPrompt = `You are a helpful assistant for a voice newsletter briefing app.
The user is listening to a story and has asked a follow-up question.
Answer based on the story context below. Be concise and conversational: 1-3 sentences, suitable for being read aloud.
If the context does not contain the answer, say so briefly instead of inventing facts.`

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует domain.QuestionAnswerer через OpenAI Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
	policy  retry.Policy
	log     zerolog.Logger
}

var _ domain.QuestionAnswerer = (*OpenAI)(nil)

// NewOpenAI создаёт провайдер ответов.
func NewOpenAI(client chatClient, model string, timeout time.Duration, policy retry.Policy, logger zerolog.Logger) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout, policy: policy, log: logger}
}

// AnswerQuestion отвечает на вопрос по контексту новости.
// Временные ошибки API повторяются с экспоненциальной задержкой.
func (a *OpenAI) AnswerQuestion(ctx context.Context, question, storyContext string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("пустой вопрос")
	}

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.7,
		MaxTokens:   200,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt + "\n\nSTORY CONTEXT:\n" + clipRunes(storyContext, 8000)},
			{Role: openai.RoleUser, Content: question},
		},
	}

	var answer string
	err := retry.Do(ctx, a.policy, "openai", a.log, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		resp, err := a.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			if !openai.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return retry.Permanent(errors.New("openai completion: пустой ответ"))
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai completion: %v", domain.ErrCollaboratorUnavailable, err)
	}
	if answer == "" {
		return "", fmt.Errorf("%w: openai вернул пустой текст", domain.ErrCollaboratorUnavailable)
	}
	return answer, nil
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
