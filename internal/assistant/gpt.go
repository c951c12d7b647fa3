package assistant

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/models"
)

//go:embed system_prompt.txt
var systemPrompt string

type GPTResponder struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	fallback    Responder
	logger      *zap.Logger
}

// NewGPTResponder talks to an OpenAI-compatible endpoint. An empty baseURL
// uses the OpenAI default. When fallback is non-nil it answers whenever the
// model call fails.
func NewGPTResponder(apiKey, baseURL, model string, maxTokens int, temperature float64, fallback Responder, logger *zap.Logger) *GPTResponder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GPTResponder{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		fallback:    fallback,
		logger:      logger,
	}
}

func (r *GPTResponder) Respond(ctx context.Context, req models.ChatRequest) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    r.buildMessages(req),
		MaxTokens:   r.maxTokens,
		Temperature: float32(r.temperature),
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("no choices in completion")
	}
	if err != nil {
		r.logger.Error("Failed to get GPT response", zap.Error(err), zap.String("model", r.model))
		if r.fallback != nil {
			return r.fallback.Respond(ctx, req)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (r *GPTResponder) buildMessages(req models.ChatRequest) []openai.ChatCompletionMessage {
	system := systemPrompt
	if filters := activeFilters(req.Context); len(filters) > 0 {
		data, _ := json.Marshal(filters)
		system += "\nCurrent filter context: " + string(data)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})
	return messages
}

func activeFilters(ctx map[string]string) map[string]string {
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
