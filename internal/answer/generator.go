// Package answer turns retrieved context passages into grounded natural
// language answers, with scripted fallbacks when the generation backend is
// unavailable.
package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cityrag/backend/pkg/circuitbreaker"
	"github.com/cityrag/backend/pkg/logger"
)

// ErrUnconfigured is returned by backends constructed without credentials.
var ErrUnconfigured = errors.New("generation backend not configured")

// Generator is a chat-completion backend. Implementations do not retry;
// retry policy belongs to the Synthesizer.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

type Completion struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// OpenAIGenerator speaks the OpenAI chat completion protocol against any
// compatible endpoint (Groq, OpenAI, a local server) selected via baseURL.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
}

func NewOpenAIGenerator(apiKey, baseURL, model string, temperature float32, maxTokens, timeoutSec int) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, ErrUnconfigured
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	cb := circuitbreaker.NewCircuitBreaker("generation", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Generation backend initialized",
		zap.String("model", model),
		zap.String("base_url", baseURL),
	)

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
	}, nil
}

func (g *OpenAIGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var result *Completion

	err := g.cb.Execute(ctx, func() error {
		resp, err := g.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model: g.model,
				Messages: []openai.ChatCompletionMessage{
					{
						Role:    openai.ChatMessageRoleSystem,
						Content: systemPrompt,
					},
					{
						Role:    openai.ChatMessageRoleUser,
						Content: userPrompt,
					},
				},
				Temperature: g.temperature,
				MaxTokens:   g.maxTokens,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}

		logger.Debug("Completion generated",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		result = &Completion{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
