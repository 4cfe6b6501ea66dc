package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cityrag/backend/pkg/circuitbreaker"
	"github.com/cityrag/backend/pkg/logger"
	"github.com/cityrag/backend/pkg/retry"
)

// ErrUnconfigured is returned when no embedding API key is configured.
var ErrUnconfigured = errors.New("embedding backend not configured")

// Backend computes embedding vectors for a batch of texts. An error means
// the batch was not embedded; there is no silent empty-vector substitution.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// OpenAIBackend embeds through an OpenAI-compatible embeddings endpoint,
// shielded by a circuit breaker and bounded retries.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	dimension   int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// NewOpenAIBackend returns an embedding backend, or ErrUnconfigured when
// apiKey is empty. baseURL overrides the default endpoint for compatible
// providers.
func NewOpenAIBackend(apiKey, baseURL, model string, dimension int) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, ErrUnconfigured
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Embedding backend initialized",
		zap.String("model", model),
		zap.Int("dimension", dimension),
	)

	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		dimension:   dimension,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (b *OpenAIBackend) Model() string  { return b.model }
func (b *OpenAIBackend) Dimension() int { return b.dimension }

func (b *OpenAIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var vectors [][]float32

	err := b.cb.Execute(ctx, func() error {
		return retry.Do(ctx, b.retryConfig, func() error {
			resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(b.model),
			})
			if err != nil {
				return fmt.Errorf("failed to create embeddings: %w", err)
			}

			vectors = make([][]float32, len(resp.Data))
			for i, data := range resp.Data {
				vec := make([]float32, len(data.Embedding))
				copy(vec, data.Embedding)
				vectors[i] = vec
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(texts))
	}

	return vectors, nil
}
