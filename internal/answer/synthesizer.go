package answer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cityrag/backend/pkg/logger"
	"github.com/cityrag/backend/pkg/retry"
)

// Availability describes whether the generation backend can serve requests.
type Availability int

const (
	Unconfigured Availability = iota
	Available
	Erroring
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Erroring:
		return "erroring"
	default:
		return "unconfigured"
	}
}

// Result is a synthesized answer plus how it was produced.
type Result struct {
	Answer       string
	FallbackUsed bool
	TokensUsed   int
}

// Synthesizer orchestrates grounded generation: prompt assembly, bounded
// retries against the backend, and scripted fallback when the backend is
// missing or keeps failing.
type Synthesizer struct {
	gen         Generator
	retryConfig retry.Config
}

// NewSynthesizer wraps gen with a retry bound of maxRetries attempts. gen
// may be nil for a deployment with no generation backend; every Generate
// call then degrades to the fallback table.
func NewSynthesizer(gen Generator, maxRetries int) *Synthesizer {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Synthesizer{
		gen: gen,
		retryConfig: retry.Config{
			MaxAttempts:    maxRetries,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// Generate produces an answer for query grounded in the passages. With no
// passages the backend is never invoked and the no-context answer is
// returned. Generate never returns an error; backend failure after the
// retry bound yields a fallback answer.
func (s *Synthesizer) Generate(ctx context.Context, query string, passages []string) Result {
	if len(passages) == 0 {
		return Result{Answer: NoContextAnswer()}
	}
	if s.gen == nil {
		return Result{Answer: FallbackAnswer(query), FallbackUsed: true}
	}

	userPrompt := BuildPrompt(query, passages)

	completion, err := retry.DoWithResult(ctx, s.retryConfig, func() (*Completion, error) {
		return s.gen.Complete(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		logger.Warn("Generation failed after retries, using fallback",
			zap.String("query", query),
			zap.Error(err),
		)
		return Result{Answer: FallbackAnswer(query), FallbackUsed: true}
	}

	return Result{
		Answer:     completion.Content,
		TokensUsed: completion.Usage.TotalTokens,
	}
}

// Probe checks backend health with a minimal completion.
func (s *Synthesizer) Probe(ctx context.Context) Availability {
	if s.gen == nil {
		return Unconfigured
	}
	if _, err := s.gen.Complete(ctx, "You are a health check.", "Reply with OK."); err != nil {
		return Erroring
	}
	return Available
}
