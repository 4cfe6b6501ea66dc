package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	calls int
	fail  bool
}

func (s *stubGenerator) Complete(_ context.Context, _, userPrompt string) (*Completion, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("backend unavailable")
	}
	return &Completion{
		Content: "echo: " + userPrompt,
		Usage:   Usage{TotalTokens: 42},
	}, nil
}

func newTestSynthesizer(gen Generator, maxRetries int) *Synthesizer {
	s := NewSynthesizer(gen, maxRetries)
	s.retryConfig.InitialDelay = time.Millisecond
	s.retryConfig.MaxDelay = time.Millisecond
	return s
}

func TestGenerateGroundsAnswerInPassages(t *testing.T) {
	gen := &stubGenerator{}
	s := newTestSynthesizer(gen, 3)

	res := s.Generate(context.Background(), "how do I get a marriage license?", []string{
		"Marriage licenses cost $145 and are issued at City Hall.",
		"Bring two pieces of government ID.",
	})

	assert.False(t, res.FallbackUsed)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 42, res.TokensUsed)
	assert.Contains(t, res.Answer, "Source 1: Marriage licenses cost $145")
	assert.Contains(t, res.Answer, "Source 2: Bring two pieces")
	assert.Contains(t, res.Answer, "how do I get a marriage license?")
}

func TestGenerateRetriesUpToBoundThenFallsBack(t *testing.T) {
	gen := &stubGenerator{fail: true}
	s := newTestSynthesizer(gen, 3)

	res := s.Generate(context.Background(), "when is garbage collected?", []string{"some context"})

	assert.Equal(t, 3, gen.calls)
	assert.True(t, res.FallbackUsed)
	assert.NotEmpty(t, res.Answer)
	assert.Contains(t, res.Answer, "waste collection")
}

func TestGenerateEmptyContextSkipsBackend(t *testing.T) {
	gen := &stubGenerator{}
	s := newTestSynthesizer(gen, 3)

	res := s.Generate(context.Background(), "anything", nil)

	assert.Equal(t, 0, gen.calls)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, NoContextAnswer(), res.Answer)
}

func TestGenerateNilBackendUsesFallback(t *testing.T) {
	s := newTestSynthesizer(nil, 3)

	res := s.Generate(context.Background(), "where can I park downtown?", []string{"context"})

	assert.True(t, res.FallbackUsed)
	assert.Contains(t, res.Answer, "parking")
}

func TestFallbackAnswerKeywordTable(t *testing.T) {
	cases := map[string]string{
		"How do I get a MARRIAGE license": "marriage license",
		"fire safety inspections":         "fire safety",
		"starting a business":             "business licensing",
		"completely unrelated query":      "unable to process",
	}
	for query, want := range cases {
		got := FallbackAnswer(query)
		assert.Contains(t, strings.ToLower(got), want, "query %q", query)
	}
}

func TestProbe(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Unconfigured, newTestSynthesizer(nil, 1).Probe(ctx))
	assert.Equal(t, Erroring, newTestSynthesizer(&stubGenerator{fail: true}, 1).Probe(ctx))
	assert.Equal(t, Available, newTestSynthesizer(&stubGenerator{}, 1).Probe(ctx))
}

func TestNewOpenAIGeneratorRequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator("", "", "llama3-8b-8192", 0.1, 1000, 30)
	require.ErrorIs(t, err, ErrUnconfigured)
}
