package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityrag/backend/internal/answer"
	"github.com/cityrag/backend/internal/corpus"
	"github.com/cityrag/backend/internal/embedding"
	"github.com/cityrag/backend/internal/storage/sqlite"
	"github.com/cityrag/backend/internal/vector/memory"
)

// mapBackend returns fixed vectors per text so similarities are exact.
type mapBackend struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (m *mapBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func (m *mapBackend) Model() string  { return "test-model" }
func (m *mapBackend) Dimension() int { return 3 }

type echoGenerator struct {
	calls int
}

func (e *echoGenerator) Complete(_ context.Context, _, userPrompt string) (*answer.Completion, error) {
	e.calls++
	return &answer.Completion{Content: "echo: " + userPrompt}, nil
}

const (
	marriageChunk = "Marriage license fee is $145, valid 90 days, issued at City Hall weekdays."
	parkingChunk  = "Overnight street parking requires a permit between November and April."
	noiseChunk    = "Unrelated page boilerplate with no useful information at all here."
)

func testCorpusFile(t *testing.T) string {
	t.Helper()

	c := &corpus.Corpus{
		Documents: []corpus.Document{
			{URL: "https://city.gov/marriage", Title: "Marriage Licenses", Content: marriageChunk, SourceFile: "marriage.json"},
			{URL: "https://city.gov/parking", Title: "Parking", Content: parkingChunk, SourceFile: "parking.json"},
			{URL: "https://city.gov/noise", Title: "Noise", Content: noiseChunk, SourceFile: "noise.json"},
		},
		Chunks: []corpus.Chunk{
			{ID: corpus.ChunkID(0), DocumentID: corpus.DocumentID(0), Content: marriageChunk, URL: "https://city.gov/marriage", SourceFile: "marriage.json"},
			{ID: corpus.ChunkID(1), DocumentID: corpus.DocumentID(1), Content: parkingChunk, URL: "https://city.gov/parking", SourceFile: "parking.json"},
			{ID: corpus.ChunkID(2), DocumentID: corpus.DocumentID(2), Content: noiseChunk, URL: "https://city.gov/noise", SourceFile: "noise.json"},
		},
	}

	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, c.Save(path))
	return path
}

func testBackend(queryVec []float32, query string) *mapBackend {
	return &mapBackend{vectors: map[string][]float32{
		marriageChunk: {1, 0, 0},
		parkingChunk:  {0.6, 0.8, 0},
		noiseChunk:    {0, 1, 0},
		query:         queryVec,
	}}
}

func newServingPipeline(t *testing.T, backend *mapBackend, gen answer.Generator) *Pipeline {
	t.Helper()

	idx, err := memory.New("test", 3, "")
	require.NoError(t, err)

	proc, err := corpus.NewProcessor(800, 100, 20, 5)
	require.NoError(t, err)

	synth := answer.NewSynthesizer(gen, 1)
	p := New(embedding.NewService(backend, nil, 32), idx, synth, proc, nil, Config{
		TopK:                5,
		SimilarityThreshold: 0.1,
		RecreateCollection:  true,
	})

	require.NoError(t, p.LoadCorpus(testCorpusFile(t)))
	require.NoError(t, p.BuildIndex(context.Background()))
	require.NoError(t, p.Ready())
	assert.Equal(t, StateServing, p.State())
	return p
}

func TestAnswerEndToEnd(t *testing.T) {
	query := "how much does a marriage license cost"
	gen := &echoGenerator{}
	p := newServingPipeline(t, testBackend([]float32{1, 0, 0}, query), gen)

	resp := p.Answer(context.Background(), query)

	require.Empty(t, resp.Error)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, resp.Answer, "$145")
	assert.Contains(t, resp.Answer, query)
	assert.False(t, resp.FallbackUsed)
	assert.Equal(t, 3, resp.TotalDocuments)
	assert.Equal(t, 3, resp.TotalChunks)
	assert.NotEmpty(t, resp.ID)

	// Query [1,0,0]: marriage 1.0, parking 0.6, noise 0. The noise chunk
	// falls below the 0.1 threshold.
	assert.Equal(t, 2, resp.ChunksUsed)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "https://city.gov/marriage", resp.Sources[0].URL)
	assert.Equal(t, "https://city.gov/parking", resp.Sources[1].URL)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-6)
}

func TestAnswerNoRelevantContext(t *testing.T) {
	query := "something entirely different"
	gen := &echoGenerator{}
	p := newServingPipeline(t, testBackend([]float32{0, 0, 1}, query), gen)

	resp := p.Answer(context.Background(), query)

	require.Empty(t, resp.Error)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, answer.NoContextAnswer(), resp.Answer)
	assert.Equal(t, 0, resp.ChunksUsed)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Sources)
}

func TestAnswerBeforeServing(t *testing.T) {
	idx, err := memory.New("test", 3, "")
	require.NoError(t, err)
	proc, err := corpus.NewProcessor(800, 100, 20, 5)
	require.NoError(t, err)

	backend := &mapBackend{vectors: map[string][]float32{}}
	p := New(embedding.NewService(backend, nil, 32), idx, answer.NewSynthesizer(&echoGenerator{}, 1), proc, nil, Config{SimilarityThreshold: 0.1})

	resp := p.Answer(context.Background(), "any question")

	assert.NotEmpty(t, resp.Error)
	assert.NotEmpty(t, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, 0, backend.calls)
}

func TestAnswerEmbeddingFailureYieldsErrorResponse(t *testing.T) {
	query := "how much does a marriage license cost"
	backend := testBackend([]float32{1, 0, 0}, query)
	gen := &echoGenerator{}
	p := newServingPipeline(t, backend, gen)

	backend.fail = true
	resp := p.Answer(context.Background(), query)

	assert.NotEmpty(t, resp.Error)
	assert.NotEmpty(t, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, 0, gen.calls)
}

func TestBuildIndexFailureKeepsCorpusLoaded(t *testing.T) {
	idx, err := memory.New("test", 3, "")
	require.NoError(t, err)
	proc, err := corpus.NewProcessor(800, 100, 20, 5)
	require.NoError(t, err)

	backend := &mapBackend{fail: true}
	p := New(embedding.NewService(backend, nil, 32), idx, answer.NewSynthesizer(&echoGenerator{}, 1), proc, nil, Config{SimilarityThreshold: 0.1})

	require.NoError(t, p.LoadCorpus(testCorpusFile(t)))
	require.Error(t, p.BuildIndex(context.Background()))
	assert.Equal(t, StateCorpusLoaded, p.State())
	require.Error(t, p.Ready())
}

func TestHistoryIncludesSources(t *testing.T) {
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	query := "how much does a marriage license cost"
	gen := &echoGenerator{}
	backend := testBackend([]float32{1, 0, 0}, query)

	idx, err := memory.New("test", 3, "")
	require.NoError(t, err)
	proc, err := corpus.NewProcessor(800, 100, 20, 5)
	require.NoError(t, err)

	p := New(embedding.NewService(backend, nil, 32), idx, answer.NewSynthesizer(gen, 1), proc, db, Config{
		TopK:                5,
		SimilarityThreshold: 0.1,
		RecreateCollection:  true,
	})
	require.NoError(t, p.LoadCorpus(testCorpusFile(t)))
	require.NoError(t, p.BuildIndex(context.Background()))
	require.NoError(t, p.Ready())

	resp := p.Answer(context.Background(), query)
	require.Empty(t, resp.Error)

	entries, err := p.History(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, resp.ID, entries[0].ID)
	assert.Equal(t, query, entries[0].QueryText)

	require.Len(t, entries[0].Sources, 2)
	assert.Equal(t, "https://city.gov/marriage", entries[0].Sources[0].URL)
	assert.Equal(t, "https://city.gov/parking", entries[0].Sources[1].URL)
	assert.InDelta(t, 1.0, entries[0].Sources[0].Similarity, 1e-6)
}

func TestIngestDocumentWhileServing(t *testing.T) {
	dogChunk := "Dog licenses cost 25 dollars and renew every year at the service desk."
	query := "how do I license my dog"

	backend := testBackend([]float32{0, 0, 1}, query)
	backend.vectors[dogChunk] = []float32{0, 0, 1}

	gen := &echoGenerator{}
	p := newServingPipeline(t, backend, gen)

	added, err := p.IngestDocument(context.Background(), corpus.Document{
		URL:        "https://city.gov/dogs",
		Title:      "Dog Licenses",
		Content:    dogChunk,
		SourceFile: "dogs.json",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	resp := p.Answer(context.Background(), query)
	require.Empty(t, resp.Error)
	assert.Equal(t, 1, resp.ChunksUsed)
	assert.Contains(t, resp.Answer, "Dog licenses cost 25 dollars")
	assert.Equal(t, 4, resp.TotalDocuments)
}
