// Package pipeline wires corpus, embeddings, vector search and answer
// synthesis into the retrieval flow behind the /ask API.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/answer"
	"github.com/cityrag/backend/internal/corpus"
	"github.com/cityrag/backend/internal/embedding"
	"github.com/cityrag/backend/internal/metrics"
	"github.com/cityrag/backend/internal/storage/models"
	"github.com/cityrag/backend/internal/storage/sqlite"
	"github.com/cityrag/backend/internal/vector"
	"github.com/cityrag/backend/pkg/logger"
)

// State tracks initialization progress. Queries are only served once the
// pipeline reaches StateServing.
type State int

const (
	StateUninitialized State = iota
	StateCorpusLoaded
	StateIndexReady
	StateServing
)

func (s State) String() string {
	switch s {
	case StateCorpusLoaded:
		return "corpus_loaded"
	case StateIndexReady:
		return "index_ready"
	case StateServing:
		return "serving"
	default:
		return "uninitialized"
	}
}

type Config struct {
	TopK                int
	SimilarityThreshold float64
	RecreateCollection  bool
}

type Pipeline struct {
	mu        sync.RWMutex
	state     State
	corpus    *corpus.Corpus
	embedder  *embedding.Service
	index     vector.Index
	synth     *answer.Synthesizer
	processor *corpus.Processor
	db        *sqlite.Client

	topK      int
	threshold float64
	recreate  bool
}

// Source is one citation in a response.
type Source struct {
	URL        string  `json:"url"`
	SourceFile string  `json:"source_file"`
	Similarity float64 `json:"similarity"`
}

// Response is the complete answer payload. Error is set instead of
// returning a Go error so callers always get a well-formed response.
type Response struct {
	ID             string    `json:"id"`
	Query          string    `json:"query"`
	Answer         string    `json:"answer"`
	Sources        []Source  `json:"sources"`
	Confidence     float64   `json:"confidence"`
	ChunksUsed     int       `json:"chunks_used"`
	FallbackUsed   bool      `json:"fallback_used"`
	Timestamp      time.Time `json:"timestamp"`
	TotalDocuments int       `json:"total_documents"`
	TotalChunks    int       `json:"total_chunks"`
	Error          string    `json:"error,omitempty"`
}

// Stats is the system status snapshot served by /stats.
type Stats struct {
	State              string `json:"state"`
	DocumentsLoaded    int    `json:"documents_loaded"`
	ChunksAvailable    int    `json:"chunks_available"`
	IndexEntries       int64  `json:"index_entries"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	LLMStatus          string `json:"llm_status"`
}

// New assembles a pipeline. db may be nil to disable query history.
func New(embedder *embedding.Service, index vector.Index, synth *answer.Synthesizer, processor *corpus.Processor, db *sqlite.Client, cfg Config) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Pipeline{
		state:     StateUninitialized,
		embedder:  embedder,
		index:     index,
		synth:     synth,
		processor: processor,
		db:        db,
		topK:      cfg.TopK,
		threshold: cfg.SimilarityThreshold,
		recreate:  cfg.RecreateCollection,
	}
}

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LoadCorpus reads a processed corpus file into memory.
func (p *Pipeline) LoadCorpus(path string) error {
	c, err := corpus.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}

	p.mu.Lock()
	p.corpus = c
	p.state = StateCorpusLoaded
	p.mu.Unlock()

	logger.Info("Corpus loaded",
		zap.String("path", path),
		zap.Int("documents", len(c.Documents)),
		zap.Int("chunks", len(c.Chunks)),
	)
	return nil
}

// ProcessRawData builds the corpus from scraped page files instead of a
// pre-processed corpus file.
func (p *Pipeline) ProcessRawData(rawDir, corpusPath string) error {
	c, err := p.processor.Process(rawDir)
	if err != nil {
		return fmt.Errorf("failed to process raw data: %w", err)
	}
	if corpusPath != "" {
		if err := c.Save(corpusPath); err != nil {
			return fmt.Errorf("failed to save corpus: %w", err)
		}
	}

	p.mu.Lock()
	p.corpus = c
	p.state = StateCorpusLoaded
	p.mu.Unlock()

	metrics.DocumentsProcessed.Add(float64(len(c.Documents)))
	return nil
}

// BuildIndex embeds every chunk and loads the vector collection. On
// failure the pipeline stays in StateCorpusLoaded so the caller can retry.
func (p *Pipeline) BuildIndex(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state < StateCorpusLoaded {
		return fmt.Errorf("no corpus loaded")
	}

	texts := make([]string, len(p.corpus.Chunks))
	for i, ch := range p.corpus.Chunks {
		texts[i] = ch.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed corpus: %w", err)
	}

	if err := p.index.EnsureCollection(ctx, p.recreate); err != nil {
		return fmt.Errorf("failed to prepare collection: %w", err)
	}

	entries := make([]vector.Entry, len(p.corpus.Chunks))
	for i, ch := range p.corpus.Chunks {
		entries[i] = vector.Entry{
			ID:     ch.ID,
			Text:   ch.Content,
			Vector: vectors[i],
			Metadata: vector.Metadata{
				URL:        ch.URL,
				SourceFile: ch.SourceFile,
				ChunkIndex: ch.ChunkIndex,
			},
		}
	}

	inserted, err := p.index.Add(ctx, entries)
	if err != nil {
		logger.Error("Index build incomplete",
			zap.Int("indexed", inserted),
			zap.Int("total", len(entries)),
			zap.Error(err),
		)
		return fmt.Errorf("indexed %d of %d chunks: %w", inserted, len(entries), err)
	}

	metrics.ChunksIndexed.Set(float64(inserted))
	p.state = StateIndexReady

	logger.Info("Vector index built",
		zap.Int("chunks", inserted),
	)
	return nil
}

// Ready transitions the pipeline into serving mode.
func (p *Pipeline) Ready() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state < StateIndexReady {
		return fmt.Errorf("index not ready (state %s)", p.state)
	}
	p.state = StateServing
	return nil
}

// Answer runs the full retrieval flow for one question. It never returns
// a Go error; failures produce a well-formed Response with Error set and
// zero confidence.
func (p *Pipeline) Answer(ctx context.Context, query string) *Response {
	start := time.Now()

	resp := &Response{
		ID:        uuid.New().String(),
		Query:     query,
		Timestamp: time.Now(),
	}

	p.mu.RLock()
	state := p.state
	if p.corpus != nil {
		resp.TotalDocuments = len(p.corpus.Documents)
		resp.TotalChunks = len(p.corpus.Chunks)
	}
	p.mu.RUnlock()

	if state != StateServing {
		resp.Answer = "The assistant is still starting up. Please try again shortly."
		resp.Error = fmt.Sprintf("pipeline not serving (state %s)", state)
		metrics.QueryTotal.WithLabelValues("unavailable").Inc()
		return resp
	}

	queryVector, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		logger.Error("Query embedding failed", zap.Error(err))
		resp.Answer = "I encountered an error processing your question. Please try rephrasing it."
		resp.Error = err.Error()
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return resp
	}

	results, err := p.index.Search(ctx, queryVector, p.topK, nil)
	if err != nil {
		logger.Error("Vector search failed", zap.Error(err))
		resp.Answer = "I encountered an error searching the city services database. Please try again."
		resp.Error = err.Error()
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return resp
	}

	relevant := make([]vector.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity >= p.threshold {
			relevant = append(relevant, r)
		}
	}
	metrics.RetrievedChunks.Observe(float64(len(relevant)))

	passages := make([]string, len(relevant))
	for i, r := range relevant {
		passages[i] = r.Text
	}

	result := p.synth.Generate(ctx, query, passages)
	resp.Answer = result.Answer
	resp.FallbackUsed = result.FallbackUsed
	resp.ChunksUsed = len(relevant)

	if result.FallbackUsed {
		metrics.FallbackAnswers.Inc()
	}
	if result.TokensUsed > 0 {
		metrics.LLMTokensUsed.WithLabelValues("default").Add(float64(result.TokensUsed))
	}

	var similaritySum float64
	for _, r := range relevant {
		resp.Sources = append(resp.Sources, Source{
			URL:        r.Metadata.URL,
			SourceFile: r.Metadata.SourceFile,
			Similarity: r.Similarity,
		})
		similaritySum += r.Similarity
	}
	if len(relevant) > 0 {
		resp.Confidence = similaritySum / float64(len(relevant))
	}

	latency := time.Since(start)
	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues("ask").Observe(latency.Seconds())
	metrics.ConfidenceScore.Observe(resp.Confidence)

	p.recordAnswer(resp, latency)

	logger.Info("Query answered",
		zap.String("answer_id", resp.ID),
		zap.Int("chunks_used", resp.ChunksUsed),
		zap.Float64("confidence", resp.Confidence),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
	return resp
}

// recordAnswer persists history best-effort; storage failures never fail
// the query.
func (p *Pipeline) recordAnswer(resp *Response, latency time.Duration) {
	if p.db == nil {
		return
	}

	record := &models.AnswerRecord{
		ID:           resp.ID,
		QueryText:    resp.Query,
		Answer:       resp.Answer,
		Confidence:   resp.Confidence,
		ChunksUsed:   resp.ChunksUsed,
		FallbackUsed: resp.FallbackUsed,
		LatencyMS:    latency.Milliseconds(),
		CreatedAt:    time.Now(),
	}
	if err := p.db.InsertAnswer(record); err != nil {
		logger.Warn("Failed to record answer", zap.Error(err))
		return
	}

	for _, s := range resp.Sources {
		if err := p.db.InsertAnswerSource(&models.AnswerSource{
			AnswerID:   resp.ID,
			URL:        s.URL,
			SourceFile: s.SourceFile,
			Similarity: s.Similarity,
		}); err != nil {
			logger.Warn("Failed to record answer source", zap.Error(err))
		}
	}
}

// IngestDocument adds one scraped document to the corpus and index while
// serving. Returns how many chunks were indexed.
func (p *Pipeline) IngestDocument(ctx context.Context, doc corpus.Document) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state < StateIndexReady {
		return 0, fmt.Errorf("index not ready (state %s)", p.state)
	}

	chunks := p.processor.ProcessDocument(doc, len(p.corpus.Chunks), len(p.corpus.Documents))
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed document: %w", err)
	}

	entries := make([]vector.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = vector.Entry{
			ID:     ch.ID,
			Text:   ch.Content,
			Vector: vectors[i],
			Metadata: vector.Metadata{
				URL:        ch.URL,
				SourceFile: ch.SourceFile,
				ChunkIndex: ch.ChunkIndex,
			},
		}
	}

	inserted, err := p.index.Add(ctx, entries)
	if err != nil {
		return inserted, fmt.Errorf("indexed %d of %d chunks: %w", inserted, len(entries), err)
	}

	p.corpus.Documents = append(p.corpus.Documents, doc)
	p.corpus.Chunks = append(p.corpus.Chunks, chunks...)

	metrics.DocumentsProcessed.Inc()

	logger.Info("Document ingested",
		zap.String("url", doc.URL),
		zap.Int("chunks", inserted),
	)
	return inserted, nil
}

// Stats returns the current system snapshot.
func (p *Pipeline) Stats(ctx context.Context) Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Stats{
		State:              p.state.String(),
		EmbeddingModel:     p.embedder.Model(),
		EmbeddingDimension: p.embedder.Dimension(),
		LLMStatus:          p.synth.Probe(ctx).String(),
	}
	if p.corpus != nil {
		s.DocumentsLoaded = len(p.corpus.Documents)
		s.ChunksAvailable = len(p.corpus.Chunks)
	}
	if idxStats, err := p.index.Stats(ctx); err == nil {
		s.IndexEntries = idxStats.Entries
	}
	return s
}

// HistoryEntry pairs an answered query with its recorded citations.
type HistoryEntry struct {
	models.AnswerRecord
	Sources []models.AnswerSource `json:"sources"`
}

// History returns recent answered queries with their citations, newest
// first. Returns nil when history storage is disabled.
func (p *Pipeline) History(limit int) ([]HistoryEntry, error) {
	if p.db == nil {
		return nil, nil
	}

	records, err := p.db.GetRecentAnswers(limit)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, len(records))
	for i, r := range records {
		sources, err := p.db.GetAnswerSources(r.ID)
		if err != nil {
			return nil, err
		}
		if sources == nil {
			sources = []models.AnswerSource{}
		}
		entries[i] = HistoryEntry{AnswerRecord: r, Sources: sources}
	}
	return entries, nil
}

// Feedback stores a user rating for a previously answered query.
func (p *Pipeline) Feedback(answerID string, helpful bool, comment string) error {
	if p.db == nil {
		return fmt.Errorf("history storage disabled")
	}

	label := "no"
	if helpful {
		label = "yes"
	}
	metrics.UserSatisfaction.WithLabelValues(label).Inc()

	return p.db.StoreFeedback(&models.Feedback{
		AnswerID: answerID,
		Helpful:  helpful,
		Comment:  comment,
	})
}
