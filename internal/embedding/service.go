package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/metrics"
	"github.com/cityrag/backend/pkg/logger"
)

// Service batches embedding computation and fronts it with a
// content-addressed cache. The cache key covers the exact ordered batch, so
// ingestion must use a stable batch partition to benefit from it.
type Service struct {
	backend   Backend
	cache     Cache
	batchSize int
}

// NewService wraps backend with sub-batching and an optional cache.
// batchSize bounds peak memory per backend call.
func NewService(backend Backend, cache Cache, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{backend: backend, cache: cache, batchSize: batchSize}
}

func (s *Service) Model() string  { return s.backend.Model() }
func (s *Service) Dimension() int { return s.backend.Dimension() }

// EmbedBatch returns one vector per input text, in order. A cached batch is
// returned verbatim without touching the backend; otherwise the batch is
// computed in fixed-size sub-batches and the full result is cached.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	key := CacheKey(texts, s.backend.Model())

	if s.cache != nil {
		entry, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok {
			if s.validEntry(entry, len(texts)) {
				metrics.CacheHits.WithLabelValues(s.cache.Name()).Inc()
				logger.Debug("Embedding cache hit", zap.String("key", key), zap.Int("texts", len(texts)))
				return entry.Vectors, nil
			}
			logger.Warn("Discarding mismatched cache entry",
				zap.String("key", key),
				zap.String("cached_model", entry.Model),
				zap.Int("cached_dimension", entry.Dimension),
			)
		}
		metrics.CacheMisses.WithLabelValues(s.cache.Name()).Inc()
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.backend.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	if s.cache != nil {
		entry := &CacheEntry{
			Model:     s.backend.Model(),
			Dimension: s.backend.Dimension(),
			TextCount: len(texts),
			Vectors:   vectors,
		}
		if err := s.cache.Put(ctx, key, entry); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return vectors, nil
}

// EmbedOne embeds a single text, the query-time path. Query vectors are
// ephemeral and bypass the cache.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.backend.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

func (s *Service) validEntry(entry *CacheEntry, textCount int) bool {
	return entry.Model == s.backend.Model() &&
		entry.Dimension == s.backend.Dimension() &&
		entry.TextCount == textCount &&
		len(entry.Vectors) == textCount
}
