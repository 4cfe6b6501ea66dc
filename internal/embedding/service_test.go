package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityrag/backend/internal/metrics"
)

// countingBackend produces deterministic vectors and records how many times
// the underlying model was invoked.
type countingBackend struct {
	model string
	dim   int
	calls int
}

func (b *countingBackend) Model() string  { return b.model }
func (b *countingBackend) Dimension() int { return b.dim }

func (b *countingBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, b.dim)
		for j, r := range t {
			vec[j%b.dim] += float32(r)
		}
		out[i] = vec
	}
	return out, nil
}

func TestEmbedBatchCacheDeterminism(t *testing.T) {
	backend := &countingBackend{model: "test-model", dim: 8}
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	svc := NewService(backend, cache, 32)
	texts := []string{"marriage license", "parking permits", "green bin rules"}

	first, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, first, 3)
	callsAfterFirst := backend.calls
	require.Greater(t, callsAfterFirst, 0)

	second, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, backend.calls, "second identical batch must not hit the model")
}

func TestEmbedBatchDifferentOrderMisses(t *testing.T) {
	backend := &countingBackend{model: "test-model", dim: 8}
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	svc := NewService(backend, cache, 32)

	_, err = svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	calls := backend.calls

	_, err = svc.EmbedBatch(context.Background(), []string{"b", "a"})
	require.NoError(t, err)
	assert.Greater(t, backend.calls, calls, "reordered batch is a different cache key")
}

func TestEmbedBatchRecordsCacheMetrics(t *testing.T) {
	backend := &countingBackend{model: "test-model", dim: 8}
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	svc := NewService(backend, cache, 32)
	texts := []string{"snow removal schedule"}

	hitsBefore := testutil.ToFloat64(metrics.CacheHits.WithLabelValues(cache.Name()))
	missesBefore := testutil.ToFloat64(metrics.CacheMisses.WithLabelValues(cache.Name()))

	_, err = svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.InDelta(t, missesBefore+1, testutil.ToFloat64(metrics.CacheMisses.WithLabelValues(cache.Name())), 1e-9)

	_, err = svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.InDelta(t, hitsBefore+1, testutil.ToFloat64(metrics.CacheHits.WithLabelValues(cache.Name())), 1e-9)
}

func TestEmbedBatchSubBatching(t *testing.T) {
	backend := &countingBackend{model: "test-model", dim: 4}
	svc := NewService(backend, nil, 2)

	texts := []string{"one", "two", "three", "four", "five"}
	vectors, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, backend.calls, "5 texts at sub-batch size 2 is 3 backend calls")
}

func TestEmbedBatchModelMismatchInvalidatesHit(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	texts := []string{"shared batch"}
	key := CacheKey(texts, "model-b")
	require.NoError(t, cache.Put(context.Background(), key, &CacheEntry{
		Model:     "model-a",
		Dimension: 8,
		TextCount: 1,
		Vectors:   [][]float32{make([]float32, 8)},
	}))

	backend := &countingBackend{model: "model-b", dim: 8}
	svc := NewService(backend, cache, 32)

	_, err = svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls, "poisoned entry must be recomputed")
}

func TestEmbedOne(t *testing.T) {
	backend := &countingBackend{model: "test-model", dim: 8}
	svc := NewService(backend, nil, 32)

	vec, err := svc.EmbedOne(context.Background(), "what is the marriage license fee")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestCosineSimilarityBounds(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{-4, 3, -2, 1}

	sim := CosineSimilarity(a, b)
	assert.GreaterOrEqual(t, sim, -1.0)
	assert.LessOrEqual(t, sim, 1.0)

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float32{-1, -2, -3, -4}), 1e-9)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, 0.0, CosineSimilarity(zero, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2, 3}, zero))
	assert.Equal(t, 0.0, CosineSimilarity(zero, zero))
}

func TestSimilarityScores(t *testing.T) {
	query := []float32{1, 0}
	matrix := [][]float32{{1, 0}, {0, 1}, {-1, 0}}

	scores := SimilarityScores(query, matrix)
	require.Len(t, scores, 3)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, 0.0, scores[1], 1e-9)
	assert.InDelta(t, -1.0, scores[2], 1e-9)

	for _, s := range scores {
		assert.False(t, math.IsNaN(s))
	}
}
