package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cityrag/backend/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, vec []float32, url string) vector.Entry {
	return vector.Entry{
		ID:     id,
		Text:   "text for " + id,
		Vector: vec,
		Metadata: vector.Metadata{
			URL:        url,
			SourceFile: url + ".json",
		},
	}
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	idx, err := New("test", 3, "")
	require.NoError(t, err)

	ctx := context.Background()
	n, err := idx.Add(ctx, []vector.Entry{
		entry("a", []float32{1, 0, 0}, "https://city.gov/a"),
		entry("b", []float32{0, 1, 0}, "https://city.gov/b"),
		entry("c", []float32{1, 1, 0}, "https://city.gov/c"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestSearchMetadataFilter(t *testing.T) {
	idx, err := New("test", 2, "")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = idx.Add(ctx, []vector.Entry{
		entry("a", []float32{1, 0}, "https://city.gov/permits"),
		entry("b", []float32{1, 0}, "https://city.gov/parking"),
	})
	require.NoError(t, err)

	results, err := idx.Search(ctx, []float32{1, 0}, 10, map[string]string{"url": "https://city.gov/parking"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestAddRejectsWrongDimension(t *testing.T) {
	idx, err := New("test", 3, "")
	require.NoError(t, err)

	ctx := context.Background()
	n, err := idx.Add(ctx, []vector.Entry{
		entry("a", []float32{1, 0, 0}, "u"),
		entry("bad", []float32{1, 0}, "u"),
		entry("c", []float32{0, 1, 0}, "u"),
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestAddUpsertsByID(t *testing.T) {
	idx, err := New("test", 2, "")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = idx.Add(ctx, []vector.Entry{entry("a", []float32{1, 0}, "old")})
	require.NoError(t, err)
	_, err = idx.Add(ctx, []vector.Entry{entry("a", []float32{0, 1}, "new")})
	require.NoError(t, err)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)

	results, err := idx.Search(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Metadata.URL)
}

func TestDeleteRemovesEntries(t *testing.T) {
	idx, err := New("test", 2, "")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = idx.Add(ctx, []vector.Entry{
		entry("a", []float32{1, 0}, "u"),
		entry("b", []float32{0, 1}, "u"),
	})
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	results, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestEnsureCollectionRecreateClears(t *testing.T) {
	idx, err := New("test", 2, "")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = idx.Add(ctx, []vector.Entry{entry("a", []float32{1, 0}, "u")})
	require.NoError(t, err)

	require.NoError(t, idx.EnsureCollection(ctx, true))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Entries)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	idx, err := New("test", 2, path)
	require.NoError(t, err)
	_, err = idx.Add(ctx, []vector.Entry{
		entry("a", []float32{1, 0}, "https://city.gov/a"),
		entry("b", []float32{0, 1}, "https://city.gov/b"),
	})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reloaded, err := New("test", 2, path)
	require.NoError(t, err)

	stats, err := reloaded.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)

	results, err := reloaded.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "https://city.gov/a", results[0].Metadata.URL)
}
