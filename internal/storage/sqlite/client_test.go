package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityrag/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInsertAndGetRecentAnswers(t *testing.T) {
	c := newTestClient(t)

	for i, q := range []string{"first", "second"} {
		require.NoError(t, c.InsertAnswer(&models.AnswerRecord{
			ID:         q + "-id",
			QueryText:  q,
			Answer:     "answer to " + q,
			Confidence: 0.5,
			ChunksUsed: 3,
			LatencyMS:  100,
			CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := c.GetRecentAnswers(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].QueryText)
	assert.Equal(t, "first", records[1].QueryText)
	assert.Equal(t, 3, records[0].ChunksUsed)
	assert.False(t, records[0].FallbackUsed)
}

func TestAnswerSourcesRoundTrip(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.InsertAnswer(&models.AnswerRecord{
		ID:        "a1",
		QueryText: "q",
		Answer:    "a",
		CreatedAt: time.Now(),
	}))
	require.NoError(t, c.InsertAnswerSource(&models.AnswerSource{
		AnswerID:   "a1",
		URL:        "https://city.gov/other",
		SourceFile: "other.json",
		Similarity: 0.3,
	}))
	require.NoError(t, c.InsertAnswerSource(&models.AnswerSource{
		AnswerID:   "a1",
		URL:        "https://city.gov/page",
		SourceFile: "page.json",
		Similarity: 0.8,
	}))

	sources, err := c.GetAnswerSources("a1")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "https://city.gov/page", sources[0].URL, "sources come back ranked by similarity")
	assert.InDelta(t, 0.8, sources[0].Similarity, 1e-9)
	assert.Equal(t, "https://city.gov/other", sources[1].URL)
}

func TestFeedbackRequiresExistingAnswer(t *testing.T) {
	c := newTestClient(t)

	err := c.StoreFeedback(&models.Feedback{AnswerID: "missing", Helpful: true})
	assert.Error(t, err)

	require.NoError(t, c.InsertAnswer(&models.AnswerRecord{
		ID:        "a1",
		QueryText: "q",
		Answer:    "a",
		CreatedAt: time.Now(),
	}))
	assert.NoError(t, c.StoreFeedback(&models.Feedback{AnswerID: "a1", Helpful: true, Comment: "great"}))
}
