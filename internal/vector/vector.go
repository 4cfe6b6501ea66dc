package vector

import "context"

// Entry is one persisted index record: vector plus the metadata subset a
// citation needs. Entries are owned by the index and only change through
// Add/Delete.
type Entry struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

// Metadata carries citation fields denormalized onto each entry.
type Metadata struct {
	URL        string `json:"url"`
	SourceFile string `json:"source_file"`
	ChunkIndex int    `json:"chunk_index"`
}

// SearchResult is one ranked hit. Similarity follows the cosine convention:
// higher is closer, self-similarity is 1.
type SearchResult struct {
	ID         string
	Text       string
	Metadata   Metadata
	Similarity float64
}

// Stats reports collection-level counts.
type Stats struct {
	Collection string
	Entries    int64
}

// Index stores one named collection of dimensionally consistent vectors.
// Callers must never mix vectors from different models or dimensions into
// the same collection. Search is safe under concurrent readers; Add runs in
// the single-threaded ingestion phase.
type Index interface {
	// EnsureCollection creates the collection if needed. With recreate set
	// an existing collection is dropped first; re-ingesting into a kept
	// collection appends without deduplication.
	EnsureCollection(ctx context.Context, recreate bool) error

	// Add inserts entries in bounded batches and returns how many were
	// written before any failure. Partial writes are not rolled back.
	Add(ctx context.Context, entries []Entry) (int, error)

	// Search returns up to topK entries by descending cosine similarity.
	// filters restricts hits to entries whose metadata matches every
	// provided key ("url", "source_file").
	Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]SearchResult, error)

	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
