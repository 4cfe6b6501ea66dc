package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Document is one scraped source page, created once at ingestion and
// immutable afterwards. Re-ingestion fully replaces it.
type Document struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Content       string `json:"content"`
	ContentLength int    `json:"content_length"`
	ScrapedAt     string `json:"scraped_at"`
	SourceFile    string `json:"source_file"`
}

// Chunk is a contiguous slice of a document's content. Document metadata is
// denormalized onto the chunk so retrieval results can cite without a join.
type Chunk struct {
	ID            string   `json:"id"`
	DocumentID    string   `json:"document_id"`
	ChunkIndex    int      `json:"chunk_index"`
	Content       string   `json:"content"`
	ContentLength int      `json:"content_length"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	SourceFile    string   `json:"source_file"`
	Keywords      []string `json:"keywords"`
	Timestamp     string   `json:"timestamp"`
	ProcessedAt   string   `json:"processed_at"`
}

// ProcessingStats accumulates ingestion counters. It is threaded through
// calls as a value, never held as ambient global state.
type ProcessingStats struct {
	DocumentsProcessed int     `json:"documents_processed"`
	ChunksCreated      int     `json:"chunks_created"`
	TotalCharacters    int     `json:"total_characters"`
	AvgChunkLength     float64 `json:"avg_chunk_length"`
	ProcessingErrors   int     `json:"processing_errors"`
}

type Metadata struct {
	ProcessingDate string          `json:"processing_date"`
	ChunkSize      int             `json:"chunk_size"`
	ChunkOverlap   int             `json:"chunk_overlap"`
	MinChunkLength int             `json:"min_chunk_length"`
	Statistics     ProcessingStats `json:"statistics"`
}

// Corpus is the persisted ingestion output consumed by the pipeline.
type Corpus struct {
	Metadata  Metadata   `json:"metadata"`
	Documents []Document `json:"documents"`
	Chunks    []Chunk    `json:"chunks"`
}

// ChunkID formats the monotonically assigned chunk identifier.
func ChunkID(n int) string {
	return fmt.Sprintf("chunk_%06d", n)
}

// DocumentID formats the document identifier from its ingestion ordinal.
func DocumentID(n int) string {
	return fmt.Sprintf("doc_%06d", n)
}

// Load reads a corpus file written by Processor.Save.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}

	var c Corpus
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse corpus file: %w", err)
	}

	return &c, nil
}

// Save writes the corpus as JSON, creating parent directories as needed.
func (c *Corpus) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal corpus: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write corpus file: %w", err)
	}

	return nil
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
