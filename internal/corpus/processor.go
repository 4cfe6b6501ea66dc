package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/chunker"
	"github.com/cityrag/backend/pkg/logger"
)

// Processor turns raw scraped records into the typed corpus: standardize,
// clean, chunk, tag keywords, and write the corpus file. Per-record failures
// are logged and counted; processing continues with the remaining records.
type Processor struct {
	splitter       *chunker.Splitter
	chunkSize      int
	chunkOverlap   int
	minChunkLength int
	maxKeywords    int
}

func NewProcessor(chunkSize, chunkOverlap, minChunkLength, maxKeywords int) (*Processor, error) {
	splitter, err := chunker.NewSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Processor{
		splitter:       splitter,
		chunkSize:      chunkSize,
		chunkOverlap:   chunkOverlap,
		minChunkLength: minChunkLength,
		maxKeywords:    maxKeywords,
	}, nil
}

// LoadRawDocuments reads every *.json record under dir and standardizes it
// into a Document. Invalid records are skipped and counted in stats.
func (p *Processor) LoadRawDocuments(dir string, stats *ProcessingStats) ([]Document, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list raw data directory: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no raw documents found in %s", dir)
	}

	logger.Info("Loading raw documents", zap.String("dir", dir), zap.Int("files", len(entries)))

	var documents []Document
	for _, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read raw document", zap.String("file", path), zap.Error(err))
			stats.ProcessingErrors++
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			logger.Error("Malformed raw document", zap.String("file", path), zap.Error(err))
			stats.ProcessingErrors++
			continue
		}

		doc, err := Standardize(raw, filepath.Base(path))
		if err != nil {
			var skip *SkipError
			if errors.As(err, &skip) {
				logger.Warn("Skipping raw document", zap.String("file", skip.SourceFile), zap.String("reason", skip.Reason))
			}
			stats.ProcessingErrors++
			continue
		}

		documents = append(documents, doc)
	}

	logger.Info("Raw documents loaded", zap.Int("count", len(documents)))
	return documents, nil
}

// CreateChunks cleans each document, splits it, drops chunks below the
// minimum length, and assigns monotonically increasing chunk ids.
func (p *Processor) CreateChunks(documents []Document, stats *ProcessingStats) []Chunk {
	var chunks []Chunk
	chunkID := 0

	for docIdx, doc := range documents {
		cleaned := CleanText(doc.Content)
		if len(cleaned) < p.minChunkLength {
			logger.Warn("Document below minimum length, skipping", zap.String("url", doc.URL))
			continue
		}

		for chunkIdx, text := range p.splitter.Split(cleaned) {
			if len(text) < p.minChunkLength {
				continue
			}

			chunks = append(chunks, Chunk{
				ID:            ChunkID(chunkID),
				DocumentID:    DocumentID(docIdx),
				ChunkIndex:    chunkIdx,
				Content:       text,
				ContentLength: len(text),
				URL:           doc.URL,
				Title:         doc.Title,
				Description:   doc.Description,
				SourceFile:    doc.SourceFile,
				Keywords:      ExtractKeywords(text, p.maxKeywords),
				Timestamp:     doc.ScrapedAt,
				ProcessedAt:   now(),
			})
			chunkID++
		}

		stats.DocumentsProcessed++
	}

	stats.ChunksCreated = len(chunks)
	for _, c := range chunks {
		stats.TotalCharacters += c.ContentLength
	}
	if len(chunks) > 0 {
		stats.AvgChunkLength = float64(stats.TotalCharacters) / float64(len(chunks))
	}

	logger.Info("Chunks created",
		zap.Int("documents", len(documents)),
		zap.Int("chunks", len(chunks)),
	)

	return chunks
}

// ProcessDocument chunks a single already-standardized document, for
// incremental ingestion after the initial corpus build.
func (p *Processor) ProcessDocument(doc Document, firstChunkID, docOrdinal int) []Chunk {
	stats := ProcessingStats{}
	chunks := p.CreateChunks([]Document{doc}, &stats)
	for i := range chunks {
		chunks[i].ID = ChunkID(firstChunkID + i)
		chunks[i].DocumentID = DocumentID(docOrdinal)
	}
	return chunks
}

// Process runs the full pipeline over a raw data directory and returns the
// assembled corpus together with its statistics.
func (p *Processor) Process(rawDir string) (*Corpus, error) {
	stats := ProcessingStats{}

	documents, err := p.LoadRawDocuments(rawDir, &stats)
	if err != nil {
		return nil, err
	}

	chunks := p.CreateChunks(documents, &stats)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %d documents", len(documents))
	}

	return &Corpus{
		Metadata: Metadata{
			ProcessingDate: now(),
			ChunkSize:      p.chunkSize,
			ChunkOverlap:   p.chunkOverlap,
			MinChunkLength: p.minChunkLength,
			Statistics:     stats,
		},
		Documents: documents,
		Chunks:    chunks,
	}, nil
}

// ValidationReport summarizes chunk quality after processing.
type ValidationReport struct {
	TotalChunks    int      `json:"total_chunks"`
	UniqueSources  int      `json:"unique_sources"`
	AvgChunkLength float64  `json:"avg_chunk_length"`
	MinChunkLength int      `json:"min_chunk_length"`
	MaxChunkLength int      `json:"max_chunk_length"`
	ChunksBelowMin int      `json:"chunks_below_min"`
	ChunksAboveMax int      `json:"chunks_above_max"`
	Issues         []string `json:"issues"`
	Passed         bool     `json:"passed"`
}

// Validate checks processed chunks against the configured length policy.
func (p *Processor) Validate(chunks []Chunk) ValidationReport {
	report := ValidationReport{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		report.Issues = append(report.Issues, "no chunks to validate")
		return report
	}

	sources := map[string]struct{}{}
	report.MinChunkLength = chunks[0].ContentLength
	total := 0

	for _, c := range chunks {
		sources[c.URL] = struct{}{}
		total += c.ContentLength
		if c.ContentLength < report.MinChunkLength {
			report.MinChunkLength = c.ContentLength
		}
		if c.ContentLength > report.MaxChunkLength {
			report.MaxChunkLength = c.ContentLength
		}
		if c.ContentLength < p.minChunkLength {
			report.ChunksBelowMin++
		}
		if c.ContentLength > p.chunkSize+p.chunkSize/2 {
			report.ChunksAboveMax++
		}
	}

	report.UniqueSources = len(sources)
	report.AvgChunkLength = float64(total) / float64(len(chunks))

	if report.ChunksBelowMin > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d chunks below minimum length", report.ChunksBelowMin))
	}
	if report.ChunksAboveMax > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d chunks above expected maximum", report.ChunksAboveMax))
	}
	report.Passed = len(report.Issues) == 0

	return report
}
