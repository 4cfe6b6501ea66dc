// Package milvus implements vector.Index on a Milvus (or Zilliz Cloud)
// collection using cosine similarity.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/vector"
	"github.com/cityrag/backend/pkg/logger"
)

const insertBatchSize = 1000

type Index struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func New(endpoint, collectionName string, vectorDim int) (*Index, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Index{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Index) Close() error {
	return m.client.Close()
}

func (m *Index) EnsureCollection(ctx context.Context, recreate bool) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		if !recreate {
			logger.Info("Collection already exists", zap.String("collection", m.collectionName))
			return nil
		}
		if err := m.client.DropCollection(ctx, m.collectionName); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
		logger.Info("Dropped existing collection", zap.String("collection", m.collectionName))
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "City service page chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "url",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "source_file",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

// Add inserts entries in batches and returns how many made it in before any
// failure. Already committed batches stay in the collection.
func (m *Index) Add(ctx context.Context, entries []vector.Entry) (int, error) {
	inserted := 0
	for start := 0; start < len(entries); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := m.insertBatch(ctx, entries[start:end]); err != nil {
			return inserted, err
		}
		inserted += end - start
	}

	if inserted > 0 {
		if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
			return inserted, fmt.Errorf("failed to flush: %w", err)
		}
		logger.Info("Entries inserted into vector DB", zap.Int("count", inserted))
	}
	return inserted, nil
}

func (m *Index) insertBatch(ctx context.Context, batch []vector.Entry) error {
	ids := make([]string, len(batch))
	embeddings := make([][]float32, len(batch))
	texts := make([]string, len(batch))
	urls := make([]string, len(batch))
	sourceFiles := make([]string, len(batch))
	chunkIndexes := make([]int64, len(batch))

	for i, e := range batch {
		if len(e.Vector) != m.vectorDim {
			return fmt.Errorf("entry %q has dimension %d, want %d", e.ID, len(e.Vector), m.vectorDim)
		}
		ids[i] = e.ID
		embeddings[i] = e.Vector
		texts[i] = e.Text
		urls[i] = e.Metadata.URL
		sourceFiles[i] = e.Metadata.SourceFile
		chunkIndexes[i] = int64(e.Metadata.ChunkIndex)
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("url", urls),
		entity.NewColumnVarChar("source_file", sourceFiles),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entries: %w", err)
	}
	return nil
}

func (m *Index) Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]vector.SearchResult, error) {
	expr := buildFilterExpr(filters)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "text", "url", "source_file", "chunk_index"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.SearchResult, 0)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		urlCol := sr.Fields.GetColumn("url")
		sourceCol := sr.Fields.GetColumn("source_file")
		indexCol := sr.Fields.GetColumn("chunk_index")

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := idCol.Get(i)
			text, _ := textCol.Get(i)
			url, _ := urlCol.Get(i)
			sourceFile, _ := sourceCol.Get(i)
			chunkIndex, _ := indexCol.Get(i)

			results = append(results, vector.SearchResult{
				ID:   id.(string),
				Text: text.(string),
				Metadata: vector.Metadata{
					URL:        url.(string),
					SourceFile: sourceFile.(string),
					ChunkIndex: int(chunkIndex.(int64)),
				},
				// With the COSINE metric Milvus scores are already
				// similarities in [-1, 1], higher is closer.
				Similarity: float64(sr.Scores[i]),
			})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("filters", expr),
	)

	return results, nil
}

func (m *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pks := entity.NewColumnVarChar("chunk_id", ids)
	if err := m.client.DeleteByPks(ctx, m.collectionName, "", pks); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	return nil
}

func (m *Index) Stats(ctx context.Context) (vector.Stats, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collectionName)
	if err != nil {
		return vector.Stats{}, fmt.Errorf("failed to get collection statistics: %w", err)
	}

	var rows int64
	if raw, ok := stats["row_count"]; ok {
		rows, _ = strconv.ParseInt(raw, 10, 64)
	}

	return vector.Stats{Collection: m.collectionName, Entries: rows}, nil
}

func buildFilterExpr(filters map[string]string) string {
	clauses := make([]string, 0, len(filters))
	if url, ok := filters["url"]; ok && url != "" {
		clauses = append(clauses, fmt.Sprintf(`url == "%s"`, url))
	}
	if sourceFile, ok := filters["source_file"]; ok && sourceFile != "" {
		clauses = append(clauses, fmt.Sprintf(`source_file == "%s"`, sourceFile))
	}
	return strings.Join(clauses, " && ")
}
