// Package memory implements vector.Index with a brute-force in-memory store.
// It backs tests and single-node deployments where running Milvus is not
// worth the operational cost; an optional JSON snapshot survives restarts.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cityrag/backend/internal/embedding"
	"github.com/cityrag/backend/internal/vector"
	"github.com/cityrag/backend/pkg/logger"
	"go.uber.org/zap"
)

type Index struct {
	collection   string
	dimension    int
	snapshotPath string

	mu      sync.RWMutex
	entries []vector.Entry
	byID    map[string]int
}

// New creates an index for one collection. dimension fixes the accepted
// vector length. snapshotPath may be empty to keep the index purely in
// memory; when set, an existing snapshot is loaded eagerly.
func New(collection string, dimension int, snapshotPath string) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("memory index: dimension must be positive, got %d", dimension)
	}
	idx := &Index{
		collection:   collection,
		dimension:    dimension,
		snapshotPath: snapshotPath,
		byID:         make(map[string]int),
	}
	if snapshotPath != "" {
		if err := idx.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (m *Index) EnsureCollection(_ context.Context, recreate bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if recreate {
		m.entries = nil
		m.byID = make(map[string]int)
	}
	return nil
}

func (m *Index) Add(_ context.Context, entries []vector.Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, e := range entries {
		if len(e.Vector) != m.dimension {
			return inserted, fmt.Errorf("memory index: entry %q has dimension %d, want %d", e.ID, len(e.Vector), m.dimension)
		}
		if pos, ok := m.byID[e.ID]; ok {
			m.entries[pos] = e
		} else {
			m.byID[e.ID] = len(m.entries)
			m.entries = append(m.entries, e)
		}
		inserted++
	}

	if err := m.persistLocked(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (m *Index) Search(_ context.Context, queryVector []float32, topK int, filters map[string]string) ([]vector.SearchResult, error) {
	if len(queryVector) != m.dimension {
		return nil, fmt.Errorf("memory index: query has dimension %d, want %d", len(queryVector), m.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]vector.Entry, 0, len(m.entries))
	vectors := make([][]float32, 0, len(m.entries))
	for _, e := range m.entries {
		if !matches(e.Metadata, filters) {
			continue
		}
		candidates = append(candidates, e)
		vectors = append(vectors, e.Vector)
	}

	scores := embedding.SimilarityScores(queryVector, vectors)
	results := make([]vector.SearchResult, len(candidates))
	for i, e := range candidates {
		results[i] = vector.SearchResult{
			ID:         e.ID,
			Text:       e.Text,
			Metadata:   e.Metadata,
			Similarity: scores[i],
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *Index) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := m.entries[:0]
	for _, e := range m.entries {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	m.byID = make(map[string]int, len(m.entries))
	for i, e := range m.entries {
		m.byID[e.ID] = i
	}

	return m.persistLocked()
}

func (m *Index) Stats(_ context.Context) (vector.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return vector.Stats{Collection: m.collection, Entries: int64(len(m.entries))}, nil
}

func (m *Index) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked()
}

func matches(md vector.Metadata, filters map[string]string) bool {
	for k, v := range filters {
		switch k {
		case "url":
			if md.URL != v {
				return false
			}
		case "source_file":
			if md.SourceFile != v {
				return false
			}
		default:
			return false
		}
	}
	return true
}

type snapshot struct {
	Collection string         `json:"collection"`
	Dimension  int            `json:"dimension"`
	Entries    []vector.Entry `json:"entries"`
}

func (m *Index) loadSnapshot() error {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memory index: read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("memory index: parse snapshot: %w", err)
	}
	if snap.Dimension != m.dimension {
		logger.Warn("Discarding snapshot with mismatched dimension",
			zap.String("path", m.snapshotPath),
			zap.Int("snapshot_dimension", snap.Dimension),
			zap.Int("expected_dimension", m.dimension))
		return nil
	}

	m.entries = snap.Entries
	m.byID = make(map[string]int, len(m.entries))
	for i, e := range m.entries {
		m.byID[e.ID] = i
	}
	logger.Info("Loaded vector snapshot",
		zap.String("path", m.snapshotPath),
		zap.Int("entries", len(m.entries)))
	return nil
}

func (m *Index) persistLocked() error {
	if m.snapshotPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("memory index: create snapshot dir: %w", err)
	}

	data, err := json.Marshal(snapshot{
		Collection: m.collection,
		Dimension:  m.dimension,
		Entries:    m.entries,
	})
	if err != nil {
		return fmt.Errorf("memory index: encode snapshot: %w", err)
	}

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory index: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		return fmt.Errorf("memory index: rename snapshot: %w", err)
	}
	return nil
}
