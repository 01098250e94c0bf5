package similarity

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
)

type entry struct {
	Title  string
	Topics []string
	Vector []float32
}

// VectorIndex is a brute-force in-memory cosine index. It is small enough
// for a research library of a few thousand documents.
type VectorIndex struct {
	embedder Embedder

	mu      sync.RWMutex
	entries map[string]entry
}

var _ Index = (*VectorIndex)(nil)

// NewVectorIndex creates an empty index using embedder.
func NewVectorIndex(embedder Embedder) *VectorIndex {
	return &VectorIndex{embedder: embedder, entries: make(map[string]entry)}
}

// Len returns the number of indexed documents.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// SearchSimilar embeds text and returns up to limit documents scoring at
// least threshold, best first.
func (v *VectorIndex) SearchSimilar(ctx context.Context, text string, threshold float64, limit int) ([]Hit, error) {
	query, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, eris.Wrap(err, "similarity: embed query")
	}

	v.mu.RLock()
	hits := make([]Hit, 0, len(v.entries))
	for id, e := range v.entries {
		score := Cosine(query, e.Vector)
		if score < threshold {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Title: e.Title, Topics: slices.Clone(e.Topics)})
	}
	v.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// AddDocument indexes doc, replacing any previous entry with the same ID.
func (v *VectorIndex) AddDocument(ctx context.Context, doc *model.Document) error {
	if doc == nil || doc.ID == "" {
		return eris.New("similarity: document id is required")
	}
	vec, err := v.embedder.Embed(ctx, DocumentText(doc))
	if err != nil {
		return eris.Wrapf(err, "similarity: embed document %s", doc.ID)
	}

	v.mu.Lock()
	v.entries[doc.ID] = entry{Title: doc.Title, Topics: slices.Clone(doc.Topics), Vector: vec}
	v.mu.Unlock()
	return nil
}

// UpdateDocument re-embeds doc.
func (v *VectorIndex) UpdateDocument(ctx context.Context, doc *model.Document) error {
	return v.AddDocument(ctx, doc)
}

// DeleteDocument removes id. Unknown IDs are ignored.
func (v *VectorIndex) DeleteDocument(_ context.Context, id string) error {
	v.mu.Lock()
	delete(v.entries, id)
	v.mu.Unlock()
	return nil
}

// Save writes the index to path, creating parent directories.
func (v *VectorIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "similarity: create index dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "similarity: create index file")
	}
	defer f.Close() //nolint:errcheck

	v.mu.RLock()
	defer v.mu.RUnlock()
	return eris.Wrap(gob.NewEncoder(f).Encode(v.entries), "similarity: encode index")
}

// Load replaces the index contents with the file at path. A missing file
// leaves the index empty.
func (v *VectorIndex) Load(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "similarity: open index file")
	}
	defer f.Close() //nolint:errcheck

	entries := make(map[string]entry)
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return eris.Wrap(err, "similarity: decode index")
	}

	v.mu.Lock()
	v.entries = entries
	v.mu.Unlock()
	return nil
}
