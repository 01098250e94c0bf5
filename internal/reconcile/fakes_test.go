package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/similarity"
	"github.com/sells-group/deep-research/internal/store"
)

// memStore is an in-memory DocumentSource and DocumentWriter with
// optimistic versioning.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]*model.Document
	conflicts int
	updates   int
	messages  []string
}

func newMemStore(docs ...*model.Document) *memStore {
	m := &memStore{docs: make(map[string]*model.Document)}
	for _, d := range docs {
		cp := d.Clone()
		if cp.Version == 0 {
			cp.Version = 1
		}
		m.docs[cp.ID] = cp
	}
	return m
}

func (m *memStore) GetDocument(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "get document %s", id)
	}
	return d.Clone(), nil
}

func (m *memStore) ListDocuments(_ context.Context, _ store.DocumentFilter) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, *d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateDocument(_ context.Context, doc *model.Document, message string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := doc.Clone()
	cp.Version = 1
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.docs[cp.ID] = cp
	m.messages = append(m.messages, message)
	return cp.Clone(), nil
}

func (m *memStore) UpdateDocument(_ context.Context, doc *model.Document, expectedVersion int, message string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.conflicts > 0 {
		m.conflicts--
		return nil, eris.Wrapf(store.ErrVersionConflict, "update %s", doc.ID)
	}
	cur, ok := m.docs[doc.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}
	cp := doc.Clone()
	cp.Version = expectedVersion + 1
	m.docs[cp.ID] = cp
	m.messages = append(m.messages, message)
	return cp.Clone(), nil
}

// failingIndex fails every search.
type failingIndex struct{}

func (failingIndex) SearchSimilar(context.Context, string, float64, int) ([]similarity.Hit, error) {
	return nil, eris.New("index offline")
}

func (failingIndex) AddDocument(context.Context, *model.Document) error    { return nil }
func (failingIndex) UpdateDocument(context.Context, *model.Document) error { return nil }
func (failingIndex) DeleteDocument(context.Context, string) error          { return nil }
