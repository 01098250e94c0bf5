// Package store persists research documents with their version history and
// archives completed research sessions.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
)

var (
	// ErrNotFound is returned when a document or session does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrVersionConflict is returned when an update's expected version does
	// not match the stored version.
	ErrVersionConflict = eris.New("store: version conflict")
)

// DocumentFilter specifies criteria for listing documents.
type DocumentFilter struct {
	Status model.DocumentStatus `json:"status,omitempty"`
	Topic  string               `json:"topic,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// SessionFilter specifies criteria for listing archived sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for documents and sessions.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc *model.Document, message string) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	GetDocumentByPath(ctx context.Context, path string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)
	UpdateDocument(ctx context.Context, doc *model.Document, expectedVersion int, message string) (*model.Document, error)
	ListVersions(ctx context.Context, documentID string) ([]model.DocumentVersion, error)

	// Sessions
	SaveSession(ctx context.Context, session *model.ResearchSession) error
	GetSession(ctx context.Context, id string) (*model.ResearchSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.ResearchSession, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// limit returns the page size. A negative Limit lists everything.
func (f DocumentFilter) limit() int {
	switch {
	case f.Limit < 0:
		return 0
	case f.Limit == 0:
		return defaultListLimit
	}
	return f.Limit
}

// limit returns the page size. A negative Limit lists everything and is
// passed through as -1, which SQLite reads as "no limit".
func (f SessionFilter) limit() int {
	switch {
	case f.Limit < 0:
		return -1
	case f.Limit == 0:
		return defaultListLimit
	}
	return f.Limit
}

// prepareNew fills the identity fields of a document about to be created and
// returns a copy.
func prepareNew(doc *model.Document) (*model.Document, error) {
	if doc == nil {
		return nil, eris.New("store: document is required")
	}
	if strings.TrimSpace(doc.Title) == "" {
		return nil, eris.New("store: document title is required")
	}
	out := doc.Clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Path == "" {
		out.Path = out.ID + ".md"
	}
	if out.Status == "" {
		out.Status = model.DocumentDraft
	}
	now := time.Now().UTC()
	out.Version = 1
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

// prepareUpdate validates an update and returns the copy that will be
// written at expectedVersion+1.
func prepareUpdate(doc *model.Document, expectedVersion int) (*model.Document, error) {
	if doc == nil || doc.ID == "" {
		return nil, eris.New("store: document id is required")
	}
	if expectedVersion < 1 {
		return nil, eris.Errorf("store: invalid expected version %d", expectedVersion)
	}
	out := doc.Clone()
	out.Version = expectedVersion + 1
	out.UpdatedAt = time.Now().UTC()
	return out, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal list")
	}
	return string(b), nil
}

func decodeList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal list")
	}
	return out, nil
}

// matchesTopic reports whether any topic equals want, ignoring case.
func matchesTopic(topics []string, want string) bool {
	if want == "" {
		return true
	}
	for _, t := range topics {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
