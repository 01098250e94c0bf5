// Package similarity provides nearest-neighbour search over research
// documents: an in-memory vector index for reconciliation and a bleve
// full-text index for keyword lookup.
package similarity

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
)

// Hit is one search result.
type Hit struct {
	ID     string   `json:"id"`
	Score  float64  `json:"score"`
	Title  string   `json:"title,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

// Index is the similarity collaborator used by reconciliation.
type Index interface {
	SearchSimilar(ctx context.Context, text string, threshold float64, limit int) ([]Hit, error)
	AddDocument(ctx context.Context, doc *model.Document) error
	UpdateDocument(ctx context.Context, doc *model.Document) error
	DeleteDocument(ctx context.Context, id string) error
}

// DocumentText is the text that represents a document in the indexes.
func DocumentText(doc *model.Document) string {
	var b strings.Builder
	b.WriteString(doc.Title)
	b.WriteString("\n")
	b.WriteString(strings.Join(doc.Topics, " "))
	b.WriteString("\n")
	b.WriteString(doc.Content)
	return b.String()
}

// Combined keeps the vector and keyword indexes in step. Similarity queries
// go to the vector index.
type Combined struct {
	Vector  *VectorIndex
	Keyword *KeywordIndex
}

var _ Index = (*Combined)(nil)

// SearchSimilar delegates to the vector index.
func (c *Combined) SearchSimilar(ctx context.Context, text string, threshold float64, limit int) ([]Hit, error) {
	return c.Vector.SearchSimilar(ctx, text, threshold, limit)
}

// AddDocument indexes doc in both indexes.
func (c *Combined) AddDocument(ctx context.Context, doc *model.Document) error {
	if err := c.Vector.AddDocument(ctx, doc); err != nil {
		return err
	}
	if c.Keyword == nil {
		return nil
	}
	return eris.Wrap(c.Keyword.Index(doc), "similarity: keyword add")
}

// UpdateDocument reindexes doc in both indexes.
func (c *Combined) UpdateDocument(ctx context.Context, doc *model.Document) error {
	if err := c.Vector.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	if c.Keyword == nil {
		return nil
	}
	return eris.Wrap(c.Keyword.Index(doc), "similarity: keyword update")
}

// DeleteDocument removes id from both indexes.
func (c *Combined) DeleteDocument(ctx context.Context, id string) error {
	if err := c.Vector.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if c.Keyword == nil {
		return nil
	}
	return eris.Wrap(c.Keyword.Delete(id), "similarity: keyword delete")
}
