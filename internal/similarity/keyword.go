package similarity

import (
	"context"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
)

// keywordDoc is the shape stored in bleve.
type keywordDoc struct {
	Title   string `json:"title"`
	Topics  string `json:"topics"`
	Purpose string `json:"purpose"`
	Content string `json:"content"`
}

// KeywordIndex is a bleve full-text index over documents.
type KeywordIndex struct {
	index bleve.Index
}

func keywordMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, field := range []string{"title", "topics", "purpose", "content"} {
		doc.AddFieldMappingsAt(field, text)
	}
	im.DefaultMapping = doc
	return im
}

// NewKeywordIndex opens the index at path, creating it if needed. An empty
// path builds an in-memory index.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(keywordMapping())
		if err != nil {
			return nil, eris.Wrap(err, "keyword: create memory index")
		}
		return &KeywordIndex{index: idx}, nil
	}

	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "keyword: open %s", path)
		}
		return &KeywordIndex{index: idx}, nil
	}

	idx, err := bleve.New(path, keywordMapping())
	if err != nil {
		return nil, eris.Wrapf(err, "keyword: create %s", path)
	}
	return &KeywordIndex{index: idx}, nil
}

// Index adds or replaces doc.
func (k *KeywordIndex) Index(doc *model.Document) error {
	return k.index.Index(doc.ID, keywordDoc{
		Title:   doc.Title,
		Topics:  strings.Join(doc.Topics, " "),
		Purpose: doc.Purpose,
		Content: doc.Content,
	})
}

// Delete removes id.
func (k *KeywordIndex) Delete(id string) error {
	return k.index.Delete(id)
}

// Search runs a match query and returns up to limit hits.
func (k *KeywordIndex) Search(_ context.Context, query string, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	req.Fields = []string{"title"}

	res, err := k.index.Search(req)
	if err != nil {
		return nil, eris.Wrap(err, "keyword: search")
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if title, ok := h.Fields["title"].(string); ok {
			hit.Title = title
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (k *KeywordIndex) Count() (uint64, error) {
	return k.index.DocCount()
}

// Close releases the index.
func (k *KeywordIndex) Close() error {
	return k.index.Close()
}
