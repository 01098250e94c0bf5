package evidence

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/pkg/jina"
)

// JinaSource searches through the Jina search API. Jina does not score
// results, so scores decay with rank.
type JinaSource struct {
	client jina.Client
}

// NewJinaSource wraps client.
func NewJinaSource(client jina.Client) *JinaSource {
	return &JinaSource{client: client}
}

// Name implements Source.
func (s *JinaSource) Name() string { return "jina" }

// Search implements Source.
func (s *JinaSource) Search(ctx context.Context, query string, maxResults int, _ model.Depth) ([]model.Evidence, error) {
	resp, err := s.client.Search(ctx, query, jina.WithCount(clampResults(maxResults)))
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: jina search %q", query)
	}

	out := make([]model.Evidence, 0, len(resp.Data))
	for i, r := range resp.Data {
		content := r.Content
		if content == "" {
			content = r.Description
		}
		out = append(out, model.Evidence{
			Title:   r.Title,
			URL:     r.URL,
			Content: snippet(content),
			Score:   1 / float64(i+1),
		})
	}
	return out, nil
}
