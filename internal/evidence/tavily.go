package evidence

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/pkg/tavily"
)

// TavilySource searches through the Tavily API.
type TavilySource struct {
	client tavily.Client
}

// NewTavilySource wraps client.
func NewTavilySource(client tavily.Client) *TavilySource {
	return &TavilySource{client: client}
}

// Name implements Source.
func (s *TavilySource) Name() string { return "tavily" }

// Search implements Source. Deep sessions use Tavily's advanced depth.
func (s *TavilySource) Search(ctx context.Context, query string, maxResults int, depth model.Depth) ([]model.Evidence, error) {
	req := tavily.SearchRequest{
		Query:      query,
		MaxResults: clampResults(maxResults),
	}
	if depth == model.DepthDeep {
		req.SearchDepth = "advanced"
	}

	resp, err := s.client.Search(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: tavily search %q", query)
	}

	out := make([]model.Evidence, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, model.Evidence{
			Title:   r.Title,
			URL:     r.URL,
			Content: snippet(r.Content),
			Score:   r.Score,
		})
	}
	return out, nil
}
