package evidence

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/pkg/perplexity"
)

const perplexitySystem = "You are a research assistant. Answer with concise, factual findings and cite your sources."

// PerplexitySource asks Perplexity's online models. The grounded answer is
// one evidence item; each cited source follows as a lower-scored item.
type PerplexitySource struct {
	client perplexity.Client
}

// NewPerplexitySource wraps client.
func NewPerplexitySource(client perplexity.Client) *PerplexitySource {
	return &PerplexitySource{client: client}
}

// Name implements Source.
func (s *PerplexitySource) Name() string { return "perplexity" }

// contextSize maps research depth to how much web content Perplexity reads.
func contextSize(depth model.Depth) string {
	switch depth {
	case model.DepthQuick:
		return perplexity.ContextLow
	case model.DepthDeep:
		return perplexity.ContextHigh
	default:
		return perplexity.ContextMedium
	}
}

// Search implements Source.
func (s *PerplexitySource) Search(ctx context.Context, query string, maxResults int, depth model.Depth) ([]model.Evidence, error) {
	req := perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySystem},
			{Role: "user", Content: query},
		},
		WebSearch: &perplexity.WebSearchOptions{SearchContextSize: contextSize(depth)},
	}
	if depth == model.DepthQuick {
		req.SearchRecency = "month"
	}

	resp, err := s.client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: perplexity search %q", query)
	}

	answer := resp.Text()
	if answer == "" {
		return nil, nil
	}

	sources := resp.Sources()
	limit := clampResults(maxResults)
	out := make([]model.Evidence, 0, limit)
	answerEv := model.Evidence{
		Title:   "Perplexity answer: " + query,
		Content: snippet(answer),
		Score:   1,
	}
	if len(sources) > 0 {
		answerEv.URL = sources[0].URL
	}
	out = append(out, answerEv)

	for i, src := range sources {
		if len(out) >= limit {
			break
		}
		content := src.Snippet
		if content == "" {
			content = src.Title
		}
		out = append(out, model.Evidence{
			Title:   src.Title,
			URL:     src.URL,
			Content: snippet(content),
			Score:   0.5 / float64(i+1),
		})
	}
	return out, nil
}
