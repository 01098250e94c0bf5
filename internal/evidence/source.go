// Package evidence adapts web search providers to a single Source contract
// used by the research controller.
package evidence

import (
	"context"
	"strings"

	"github.com/sells-group/deep-research/internal/model"
)

// Source searches the web for evidence on a query. Implementations are
// stateless and safe for concurrent use; each call is billable.
type Source interface {
	Search(ctx context.Context, query string, maxResults int, depth model.Depth) ([]model.Evidence, error)
	Name() string
}

// snippetLimit caps evidence content so prompts stay bounded.
const snippetLimit = 2000

func snippet(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= snippetLimit {
		return s
	}
	return string(r[:snippetLimit])
}

func clampResults(n int) int {
	switch {
	case n <= 0:
		return 5
	case n > 20:
		return 20
	default:
		return n
	}
}
