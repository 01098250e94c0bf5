package reconcile

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/similarity"
)

// foldKey normalises s for case-insensitive comparison. Casers carry state,
// so each call gets its own.
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func foldSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := foldKey(v); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// TopicOverlap is the case-insensitive Jaccard overlap of two topic lists.
func TopicOverlap(a, b []string) float64 {
	return jaccard(foldSet(a), foldSet(b))
}

// WordOverlap is the Jaccard overlap of the content words of two texts.
// Stop words are excluded.
func WordOverlap(a, b string) float64 {
	return jaccard(similarity.ContentWords(a), similarity.ContentWords(b))
}

// QuestionOverlap measures how well the incoming query context and
// questions line up with a candidate's questions and purpose, as the overlap
// coefficient of their content words.
func QuestionOverlap(queryContext string, questions []string, candidate *model.Document) float64 {
	incoming := similarity.ContentWords(queryContext + " " + strings.Join(questions, " "))
	existing := similarity.ContentWords(candidate.Purpose + " " + strings.Join(candidate.Questions, " "))
	if len(incoming) == 0 || len(existing) == 0 {
		return 0
	}
	inter := 0
	for k := range incoming {
		if _, ok := existing[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(min(len(incoming), len(existing)))
}
