package similarity

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be been but by can could did do does for from had
		has have how i if in into is it its may more most no not of on or our should so such than that the
		their them then there these they this those to was we were what when where which while who why will
		with would you your about also any each other over under very`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether w (lowercase) carries no topical signal.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Words splits text into lowercase letter/digit runs.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContentWords returns the distinct non-stop-words of text.
func ContentWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range Words(text) {
		if len(w) < 2 || IsStopWord(w) {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
