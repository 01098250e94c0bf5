package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current DocumentStatus
		next    DocumentStatus
		want    DocumentStatus
	}{
		{"forward", DocumentDraft, DocumentValidating, DocumentValidating},
		{"no regression", DocumentReviewed, DocumentResearching, DocumentReviewed},
		{"same", DocumentResearching, DocumentResearching, DocumentResearching},
		{"deprecated overrides", DocumentReviewed, DocumentDeprecated, DocumentDeprecated},
		{"deprecated is terminal", DocumentDeprecated, DocumentReviewed, DocumentDeprecated},
		{"empty next keeps current", DocumentValidating, "", DocumentValidating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AdvanceStatus(tt.current, tt.next))
		})
	}
}

func TestDocumentClone(t *testing.T) {
	t.Parallel()

	orig := &Document{ID: "d1", Topics: []string{"AI"}, Questions: []string{"why?"}}
	cp := orig.Clone()
	cp.Topics[0] = "ML"
	cp.Questions = append(cp.Questions, "how?")
	cp.Title = "changed"

	assert.Equal(t, "AI", orig.Topics[0])
	assert.Len(t, orig.Questions, 1)
	assert.Empty(t, orig.Title)

	var nilDoc *Document
	assert.Nil(t, nilDoc.Clone())
}
