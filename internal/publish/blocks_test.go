package publish

import (
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocks(t *testing.T) {
	t.Parallel()
	md := strings.Join([]string{
		"# Tidal energy",
		"",
		"## Summary",
		"Tidal turbines convert",
		"ocean currents.",
		"",
		"- first finding",
		"* second finding",
		"### Sources",
		"1. Market report",
		"12. Interview notes",
		"1.5 percent is not a list item",
	}, "\n")

	blocks := Blocks(md)
	types := make([]notionapi.BlockType, 0, len(blocks))
	for _, b := range blocks {
		types = append(types, b.GetType())
	}
	assert.Equal(t, []notionapi.BlockType{
		notionapi.BlockTypeHeading1,
		notionapi.BlockTypeHeading2,
		notionapi.BlockTypeParagraph,
		notionapi.BlockTypeBulletedListItem,
		notionapi.BlockTypeBulletedListItem,
		notionapi.BlockTypeHeading3,
		notionapi.BlockTypeNumberedListItem,
		notionapi.BlockTypeNumberedListItem,
		notionapi.BlockTypeParagraph,
	}, types)

	para, ok := blocks[2].(*notionapi.ParagraphBlock)
	require.True(t, ok)
	require.Len(t, para.Paragraph.RichText, 1)
	assert.Equal(t, "Tidal turbines convert ocean currents.", para.Paragraph.RichText[0].Text.Content)

	item, ok := blocks[7].(*notionapi.NumberedListItemBlock)
	require.True(t, ok)
	assert.Equal(t, "Interview notes", item.NumberedListItem.RichText[0].Text.Content)
}

func TestBlocks_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Blocks(""))
	assert.Empty(t, Blocks("\n\n  \n"))
}

func TestRichText_Chunks(t *testing.T) {
	t.Parallel()
	rt := richText(strings.Repeat("é", maxRichTextRunes*2+5))
	require.Len(t, rt, 3)
	assert.Len(t, []rune(rt[0].Text.Content), maxRichTextRunes)
	assert.Len(t, []rune(rt[2].Text.Content), 5)
}

func TestNumbered(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"3. three", "three", true},
		{"10. ten", "ten", true},
		{". none", "", false},
		{"3.three", "", false},
		{"three", "", false},
	}
	for _, tt := range tests {
		got, ok := numbered(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
