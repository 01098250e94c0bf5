package publish

import (
	"strings"
	"unicode"

	"github.com/jomei/notionapi"
)

// Notion rejects rich-text objects longer than this.
const maxRichTextRunes = 2000

// Blocks converts document markdown into Notion blocks. Headings, bullet
// and numbered list items map to their block types. Consecutive text
// lines are joined into one paragraph. Anything else is plain text.
func Blocks(markdown string) []notionapi.Block {
	var (
		blocks []notionapi.Block
		para   []string
	)
	flush := func() {
		if len(para) == 0 {
			return
		}
		blocks = append(blocks, paragraph(strings.Join(para, " ")))
		para = nil
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "### "):
			flush()
			blocks = append(blocks, &notionapi.Heading3Block{
				BasicBlock: basic(notionapi.BlockTypeHeading3),
				Heading3:   notionapi.Heading{RichText: richText(line[4:])},
			})
		case strings.HasPrefix(line, "## "):
			flush()
			blocks = append(blocks, &notionapi.Heading2Block{
				BasicBlock: basic(notionapi.BlockTypeHeading2),
				Heading2:   notionapi.Heading{RichText: richText(line[3:])},
			})
		case strings.HasPrefix(line, "# "):
			flush()
			blocks = append(blocks, &notionapi.Heading1Block{
				BasicBlock: basic(notionapi.BlockTypeHeading1),
				Heading1:   notionapi.Heading{RichText: richText(line[2:])},
			})
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			flush()
			blocks = append(blocks, bullet(line[2:]))
		default:
			if text, ok := numbered(line); ok {
				flush()
				blocks = append(blocks, &notionapi.NumberedListItemBlock{
					BasicBlock:       basic(notionapi.BlockTypeNumberedListItem),
					NumberedListItem: notionapi.ListItem{RichText: richText(text)},
				})
				continue
			}
			para = append(para, line)
		}
	}
	flush()
	return blocks
}

func basic(t notionapi.BlockType) notionapi.BasicBlock {
	return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: t}
}

func paragraph(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: basic(notionapi.BlockTypeParagraph),
		Paragraph:  notionapi.Paragraph{RichText: richText(text)},
	}
}

func bullet(text string) notionapi.Block {
	return &notionapi.BulletedListItemBlock{
		BasicBlock:       basic(notionapi.BlockTypeBulletedListItem),
		BulletedListItem: notionapi.ListItem{RichText: richText(text)},
	}
}

// numbered recognises "12. text" list items.
func numbered(line string) (string, bool) {
	i := strings.IndexFunc(line, func(r rune) bool { return !unicode.IsDigit(r) })
	if i <= 0 || !strings.HasPrefix(line[i:], ". ") {
		return "", false
	}
	return line[i+2:], true
}

// richText splits text into chunks Notion will accept.
func richText(text string) []notionapi.RichText {
	runes := []rune(text)
	out := make([]notionapi.RichText, 0, len(runes)/maxRichTextRunes+1)
	for len(runes) > 0 {
		n := min(len(runes), maxRichTextRunes)
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[:n])},
		})
		runes = runes[n:]
	}
	return out
}
