package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/deep-research/internal/model"
)

const frontMatterDelim = "---"

// RenderMarkdown renders doc as a markdown file with YAML front matter.
func RenderMarkdown(doc *model.Document) ([]byte, error) {
	meta, err := yaml.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "markdown: marshal front matter")
	}
	var b bytes.Buffer
	b.WriteString(frontMatterDelim + "\n")
	b.Write(meta)
	b.WriteString(frontMatterDelim + "\n\n")
	b.WriteString(strings.TrimRight(doc.Content, "\n"))
	b.WriteString("\n")
	return b.Bytes(), nil
}

// ParseMarkdown reads a document rendered by RenderMarkdown. Files without
// front matter become a draft whose title is the first heading.
func ParseMarkdown(data []byte) (*model.Document, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	doc := &model.Document{}
	body := text
	if strings.HasPrefix(text, frontMatterDelim+"\n") {
		rest := text[len(frontMatterDelim)+1:]
		end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
		if end < 0 {
			return nil, eris.New("markdown: unterminated front matter")
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), doc); err != nil {
			return nil, eris.Wrap(err, "markdown: parse front matter")
		}
		body = rest[end+len(frontMatterDelim)+2:]
	}
	doc.Content = strings.TrimSpace(body)

	if doc.Title == "" {
		for _, line := range strings.Split(doc.Content, "\n") {
			if strings.HasPrefix(line, "# ") {
				doc.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
				break
			}
		}
	}
	if doc.Title == "" {
		return nil, eris.New("markdown: document has no title")
	}
	if doc.Status == "" {
		doc.Status = model.DocumentDraft
	}
	return doc, nil
}

// ExportMarkdown writes every stored document under dir at its relative
// path and returns the number written.
func ExportMarkdown(ctx context.Context, s Store, dir string) (int, error) {
	docs, err := s.ListDocuments(ctx, DocumentFilter{Limit: -1})
	if err != nil {
		return 0, err
	}
	written := 0
	for i := range docs {
		doc := &docs[i]
		target := filepath.Join(dir, filepath.Clean("/"+doc.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, eris.Wrapf(err, "markdown: create dir for %s", doc.Path)
		}
		data, err := RenderMarkdown(doc)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, eris.Wrapf(err, "markdown: write %s", target)
		}
		written++
	}
	return written, nil
}
