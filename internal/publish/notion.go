// Package publish mirrors research documents into a Notion database.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/pkg/notion"
)

// Property names expected in the target database.
const (
	PropTitle      = "Name"
	PropDocumentID = "Document ID"
	PropStatus     = "Status"
	PropConfidence = "Confidence"
	PropVersion    = "Version"
	PropTopics     = "Topics"
	PropSources    = "Sources"
	PropUpdated    = "Last Updated"
)

// Notion accepts at most this many children per request.
const maxBlocksPerRequest = 100

// Result describes one publish.
type Result struct {
	PageID  string `json:"page_id"`
	Created bool   `json:"created"`
	Blocks  int    `json:"blocks"`
}

// Publisher writes documents to a Notion database, one page per document.
// Pages are matched on the Document ID property. Republishing updates the
// page properties and appends the new version's content under a version
// heading.
type Publisher struct {
	client     notion.Client
	databaseID string
	log        *zap.Logger
}

// New creates a Publisher for databaseID.
func New(client notion.Client, databaseID string) *Publisher {
	return &Publisher{
		client:     client,
		databaseID: databaseID,
		log:        zap.L().Named("publish"),
	}
}

// Publish creates or updates the page for doc.
func (p *Publisher) Publish(ctx context.Context, doc *model.Document) (*Result, error) {
	if doc == nil || doc.ID == "" {
		return nil, eris.New("publish: document id is required")
	}

	pages, err := notion.FindByText(ctx, p.client, p.databaseID, PropDocumentID, doc.ID)
	if err != nil {
		return nil, eris.Wrap(err, "publish: lookup")
	}
	blocks := Blocks(doc.Content)

	if len(pages) == 0 {
		return p.create(ctx, doc, blocks)
	}
	if len(pages) > 1 {
		p.log.Warn("multiple pages for document, updating the first",
			zap.String("document_id", doc.ID),
			zap.Int("pages", len(pages)),
		)
	}
	return p.update(ctx, string(pages[0].ID), doc, blocks)
}

func (p *Publisher) create(ctx context.Context, doc *model.Document, blocks []notionapi.Block) (*Result, error) {
	first, rest := splitBlocks(blocks)
	page, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(p.databaseID),
		},
		Properties: properties(doc, true),
		Children:   first,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "publish: create page for %s", doc.ID)
	}

	pageID := string(page.ID)
	if err := p.appendChunks(ctx, pageID, rest); err != nil {
		return nil, err
	}

	p.log.Info("published document",
		zap.String("document_id", doc.ID),
		zap.String("page_id", pageID),
		zap.Int("blocks", len(blocks)),
	)
	return &Result{PageID: pageID, Created: true, Blocks: len(blocks)}, nil
}

func (p *Publisher) update(ctx context.Context, pageID string, doc *model.Document, blocks []notionapi.Block) (*Result, error) {
	_, err := p.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
		Properties: properties(doc, false),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "publish: update page for %s", doc.ID)
	}

	revision := append([]notionapi.Block{
		&notionapi.DividerBlock{BasicBlock: basic(notionapi.BlockTypeDivider)},
		&notionapi.Heading2Block{
			BasicBlock: basic(notionapi.BlockTypeHeading2),
			Heading2:   notionapi.Heading{RichText: richText(fmt.Sprintf("Version %d", doc.Version))},
		},
	}, blocks...)
	if err := p.appendChunks(ctx, pageID, revision); err != nil {
		return nil, err
	}

	p.log.Info("republished document",
		zap.String("document_id", doc.ID),
		zap.String("page_id", pageID),
		zap.Int("version", doc.Version),
	)
	return &Result{PageID: pageID, Blocks: len(revision)}, nil
}

func (p *Publisher) appendChunks(ctx context.Context, pageID string, blocks []notionapi.Block) error {
	for len(blocks) > 0 {
		var chunk []notionapi.Block
		chunk, blocks = splitBlocks(blocks)
		if err := p.client.AppendBlocks(ctx, pageID, chunk); err != nil {
			return eris.Wrapf(err, "publish: append content to %s", pageID)
		}
	}
	return nil
}

func splitBlocks(blocks []notionapi.Block) (head, tail []notionapi.Block) {
	if len(blocks) <= maxBlocksPerRequest {
		return blocks, nil
	}
	return blocks[:maxBlocksPerRequest], blocks[maxBlocksPerRequest:]
}

// properties maps document metadata onto database columns. The title and
// document id are only written on creation.
func properties(doc *model.Document, create bool) notionapi.Properties {
	now := notionapi.Date(time.Now())
	topics := make([]notionapi.Option, 0, len(doc.Topics))
	for _, t := range doc.Topics {
		topics = append(topics, notionapi.Option{Name: t})
	}

	props := notionapi.Properties{
		PropStatus:     notionapi.SelectProperty{Select: notionapi.Option{Name: string(doc.Status)}},
		PropConfidence: notionapi.NumberProperty{Number: doc.Confidence},
		PropVersion:    notionapi.NumberProperty{Number: float64(doc.Version)},
		PropSources:    notionapi.NumberProperty{Number: float64(doc.SourceCount)},
		PropTopics:     notionapi.MultiSelectProperty{MultiSelect: topics},
		PropUpdated: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}
	if create {
		props[PropTitle] = notionapi.TitleProperty{Title: richText(doc.Title)}
		props[PropDocumentID] = notionapi.RichTextProperty{RichText: richText(doc.ID)}
	}
	return props
}
