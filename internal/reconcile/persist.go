package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/store"
)

// DocumentWriter is the write side of the document store.
type DocumentWriter interface {
	CreateDocument(ctx context.Context, doc *model.Document, message string) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateDocument(ctx context.Context, doc *model.Document, expectedVersion int, message string) (*model.Document, error)
}

// Findings are the synthesized results of a research session.
type Findings struct {
	SessionID    string
	QueryContext string
	Content      string
	Meta         model.DocumentMeta
}

// Outcome reports what Persist did.
type Outcome struct {
	Decision *Decision          `json:"decision"`
	Document *model.Document    `json:"document"`
	Report   *model.MergeReport `json:"report,omitempty"`
}

// Persist decides how findings join the library, writes the result and
// refreshes the similarity index. An update that loses a version race is
// retried once against the reloaded document.
func (e *Engine) Persist(ctx context.Context, w DocumentWriter, f Findings) (*Outcome, error) {
	log := zap.L().With(zap.String("session_id", f.SessionID))

	decision, err := e.Decide(ctx, f.Content, f.Meta, f.QueryContext)
	if err != nil {
		return nil, err
	}
	log.Info("reconcile: decided",
		zap.String("operation", string(decision.Operation)),
		zap.Float64("confidence", decision.Confidence),
		zap.String("reason", decision.Reason),
	)

	out := &Outcome{Decision: decision}
	if decision.Operation == model.OperationCreate {
		doc, err := e.create(ctx, w, f)
		if err != nil {
			return nil, err
		}
		out.Document = doc
		if e.index != nil {
			if err := e.index.AddDocument(ctx, doc); err != nil {
				log.Warn("reconcile: index add failed", zap.String("document_id", doc.ID), zap.Error(err))
			}
		}
		return out, nil
	}

	doc, report, err := e.update(ctx, w, decision, f)
	if err != nil {
		return nil, err
	}
	out.Document = doc
	out.Report = report
	if e.index != nil {
		if err := e.index.UpdateDocument(ctx, doc); err != nil {
			log.Warn("reconcile: index update failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return out, nil
}

func (e *Engine) create(ctx context.Context, w DocumentWriter, f Findings) (*model.Document, error) {
	id := uuid.New().String()
	status := f.Meta.Status
	if status == "" {
		status = model.DocumentResearching
	}
	doc := &model.Document{
		ID:          id,
		Path:        DocumentPath(e.cfg.DocumentDir, f.Meta.Title, id),
		Title:       f.Meta.Title,
		Purpose:     f.Meta.Purpose,
		Topics:      f.Meta.Topics,
		Questions:   f.Meta.Questions,
		Status:      status,
		Confidence:  f.Meta.Confidence,
		SourceCount: f.Meta.SourceCount,
		Content:     strings.TrimSpace(f.Content),
	}
	created, err := w.CreateDocument(ctx, doc, commitMessage(f.SessionID, "create %q", f.Meta.Title))
	if err != nil {
		return nil, &ReconciliationError{Op: "create", Err: err}
	}
	return created, nil
}

func (e *Engine) update(ctx context.Context, w DocumentWriter, d *Decision, f Findings) (*model.Document, *model.MergeReport, error) {
	verb := "update"
	if d.Operation == model.OperationMerge {
		verb = "merge into"
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		target, err := w.GetDocument(ctx, d.Target.ID)
		if err != nil {
			return nil, nil, &ReconciliationError{Op: "update", Err: err}
		}
		merged, report, err := e.Merge(target, f.Content, &f.Meta, e.cfg.UpdateStrategy)
		if err != nil {
			return nil, nil, err
		}
		msg := commitMessage(f.SessionID, "%s %q (score %.2f, %d conflicts)", verb, target.Title, d.Confidence, report.ConflictCount)
		saved, err := w.UpdateDocument(ctx, merged, target.Version, msg)
		if err == nil {
			return saved, report, nil
		}
		lastErr = err
		if !errors.Is(err, store.ErrVersionConflict) {
			break
		}
		zap.L().Warn("reconcile: version conflict, reloading",
			zap.String("document_id", target.ID),
			zap.Int("version", target.Version),
		)
	}
	return nil, nil, &ReconciliationError{Op: "update", Err: lastErr}
}

func commitMessage(sessionID, format string, args ...any) string {
	msg := "research: " + fmt.Sprintf(format, args...)
	if sessionID != "" {
		msg += " [session " + sessionID + "]"
	}
	return msg
}

// DocumentPath builds the library path for a new document: a slug of the
// title plus the first block of the id, under dir.
func DocumentPath(dir, title, id string) string {
	suffix := id
	if i := strings.IndexByte(id, '-'); i > 0 {
		suffix = id[:i]
	}
	return path.Join(dir, slugify(title)+"-"+suffix+".md")
}

const maxSlugLen = 60

func slugify(title string) string {
	lower := cases.Lower(language.Und).String(title)
	var b strings.Builder
	dash := false
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if r := []rune(slug); len(r) > maxSlugLen {
		slug = strings.TrimRight(string(r[:maxSlugLen]), "-")
	}
	if slug == "" {
		return "document"
	}
	return slug
}
