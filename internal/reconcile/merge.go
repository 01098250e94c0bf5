package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
)

const (
	introductionSection = "Introduction"
	updatedFindings     = "### Updated Findings"
	appendSeparator     = "---"
)

// mergeRun collects the conflicts and operation log of one Merge call.
type mergeRun struct {
	conflicts []model.Conflict
	ops       []string
}

func (r *mergeRun) logf(format string, args ...any) {
	r.ops = append(r.ops, fmt.Sprintf(format, args...))
}

// Merge combines content and optional metadata into a copy of existing
// using strategy. existing is never modified.
func (e *Engine) Merge(existing *model.Document, content string, meta *model.DocumentMeta, strategy model.MergeStrategy) (*model.Document, *model.MergeReport, error) {
	if existing == nil {
		return nil, nil, &ReconciliationError{Op: "merge", Err: eris.New("existing document is required")}
	}

	run := &mergeRun{}
	now := e.now()
	out := existing.Clone()

	switch strategy {
	case model.StrategyReplace:
		out.Content = strings.TrimSpace(content)
		run.logf("replaced content (%d -> %d chars)", len(existing.Content), len(out.Content))
		run.conflicts = append(run.conflicts, e.detector.Detect("content", existing.Content, content)...)
	case model.StrategyAppend:
		out.Content = appendBlock(existing.Content, content, now)
		run.logf("appended update block at %s", now.Format(time.RFC3339))
		run.conflicts = append(run.conflicts, e.detector.Detect("content", existing.Content, content)...)
	case model.StrategyIntegrate:
		out.Content = e.integrate(run, existing.Content, content)
	default:
		return nil, nil, &ReconciliationError{Op: "merge", Err: eris.Errorf("unknown strategy %q", strategy)}
	}

	if meta != nil {
		incoming := &model.Document{
			Purpose:    meta.Purpose,
			Topics:     meta.Topics,
			Confidence: meta.Confidence,
		}
		run.conflicts = append(run.conflicts, MetadataConflicts(existing, incoming)...)
		mergeMetadata(run, out, meta)
	}

	out.UpdatedAt = now
	report := &model.MergeReport{
		Strategy:       strategy,
		Conflicts:      run.conflicts,
		ConflictCount:  len(run.conflicts),
		Operations:     run.ops,
		OperationCount: len(run.ops),
		Timestamp:      now,
	}
	return out, report, nil
}

func appendBlock(existing, content string, at time.Time) string {
	block := "## Update " + at.Format(time.RFC3339) + "\n\n" + strings.TrimSpace(content)
	base := strings.TrimRight(existing, "\n")
	if strings.TrimSpace(base) == "" {
		return block
	}
	return base + "\n\n" + appendSeparator + "\n\n" + block
}

type section struct {
	title  string
	header string
	body   string
}

// sectionMap is an insertion-ordered map of sections keyed by folded title.
type sectionMap struct {
	order []string
	byKey map[string]*section
}

func parseSections(text string) *sectionMap {
	m := &sectionMap{byKey: make(map[string]*section)}
	cur := &section{title: introductionSection}
	var body []string

	flush := func() {
		cur.body = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.header == "" && cur.body == "" {
			return
		}
		key := foldKey(cur.title)
		if prev, ok := m.byKey[key]; ok {
			// Repeated headings fold into the first occurrence.
			prev.body = joinNonEmpty(prev.body, cur.body)
			return
		}
		m.order = append(m.order, key)
		m.byKey[key] = cur
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		// Update sub-headings belong to their enclosing section.
		if title, ok := headingTitle(line); ok && strings.TrimSpace(line) != updatedFindings {
			flush()
			cur = &section{title: title, header: strings.TrimSpace(line)}
			body = nil
			continue
		}
		body = append(body, line)
	}
	flush()
	return m
}

// headingTitle returns the title of an ATX heading line.
func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
		return "", false
	}
	title := strings.TrimSpace(trimmed[level:])
	return title, title != ""
}

func (m *sectionMap) render() string {
	parts := make([]string, 0, len(m.order))
	for _, key := range m.order {
		s := m.byKey[key]
		parts = append(parts, joinNonEmpty(s.header, s.body))
	}
	return strings.Join(parts, "\n\n")
}

// insert adds a section. Header-less intro text leads the document so it
// is not read back as the body of the preceding section.
func (m *sectionMap) insert(key string, s *section) {
	m.byKey[key] = s
	if s.header == "" {
		m.order = append([]string{key}, m.order...)
		return
	}
	m.order = append(m.order, key)
}

func (e *Engine) integrate(run *mergeRun, existing, incoming string) string {
	merged := parseSections(existing)
	added := parseSections(incoming)

	for _, key := range added.order {
		next := added.byKey[key]
		cur, ok := merged.byKey[key]
		if !ok {
			merged.insert(key, next)
			run.logf("added section %q", next.title)
			continue
		}
		if next.body == "" || next.body == cur.body {
			run.logf("section %q unchanged", cur.title)
			continue
		}
		run.conflicts = append(run.conflicts, e.detector.Detect("section:"+cur.title, cur.body, next.body)...)
		cur.body = joinNonEmpty(cur.body, updatedFindings+"\n\n"+next.body)
		run.logf("integrated updated findings into section %q", cur.title)
	}
	return merged.render()
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}

func mergeMetadata(run *mergeRun, out *model.Document, meta *model.DocumentMeta) {
	seen := foldSet(out.Topics)
	for _, t := range meta.Topics {
		k := foldKey(t)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.Topics = append(out.Topics, strings.TrimSpace(t))
		run.logf("added topic %q", t)
	}

	asked := make(map[string]struct{}, len(out.Questions))
	for _, q := range out.Questions {
		asked[strings.TrimSpace(q)] = struct{}{}
	}
	for _, q := range meta.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := asked[q]; ok {
			continue
		}
		asked[q] = struct{}{}
		out.Questions = append(out.Questions, q)
		run.logf("added question %q", q)
	}

	if meta.Confidence > out.Confidence {
		run.logf("raised confidence %.2f -> %.2f", out.Confidence, meta.Confidence)
		out.Confidence = meta.Confidence
	}

	if meta.SourceCount > 0 {
		out.SourceCount += meta.SourceCount
		run.logf("added %d sources", meta.SourceCount)
	}

	if meta.Status != "" {
		if next := model.AdvanceStatus(out.Status, meta.Status); next != out.Status {
			run.logf("status %s -> %s", out.Status, next)
			out.Status = next
		}
	}
}
