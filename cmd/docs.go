package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/publish"
	"github.com/sells-group/deep-research/internal/store"
	"github.com/sells-group/deep-research/pkg/notion"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Browse and manage the research document library",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		topic, _ := cmd.Flags().GetString("topic")
		limit, _ := cmd.Flags().GetInt("limit")

		docs, err := st.ListDocuments(ctx, store.DocumentFilter{
			Status: model.DocumentStatus(status),
			Topic:  topic,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "docs list")
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}
		formatDocsList(os.Stdout, docs)
		return nil
	},
}

var docsShowCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Print a document as markdown with front matter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		doc, err := st.GetDocument(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "docs show")
		}
		data, err := store.RenderMarkdown(doc)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var docsVersionsCmd = &cobra.Command{
	Use:   "versions <document-id>",
	Short: "List the version history of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		versions, err := st.ListVersions(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "docs versions")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "VERSION\tCREATED\tMESSAGE")
		for _, v := range versions {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", v.Version, v.CreatedAt.Format("2006-01-02 15:04"), v.Message)
		}
		return w.Flush()
	},
}

var docsSearchCmd = &cobra.Command{
	Use:   "search <terms>",
	Short: "Full-text search over the library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		lib, err := initLibrary(ctx)
		if err != nil {
			return err
		}
		defer lib.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		hits, err := lib.Keyword.Search(ctx, strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(os.Stderr, "No matches.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSCORE\tTITLE")
		for _, h := range hits {
			_, _ = fmt.Fprintf(w, "%s\t%.3f\t%s\n", h.ID, h.Score, h.Title)
		}
		return w.Flush()
	},
}

var docsExportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write every document as a markdown file under dir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := store.ExportMarkdown(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "docs export")
		}
		zap.L().Info("exported documents", zap.Int("count", n), zap.String("dir", args[0]))
		return nil
	},
}

var docsImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Load markdown files under dir into the library",
	Long:  "Walks dir for .md files. Files whose path is already stored are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		lib, err := initLibrary(ctx)
		if err != nil {
			return err
		}
		defer lib.Close()

		created, skipped, err := importMarkdown(ctx, lib, args[0])
		if err != nil {
			return eris.Wrap(err, "docs import")
		}
		zap.L().Info("import complete", zap.Int("created", created), zap.Int("skipped", skipped))
		return nil
	},
}

var docsPublishCmd = &cobra.Command{
	Use:   "publish [document-id...]",
	Short: "Mirror documents into the configured Notion database",
	Long:  "Publishes the named documents, or every document matching --status when no ids are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("publish"); err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		if len(args) == 0 && status == "" {
			return eris.New("docs publish: pass document ids or --status")
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
		pub := publish.New(client, cfg.Notion.DatabaseID)

		results, err := publishDocuments(ctx, st, pub, args, model.DocumentStatus(status))
		if err != nil {
			return eris.Wrap(err, "docs publish")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "DOCUMENT\tPAGE\tACTION")
		for _, r := range results {
			action := "updated"
			if r.Created {
				action = "created"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", truncateID(r.documentID), r.PageID, action)
		}
		return w.Flush()
	},
}

type documentPublisher interface {
	Publish(ctx context.Context, doc *model.Document) (*publish.Result, error)
}

type publishedDocument struct {
	documentID string
	*publish.Result
}

// publishDocuments publishes ids in order, or every document with status
// when ids is empty. It stops at the first failure.
func publishDocuments(ctx context.Context, st store.Store, pub documentPublisher, ids []string, status model.DocumentStatus) ([]publishedDocument, error) {
	var docs []*model.Document
	if len(ids) > 0 {
		for _, id := range ids {
			doc, err := st.GetDocument(ctx, id)
			if err != nil {
				return nil, eris.Wrapf(err, "load %s", id)
			}
			docs = append(docs, doc)
		}
	} else {
		list, err := st.ListDocuments(ctx, store.DocumentFilter{Status: status, Limit: -1})
		if err != nil {
			return nil, err
		}
		for i := range list {
			docs = append(docs, &list[i])
		}
	}

	out := make([]publishedDocument, 0, len(docs))
	for _, doc := range docs {
		res, err := pub.Publish(ctx, doc)
		if err != nil {
			return out, err
		}
		out = append(out, publishedDocument{documentID: doc.ID, Result: res})
	}
	return out, nil
}

// importMarkdown stores each markdown file under dir that is not already in
// the library and indexes it.
func importMarkdown(ctx context.Context, lib *library, dir string) (created, skipped int, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "read %s", path)
		}
		doc, err := store.ParseMarkdown(data)
		if err != nil {
			zap.L().Warn("skipping unparseable file", zap.String("path", path), zap.Error(err))
			skipped++
			return nil
		}
		if doc.Path == "" {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			doc.Path = filepath.ToSlash(rel)
		}

		if _, err := lib.Store.GetDocumentByPath(ctx, doc.Path); err == nil {
			skipped++
			return nil
		} else if !eris.Is(err, store.ErrNotFound) {
			return err
		}

		saved, err := lib.Store.CreateDocument(ctx, doc, "import "+doc.Path)
		if err != nil {
			return err
		}
		if err := lib.Index.AddDocument(ctx, saved); err != nil {
			return err
		}
		created++
		return nil
	})
	return created, skipped, err
}

func formatDocsList(out io.Writer, docs []model.Document) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tVERSION\tCONFIDENCE\tSOURCES\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-------\t----------\t-------\t-------")
	for _, d := range docs {
		title := []rune(d.Title)
		t := d.Title
		if len(title) > 40 {
			t = string(title[:37]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%d\t%s\n",
			truncateID(d.ID), t, d.Status, d.Version, d.Confidence, d.SourceCount,
			d.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	docsListCmd.Flags().String("status", "", "filter by status (draft, researching, validating, reviewed, deprecated)")
	docsListCmd.Flags().String("topic", "", "filter by topic")
	docsListCmd.Flags().Int("limit", 50, "max number of documents to display")
	docsSearchCmd.Flags().Int("limit", 10, "max number of matches")
	docsPublishCmd.Flags().String("status", "", "publish every document with this status")

	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsVersionsCmd, docsSearchCmd, docsExportCmd, docsImportCmd, docsPublishCmd)
	rootCmd.AddCommand(docsCmd)
}
