package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/deep-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	path         TEXT NOT NULL UNIQUE,
	title        TEXT NOT NULL,
	purpose      TEXT NOT NULL DEFAULT '',
	topics       TEXT NOT NULL DEFAULT '[]',
	questions    TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL DEFAULT 'draft',
	confidence   REAL NOT NULL DEFAULT 0,
	source_count INTEGER NOT NULL DEFAULT 0,
	content      TEXT NOT NULL DEFAULT '',
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS document_versions (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	version     INTEGER NOT NULL,
	content     TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (document_id, version)
);

CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	query            TEXT NOT NULL,
	depth            TEXT NOT NULL,
	status           TEXT NOT NULL,
	total_cost       REAL NOT NULL DEFAULT 0,
	budget           REAL NOT NULL DEFAULT 0,
	final_confidence REAL NOT NULL DEFAULT 0,
	data             TEXT NOT NULL,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const documentColumns = `id, path, title, purpose, topics, questions, status, confidence, source_count, content, version, created_at, updated_at`

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document, message string) (*model.Document, error) {
	out, err := prepareNew(doc)
	if err != nil {
		return nil, err
	}
	topics, err := encodeList(out.Topics)
	if err != nil {
		return nil, err
	}
	questions, err := encodeList(out.Questions)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			out.ID, out.Path, out.Title, out.Purpose, topics, questions, string(out.Status),
			out.Confidence, out.SourceCount, out.Content, out.Version, out.CreatedAt, out.UpdatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert document")
		}
		return insertVersionSQLite(ctx, tx, out, message)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	return doc, nil
}

func (s *SQLiteStore) GetDocumentByPath(ctx context.Context, path string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document by path %s", path)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list documents")
		}
		if matchesTopic(doc.Topics, filter.Topic) {
			docs = append(docs, *doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	return page(docs, filter.Offset, filter.limit()), nil
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *model.Document, expectedVersion int, message string) (*model.Document, error) {
	out, err := prepareUpdate(doc, expectedVersion)
	if err != nil {
		return nil, err
	}
	topics, err := encodeList(out.Topics)
	if err != nil {
		return nil, err
	}
	questions, err := encodeList(out.Questions)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET title = ?, purpose = ?, topics = ?, questions = ?, status = ?, confidence = ?,
			source_count = ?, content = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`,
			out.Title, out.Purpose, topics, questions, string(out.Status), out.Confidence,
			out.SourceCount, out.Content, out.Version, out.UpdatedAt, out.ID, expectedVersion,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update document %s", out.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = ?)`, out.ID).Scan(&exists); err != nil {
				return eris.Wrapf(err, "sqlite: check document %s", out.ID)
			}
			if !exists {
				return eris.Wrapf(ErrNotFound, "sqlite: update document %s", out.ID)
			}
			return eris.Wrapf(ErrVersionConflict, "sqlite: update document %s at version %d", out.ID, expectedVersion)
		}
		return insertVersionSQLite(ctx, tx, out, message)
	})
	if err != nil {
		return nil, err
	}

	// Path and created_at are immutable; reread them from the stored row.
	stored, err := s.GetDocument(ctx, out.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, documentID string) ([]model.DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, version, content, message, created_at FROM document_versions WHERE document_id = ? ORDER BY version`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list versions %s", documentID)
	}
	defer rows.Close() //nolint:errcheck

	var versions []model.DocumentVersion
	for rows.Next() {
		var v model.DocumentVersion
		if err := rows.Scan(&v.DocumentID, &v.Version, &v.Content, &v.Message, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list versions")
	}
	if len(versions) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: list versions %s", documentID)
	}
	return versions, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *model.ResearchSession) error {
	if session == nil || session.ID == "" {
		return eris.New("sqlite: session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, query, depth, status, total_cost, budget, final_confidence, data, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, total_cost = excluded.total_cost,
			final_confidence = excluded.final_confidence, data = excluded.data, completed_at = excluded.completed_at`,
		session.ID, session.Query, string(session.Depth), string(session.Status), session.TotalCost,
		session.BudgetTarget, session.FinalConfidence, string(data), session.StartedAt, nullTime(session.CompletedAt),
	)
	return eris.Wrapf(err, "sqlite: save session %s", session.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.ResearchSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return decodeSession([]byte(data))
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ResearchSession, error) {
	query := `SELECT data FROM sessions`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var sessions []model.ResearchSession
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess, err := decodeSession([]byte(data))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions")
}

// helpers

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func insertVersionSQLite(ctx context.Context, tx *sql.Tx, doc *model.Document, message string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO document_versions (document_id, version, content, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Version, doc.Content, message, doc.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert version %d of %s", doc.Version, doc.ID)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var topics, questions, status string
	err := row.Scan(&d.ID, &d.Path, &d.Title, &d.Purpose, &topics, &questions, &status,
		&d.Confidence, &d.SourceCount, &d.Content, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan document")
	}
	d.Status = model.DocumentStatus(status)
	if d.Topics, err = decodeList([]byte(topics)); err != nil {
		return nil, err
	}
	if d.Questions, err = decodeList([]byte(questions)); err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeSession(data []byte) (*model.ResearchSession, error) {
	var sess model.ResearchSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal session")
	}
	return &sess, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
