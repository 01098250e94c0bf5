package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/db"
	"github.com/sells-group/deep-research/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	path         TEXT NOT NULL UNIQUE,
	title        TEXT NOT NULL,
	purpose      TEXT NOT NULL DEFAULT '',
	topics       JSONB NOT NULL DEFAULT '[]',
	questions    JSONB NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL DEFAULT 'draft',
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_count INTEGER NOT NULL DEFAULT 0,
	content      TEXT NOT NULL DEFAULT '',
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_versions (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	version     INTEGER NOT NULL,
	content     TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (document_id, version)
);

CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	query            TEXT NOT NULL,
	depth            TEXT NOT NULL,
	status           TEXT NOT NULL,
	total_cost       DOUBLE PRECISION NOT NULL DEFAULT 0,
	budget           DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	data             JSONB NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_topics ON documents USING GIN (topics);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document, message string) (*model.Document, error) {
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

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (`+documentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			out.ID, out.Path, out.Title, out.Purpose, topics, questions, string(out.Status),
			out.Confidence, out.SourceCount, out.Content, out.Version, out.CreatedAt, out.UpdatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert document")
		}
		return insertVersionPostgres(ctx, tx, out, message)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanPgDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocumentByPath(ctx context.Context, path string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE path = $1`, path)
	doc, err := scanPgDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document by path %s", path)
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	where := ""
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += where + " ORDER BY updated_at DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list documents")
		}
		if matchesTopic(doc.Topics, filter.Topic) {
			docs = append(docs, *doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	return page(docs, filter.Offset, filter.limit()), nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc *model.Document, expectedVersion int, message string) (*model.Document, error) {
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

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE documents SET title = $1, purpose = $2, topics = $3, questions = $4, status = $5, confidence = $6,
			source_count = $7, content = $8, version = $9, updated_at = $10 WHERE id = $11 AND version = $12
			RETURNING path, created_at`,
			out.Title, out.Purpose, topics, questions, string(out.Status), out.Confidence,
			out.SourceCount, out.Content, out.Version, out.UpdatedAt, out.ID, expectedVersion,
		).Scan(&out.Path, &out.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, out.ID).Scan(&exists); err != nil {
				return eris.Wrapf(err, "postgres: check document %s", out.ID)
			}
			if !exists {
				return eris.Wrapf(ErrNotFound, "postgres: update document %s", out.ID)
			}
			return eris.Wrapf(ErrVersionConflict, "postgres: update document %s at version %d", out.ID, expectedVersion)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: update document %s", out.ID)
		}
		return insertVersionPostgres(ctx, tx, out, message)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]model.DocumentVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, version, content, message, created_at FROM document_versions WHERE document_id = $1 ORDER BY version`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list versions %s", documentID)
	}
	defer rows.Close()

	var versions []model.DocumentVersion
	for rows.Next() {
		var v model.DocumentVersion
		if err := rows.Scan(&v.DocumentID, &v.Version, &v.Content, &v.Message, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list versions")
	}
	if len(versions) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: list versions %s", documentID)
	}
	return versions, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, session *model.ResearchSession) error {
	if session == nil || session.ID == "" {
		return eris.New("postgres: session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, query, depth, status, total_cost, budget, final_confidence, data, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, total_cost = EXCLUDED.total_cost,
			final_confidence = EXCLUDED.final_confidence, data = EXCLUDED.data, completed_at = EXCLUDED.completed_at`,
		session.ID, session.Query, string(session.Depth), string(session.Status), session.TotalCost,
		session.BudgetTarget, session.FinalConfidence, data, session.StartedAt, session.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: save session %s", session.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.ResearchSession, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return decodeSession(data)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ResearchSession, error) {
	query := `SELECT data FROM sessions`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	// LIMIT NULL is LIMIT ALL.
	var limit any = filter.limit()
	if filter.Limit < 0 {
		limit = nil
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.ResearchSession
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sess, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions")
}

func insertVersionPostgres(ctx context.Context, tx pgx.Tx, doc *model.Document, message string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO document_versions (document_id, version, content, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.Version, doc.Content, message, doc.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert version %d of %s", doc.Version, doc.ID)
}

func scanPgDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var topics, questions []byte
	var status string
	err := row.Scan(&d.ID, &d.Path, &d.Title, &d.Purpose, &topics, &questions, &status,
		&d.Confidence, &d.SourceCount, &d.Content, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan document")
	}
	d.Status = model.DocumentStatus(status)
	if d.Topics, err = decodeList(topics); err != nil {
		return nil, err
	}
	if d.Questions, err = decodeList(questions); err != nil {
		return nil, err
	}
	return &d, nil
}
