package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"notebook-rag/internal/config"
	"notebook-rag/internal/models"
)

// Document is the persisted chunk row. The embedding column dimension is
// fixed by InitSchema and must match the configured embedding dimension.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID         string            `bun:"id,pk"`
	UserID     string            `bun:"user_id,notnull"`
	NotebookID string            `bun:"notebook_id,notnull"`
	Content    string            `bun:"content,notnull"`
	Embedding  pgvector.Vector   `bun:"embedding,notnull"`
	Metadata   map[string]string `bun:"metadata,type:jsonb"`
	Filename   string            `bun:"filename,notnull"`
}

// Postgres is the pgvector-backed Gateway.
type Postgres struct {
	db        *bun.DB
	dimension int
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

func NewPostgres(sqldb *sql.DB, debug bool, dimension int) *Postgres {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Postgres{db: db, dimension: dimension}
}

const matchFunctionSQL = `
CREATE OR REPLACE FUNCTION match_documents(
	query_embedding vector(%d),
	match_count int,
	filter_user_id text,
	filter_notebook_id text
) RETURNS TABLE (id text, content text, metadata jsonb, filename text, similarity float)
LANGUAGE sql STABLE AS $$
	SELECT d.id, d.content, d.metadata, d.filename,
	       1 - (d.embedding <=> query_embedding) AS similarity
	FROM documents d
	WHERE d.user_id = filter_user_id
	  AND d.notebook_id = filter_notebook_id
	ORDER BY d.embedding <=> query_embedding
	LIMIT match_count;
$$;
`

// InitSchema creates the vector extension, the documents table and the
// match_documents function. Idempotent.
func (p *Postgres) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			id text PRIMARY KEY,
			user_id text NOT NULL,
			notebook_id text NOT NULL,
			content text NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata jsonb,
			filename text NOT NULL
		)`, p.dimension),
		`CREATE INDEX IF NOT EXISTS documents_tenant_idx ON documents (user_id, notebook_id)`,
		fmt.Sprintf(matchFunctionSQL, p.dimension),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Insert(ctx context.Context, rec Record) (string, error) {
	if len(rec.Embedding) != p.dimension {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Embedding), p.dimension)
	}

	doc := &Document{
		ID:         uuid.NewString(),
		UserID:     rec.Tenant.UserID,
		NotebookID: rec.Tenant.NotebookID,
		Content:    rec.Content,
		Embedding:  pgvector.NewVector(rec.Embedding),
		Metadata: map[string]string{
			models.MetadataFilenameKey:   rec.Filename,
			models.MetadataChunkIndexKey: strconv.Itoa(rec.ChunkIndex),
		},
		Filename: rec.Filename,
	}
	if _, err := p.db.NewInsert().Model(doc).Exec(ctx); err != nil {
		return "", fmt.Errorf("inserting chunk: %w", err)
	}
	return doc.ID, nil
}

type matchRow struct {
	ID         string            `bun:"id"`
	Content    string            `bun:"content"`
	Metadata   map[string]string `bun:"metadata"`
	Filename   string            `bun:"filename"`
	Similarity float64           `bun:"similarity"`
}

func (p *Postgres) Search(ctx context.Context, tenant models.Tenant, queryEmbedding []float32, topK int) ([]Match, error) {
	if !tenant.Complete() {
		return nil, ErrMissingTenant
	}
	if len(queryEmbedding) != p.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(queryEmbedding), p.dimension)
	}
	if topK <= 0 {
		topK = models.DefaultTopK
	}

	var rows []matchRow
	err := p.db.NewRaw(
		`SELECT id, content, metadata, filename, similarity FROM match_documents(?, ?, ?, ?)`,
		pgvector.NewVector(queryEmbedding), topK, tenant.UserID, tenant.NotebookID,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	matches := make([]Match, len(rows))
	for i, row := range rows {
		matches[i] = Match{
			ID:         row.ID,
			Content:    row.Content,
			Filename:   row.Filename,
			Metadata:   row.Metadata,
			Similarity: row.Similarity,
		}
	}
	return matches, nil
}

func (p *Postgres) List(ctx context.Context, tenant models.Tenant) ([]Entry, error) {
	if !tenant.Complete() {
		return nil, ErrMissingTenant
	}

	var docs []Document
	err := p.db.NewSelect().
		Model(&docs).
		Column("id", "filename").
		Where("user_id = ?", tenant.UserID).
		Where("notebook_id = ?", tenant.NotebookID).
		Order("filename ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}

	entries := make([]Entry, len(docs))
	for i, d := range docs {
		entries[i] = Entry{ID: d.ID, Filename: d.Filename}
	}
	return entries, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	_, err := p.db.NewDelete().
		Model((*Document)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting chunk %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
