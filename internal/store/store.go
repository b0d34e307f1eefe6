// Package store persists document chunks with their vectors and answers
// tenant-scoped similarity searches.
package store

import (
	"context"
	"errors"

	"notebook-rag/internal/models"
)

var (
	// ErrDimensionMismatch rejects a vector whose length differs from the
	// store's configured dimensionality. Mismatches are never truncated or
	// padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMissingTenant rejects reads that lack a complete (user, notebook)
	// scope. A search is never allowed to widen into all tenants.
	ErrMissingTenant = errors.New("missing tenant scope")
)

// Record is one chunk row to persist. Rows are immutable once inserted.
type Record struct {
	Tenant     models.Tenant
	Content    string
	Embedding  []float32
	Filename   string
	ChunkIndex int
}

// Match is a similarity search hit.
type Match struct {
	ID         string
	Content    string
	Filename   string
	Metadata   map[string]string
	Similarity float64
}

// Entry is a registry listing row.
type Entry struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Gateway is the vector store interface the pipelines depend on.
type Gateway interface {
	// Insert persists one chunk row and returns its assigned id.
	Insert(ctx context.Context, rec Record) (string, error)
	// Search returns up to topK chunks for the tenant, most similar first.
	// topK <= 0 falls back to models.DefaultTopK.
	Search(ctx context.Context, tenant models.Tenant, queryEmbedding []float32, topK int) ([]Match, error)
	// List returns one entry per stored chunk for the tenant.
	List(ctx context.Context, tenant models.Tenant) ([]Entry, error)
	// Delete removes exactly one chunk row. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error
}
