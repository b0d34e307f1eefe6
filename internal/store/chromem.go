package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"notebook-rag/internal/models"
)

// Chromem is an embedded Gateway backed by chromem-go. It serves the CLI
// workflow and the test suite; the HTTP server normally runs on Postgres.
type Chromem struct {
	col       *chromem.Collection
	dimension int

	// chromem has no "list documents" call, so the gateway keeps a
	// process-local index of id -> (tenant, filename) beside the collection.
	mu   sync.Mutex
	rows map[string]chromemRow
}

type chromemRow struct {
	tenant   models.Tenant
	filename string
}

// NewChromem opens (or creates) a collection. An empty path selects a purely
// in-memory database.
func NewChromem(path, collection string, dimension int) (*Chromem, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("opening vector database: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", collection, err)
	}
	return &Chromem{
		col:       col,
		dimension: dimension,
		rows:      make(map[string]chromemRow),
	}, nil
}

func (c *Chromem) Insert(ctx context.Context, rec Record) (string, error) {
	if len(rec.Embedding) != c.dimension {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Embedding), c.dimension)
	}

	id := uuid.NewString()
	doc := chromem.Document{
		ID:      id,
		Content: rec.Content,
		Metadata: map[string]string{
			"user_id":                    rec.Tenant.UserID,
			"notebook_id":                rec.Tenant.NotebookID,
			models.MetadataFilenameKey:   rec.Filename,
			models.MetadataChunkIndexKey: strconv.Itoa(rec.ChunkIndex),
		},
		Embedding: rec.Embedding,
	}
	if err := c.col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return "", fmt.Errorf("inserting chunk: %w", err)
	}

	c.mu.Lock()
	c.rows[id] = chromemRow{tenant: rec.Tenant, filename: rec.Filename}
	c.mu.Unlock()
	return id, nil
}

func (c *Chromem) Search(ctx context.Context, tenant models.Tenant, queryEmbedding []float32, topK int) ([]Match, error) {
	if !tenant.Complete() {
		return nil, ErrMissingTenant
	}
	if len(queryEmbedding) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(queryEmbedding), c.dimension)
	}
	if topK <= 0 {
		topK = models.DefaultTopK
	}

	// chromem rejects nResults larger than the tenant's document count.
	tenantCount := c.countTenant(tenant)
	if tenantCount == 0 {
		return nil, nil
	}
	if topK > tenantCount {
		topK = tenantCount
	}

	results, err := c.col.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       topK,
		Where: map[string]string{
			"user_id":     tenant.UserID,
			"notebook_id": tenant.NotebookID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	matches := make([]Match, len(results))
	for i, res := range results {
		matches[i] = Match{
			ID:         res.ID,
			Content:    res.Content,
			Filename:   res.Metadata[models.MetadataFilenameKey],
			Metadata:   res.Metadata,
			Similarity: float64(res.Similarity),
		}
	}
	return matches, nil
}

func (c *Chromem) List(ctx context.Context, tenant models.Tenant) ([]Entry, error) {
	if !tenant.Complete() {
		return nil, ErrMissingTenant
	}

	c.mu.Lock()
	var entries []Entry
	for id, row := range c.rows {
		if row.tenant == tenant {
			entries = append(entries, Entry{ID: id, Filename: row.filename})
		}
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Filename != entries[j].Filename {
			return entries[i].Filename < entries[j].Filename
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (c *Chromem) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	_, known := c.rows[id]
	c.mu.Unlock()
	if !known {
		return nil
	}

	// Collection first: if this fails the index entry stays, so List and
	// Search keep agreeing on what exists.
	if err := c.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("deleting chunk %s: %w", id, err)
	}

	c.mu.Lock()
	delete(c.rows, id)
	c.mu.Unlock()
	return nil
}

func (c *Chromem) countTenant(tenant models.Tenant) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, row := range c.rows {
		if row.tenant == tenant {
			n++
		}
	}
	return n
}
