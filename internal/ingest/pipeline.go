// Package ingest runs the decode -> extract -> chunk -> embed -> persist
// pipeline for uploaded documents.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"notebook-rag/internal/chunker"
	"notebook-rag/internal/extract"
	"notebook-rag/internal/models"
	"notebook-rag/internal/store"
)

// Embedder is the slice of the embedding client the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Pipeline struct {
	splitter chunker.Splitter
	embedder Embedder
	store    store.Gateway
	// strict switches from best-effort (failed chunks skipped) to
	// all-or-nothing with compensating deletes.
	strict bool
}

func NewPipeline(splitter chunker.Splitter, embedder Embedder, gw store.Gateway, strict bool) *Pipeline {
	return &Pipeline{splitter: splitter, embedder: embedder, store: gw, strict: strict}
}

// Request carries one decoded upload. Field presence is validated at the
// endpoint; the payload here is already base64-decoded.
type Request struct {
	Payload  []byte
	Filename string
	Tenant   models.Tenant
}

type Result struct {
	Message         string `json:"message"`
	ChunksProcessed int    `json:"chunks_processed"`
}

// Run ingests one document. In the default lenient mode a chunk that fails to
// embed or insert is logged and skipped; the remaining chunks still land and
// the result reports how many made it. Chunks are processed sequentially in
// splitter order.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	text, err := extract.Text(req.Payload, req.Filename)
	if err != nil {
		return nil, err
	}

	chunks := p.splitter.Split(text)
	log.Info().
		Str("filename", req.Filename).
		Str("user_id", req.Tenant.UserID).
		Str("notebook_id", req.Tenant.NotebookID).
		Int("chunks", len(chunks)).
		Msg("ingesting document")

	var inserted []string
	processed := 0
	for _, chunk := range chunks {
		vector, err := p.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			if failErr := p.failChunk(ctx, req, chunk.Index, inserted, "embedding", err); failErr != nil {
				return nil, failErr
			}
			continue
		}

		id, err := p.store.Insert(ctx, store.Record{
			Tenant:     req.Tenant,
			Content:    chunk.Content,
			Embedding:  vector,
			Filename:   req.Filename,
			ChunkIndex: chunk.Index,
		})
		if err != nil {
			if failErr := p.failChunk(ctx, req, chunk.Index, inserted, "inserting", err); failErr != nil {
				return nil, failErr
			}
			continue
		}

		inserted = append(inserted, id)
		processed++
	}

	return &Result{
		Message:         "Document uploaded successfully.",
		ChunksProcessed: processed,
	}, nil
}

// failChunk applies the failure policy for one chunk: in lenient mode it logs
// and returns nil so the caller skips the chunk; in strict mode it rolls back
// this request's inserts and returns a terminal error.
func (p *Pipeline) failChunk(ctx context.Context, req Request, index int, inserted []string, stage string, cause error) error {
	if !p.strict {
		log.Warn().Err(cause).
			Str("filename", req.Filename).
			Int("chunk_index", index).
			Msgf("skipping chunk: %s failed", stage)
		return nil
	}

	for _, id := range inserted {
		if err := p.store.Delete(ctx, id); err != nil {
			log.Error().Err(err).Str("id", id).Msg("rollback delete failed")
		}
	}
	return fmt.Errorf("%s chunk %d of %s: %w", stage, index, req.Filename, cause)
}
