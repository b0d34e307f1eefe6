// Package answer runs the retrieval-augmented query pipeline: embed the
// question, gather tenant-scoped context, and ask the chat model.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"notebook-rag/internal/llmservice"
	"notebook-rag/internal/models"
	"notebook-rag/internal/store"
)

// Embedder is the slice of the embedding client the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Pipeline struct {
	embedder   Embedder
	store      store.Gateway
	model      llms.Model
	topK       int
	retries    int
	retryDelay time.Duration
}

func NewPipeline(embedder Embedder, gw store.Gateway, model llms.Model, topK, retries int, retryDelay time.Duration) *Pipeline {
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	return &Pipeline{
		embedder:   embedder,
		store:      gw,
		model:      model,
		topK:       topK,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

type Request struct {
	Query  string
	Tenant models.Tenant
	TopK   int
}

// Answer resolves one query. An embedding failure is terminal; a retrieval
// failure degrades to an empty context block so the model still answers from
// general knowledge.
func (p *Pipeline) Answer(ctx context.Context, req Request) (string, error) {
	queryEmbedding, err := p.embedder.Embed(ctx, req.Query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	contextBlock := p.retrieveContext(ctx, req, queryEmbedding)

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, contextBlock, req.Query)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	raw, err := llmservice.GenerateText(ctx, p.model, p.retries, p.retryDelay, messages)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return Sanitize(raw), nil
}

// retrieveContext joins the retrieved chunk contents in ranked order,
// separated by blank lines. An incomplete tenant or a failing store yields an
// empty context rather than an error.
func (p *Pipeline) retrieveContext(ctx context.Context, req Request, queryEmbedding []float32) string {
	if !req.Tenant.Complete() {
		log.Debug().Msg("incomplete tenant scope, answering without context")
		return ""
	}

	topK := req.TopK
	if topK <= 0 {
		topK = p.topK
	}
	matches, err := p.store.Search(ctx, req.Tenant, queryEmbedding, topK)
	if err != nil {
		log.Error().Err(err).Msg("similarity search failed, degrading to empty context")
		return ""
	}

	contents := make([]string, len(matches))
	for i, m := range matches {
		contents[i] = m.Content
	}
	return strings.Join(contents, "\n\n")
}
