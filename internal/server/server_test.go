package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"notebook-rag/internal/answer"
	"notebook-rag/internal/chunker"
	"notebook-rag/internal/config"
	"notebook-rag/internal/ingest"
	"notebook-rag/internal/models"
	"notebook-rag/internal/store"
)

type constantEmbedder struct{}

func (constantEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// echoModel answers with the human prompt it received, so tests can assert
// what context reached the model.
type echoModel struct{}

func (echoModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var b strings.Builder
	for _, m := range messages {
		if m.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				b.WriteString(text.Text)
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: b.String()}},
	}, nil
}

func (m echoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return prompt, nil
}

func newTestHandler(t *testing.T, cfg config.ServerConfig) (http.Handler, *store.Chromem) {
	t.Helper()
	gw, err := store.NewChromem("", "documents", 3)
	require.NoError(t, err)

	ingester := ingest.NewPipeline(chunker.NewSplitter(1000, 200), constantEmbedder{}, gw, false)
	answerer := answer.NewPipeline(constantEmbedder{}, gw, echoModel{}, 3, 2, 0)
	return New(cfg, ingester, answerer, gw).Handler(), gw
}

func ingestBody(content, filename, userID, notebookID string) *bytes.Buffer {
	body, _ := json.Marshal(map[string]string{
		"pdfBase64":   base64.StdEncoding.EncodeToString([]byte(content)),
		"filename":    filename,
		"user_id":     userID,
		"notebook_id": notebookID,
	})
	return bytes.NewBuffer(body)
}

func doJSON(t *testing.T, h http.Handler, method, target string, body *bytes.Buffer) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestIngestChatListDeleteFlow(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{})

	rec, resp := doJSON(t, h, http.MethodPost, "/ingest", ingestBody("The sky is blue.", "sky.txt", "u1", "n1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Document uploaded successfully.", resp["message"])
	assert.Equal(t, float64(1), resp["chunks_processed"])

	rec, resp = doJSON(t, h, http.MethodPost, "/chat", bytes.NewBufferString(`{"query":"What color is the sky?","user_id":"u1","notebook_id":"n1"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answerText, _ := resp["response"].(string)
	assert.Contains(t, answerText, "The sky is blue.", "retrieved chunk must reach the model")

	req := httptest.NewRequest(http.MethodGet, "/documents?user_id=u1&notebook_id=n1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []store.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "sky.txt", entries[0].Filename)

	rec, resp = doJSON(t, h, http.MethodDelete, "/documents/"+entries[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Document deleted successfully.", resp["message"])

	// Deleting the same id again is still a success.
	rec, _ = doJSON(t, h, http.MethodDelete, "/documents/"+entries[0].ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/documents?user_id=u1&notebook_id=n1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), "empty list is [], not null")
}

func TestIngestMissingFields(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{})

	cases := map[string]string{
		"no payload":  `{"filename":"a.txt","user_id":"u1","notebook_id":"n1"}`,
		"no filename": `{"pdfBase64":"aGk=","user_id":"u1","notebook_id":"n1"}`,
		"no user":     `{"pdfBase64":"aGk=","filename":"a.txt","notebook_id":"n1"}`,
		"no notebook": `{"pdfBase64":"aGk=","filename":"a.txt","user_id":"u1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec, resp := doJSON(t, h, http.MethodPost, "/ingest", bytes.NewBufferString(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Missing fields.", resp["error"])
		})
	}
}

func TestIngestRejectsBadPayloads(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{})

	rec, resp := doJSON(t, h, http.MethodPost, "/ingest", bytes.NewBufferString(`{"pdfBase64":"!!!not base64!!!","filename":"a.txt","user_id":"u1","notebook_id":"n1"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid base64 payload.", resp["error"])

	rec, resp = doJSON(t, h, http.MethodPost, "/ingest", ingestBody("   ", "blank.txt", "u1", "n1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No text extracted from document.", resp["error"])

	rec, resp = doJSON(t, h, http.MethodPost, "/ingest", ingestBody("binary", "a.exe", "u1", "n1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported document format.", resp["error"])

	// Corrupt bytes behind a supported extension are the client's fault too.
	rec, resp = doJSON(t, h, http.MethodPost, "/ingest", ingestBody("this is not a pdf", "doc.pdf", "u1", "n1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Could not read document.", resp["error"])
}

func TestIngestDocumentCap(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{MaxDocumentsPerNotebook: 2})

	for _, name := range []string{"one.txt", "two.txt"} {
		rec, _ := doJSON(t, h, http.MethodPost, "/ingest", ingestBody("some text", name, "u1", "n1"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := doJSON(t, h, http.MethodPost, "/ingest", ingestBody("more text", "three.txt", "u1", "n1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Document limit reached for this notebook.", resp["error"])

	// Re-uploading a filename already in the notebook is not a new document.
	rec, _ = doJSON(t, h, http.MethodPost, "/ingest", ingestBody("updated text", "one.txt", "u1", "n1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A different notebook has its own budget.
	rec, _ = doJSON(t, h, http.MethodPost, "/ingest", ingestBody("other text", "three.txt", "u1", "n2"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatMissingQuery(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{})

	rec, resp := doJSON(t, h, http.MethodPost, "/chat", bytes.NewBufferString(`{"user_id":"u1","notebook_id":"n1"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing query.", resp["error"])
}

func TestChatWithoutTenantStillAnswers(t *testing.T) {
	h, gw := newTestHandler(t, config.ServerConfig{})

	_, err := gw.Insert(context.Background(), store.Record{
		Tenant:    models.Tenant{UserID: "u1", NotebookID: "n1"},
		Content:   "tenant-only knowledge",
		Embedding: []float32{1, 0, 0},
		Filename:  "doc.txt",
	})
	require.NoError(t, err)

	rec, resp := doJSON(t, h, http.MethodPost, "/chat", bytes.NewBufferString(`{"query":"anything"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	answerText, _ := resp["response"].(string)
	assert.NotContains(t, answerText, "tenant-only knowledge", "unscoped chat must not read stored chunks")
}

func TestListDocumentsRequiresTenant(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{})

	for _, target := range []string{"/documents", "/documents?user_id=u1", "/documents?notebook_id=n1"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestDocumentsAreTenantScoped(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{})

	rec, _ := doJSON(t, h, http.MethodPost, "/ingest", ingestBody("alpha text", "alpha.txt", "u1", "n1"))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/documents?user_id=u2&notebook_id=n1", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec2.Body.String()))
}

func TestIngestUploadLimit(t *testing.T) {
	h, _ := newTestHandler(t, config.ServerConfig{MaxUploadBytes: 64})

	rec, _ := doJSON(t, h, http.MethodPost, "/ingest", ingestBody(strings.Repeat("long text ", 50), "big.txt", "u1", "n1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "oversized body is a client error")
}
