package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"notebook-rag/internal/answer"
	"notebook-rag/internal/extract"
	"notebook-rag/internal/ingest"
	"notebook-rag/internal/models"
	"notebook-rag/internal/store"
)

type ingestRequest struct {
	PDFBase64  string `json:"pdfBase64"`
	Filename   string `json:"filename"`
	UserID     string `json:"user_id"`
	NotebookID string `json:"notebook_id"`
}

type chatRequest struct {
	Query      string `json:"query"`
	UserID     string `json:"user_id"`
	NotebookID string `json:"notebook_id"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// handleIngest accepts a base64 document upload and runs the ingestion
// pipeline. The field name pdfBase64 is historical; any supported format
// rides in it.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.PDFBase64 == "" || req.Filename == "" || req.UserID == "" || req.NotebookID == "" {
		respondError(w, http.StatusBadRequest, "Missing fields.")
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid base64 payload.")
		return
	}

	tenant := models.Tenant{UserID: req.UserID, NotebookID: req.NotebookID}

	if ok, err := s.underDocumentCap(r, tenant, req.Filename); err != nil {
		respondError(w, http.StatusInternalServerError, "Error processing document.")
		return
	} else if !ok {
		respondError(w, http.StatusBadRequest, "Document limit reached for this notebook.")
		return
	}

	res, err := s.ingester.Run(r.Context(), ingest.Request{
		Payload:  payload,
		Filename: req.Filename,
		Tenant:   tenant,
	})
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrEmptyText):
			respondError(w, http.StatusBadRequest, "No text extracted from document.")
		case errors.Is(err, extract.ErrUnsupportedFormat):
			respondError(w, http.StatusBadRequest, "Unsupported document format.")
		case errors.Is(err, extract.ErrExtraction):
			respondError(w, http.StatusBadRequest, "Could not read document.")
		default:
			log.Error().Err(err).Str("filename", req.Filename).Msg("ingestion failed")
			respondError(w, http.StatusInternalServerError, "Error processing document.")
		}
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// underDocumentCap reports whether the upload fits the per-notebook document
// limit. Re-uploading an existing filename never counts against the cap.
func (s *Server) underDocumentCap(r *http.Request, tenant models.Tenant, filename string) (bool, error) {
	if s.cfg.MaxDocumentsPerNotebook <= 0 {
		return true, nil
	}

	entries, err := s.store.List(r.Context(), tenant)
	if err != nil {
		log.Error().Err(err).Msg("listing documents for cap check")
		return false, err
	}

	filenames := map[string]bool{}
	for _, e := range entries {
		filenames[e.Filename] = true
	}
	if filenames[filename] {
		return true, nil
	}
	return len(filenames) < s.cfg.MaxDocumentsPerNotebook, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "Missing query.")
		return
	}

	resp, err := s.answerer.Answer(r.Context(), answer.Request{
		Query:  req.Query,
		Tenant: models.Tenant{UserID: req.UserID, NotebookID: req.NotebookID},
	})
	if err != nil {
		log.Error().Err(err).Msg("chat failed")
		respondError(w, http.StatusInternalServerError, "Error processing chat request.")
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{Response: resp})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	tenant := models.Tenant{
		UserID:     r.URL.Query().Get("user_id"),
		NotebookID: r.URL.Query().Get("notebook_id"),
	}
	if !tenant.Complete() {
		respondError(w, http.StatusBadRequest, "Missing user_id or notebook_id.")
		return
	}

	entries, err := s.store.List(r.Context(), tenant)
	if err != nil {
		log.Error().Err(err).Msg("listing documents")
		respondError(w, http.StatusInternalServerError, "Error listing documents.")
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	respondJSON(w, http.StatusOK, entries)
}

// handleDeleteDocument removes one stored chunk by id. Deleting an id that is
// already gone still reports success.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.store.Delete(r.Context(), id); err != nil {
		log.Error().Err(err).Str("id", id).Msg("deleting document")
		respondError(w, http.StatusInternalServerError, "Error deleting document.")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully."})
}
