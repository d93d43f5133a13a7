package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/collabtext/syncserver/internal/authority"
)

type createDocumentRequest struct {
	Content string `json:"content"`
}

type createDocumentResponse struct {
	DocID string `json:"docId"`
}

// handleCreateDocument handles POST /docs: creates a new document with
// seed content (spec §6.2).
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")

			return
		}
	}

	docID, err := s.authorities.CreateDocument(r.Context(), req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create document")

		return
	}

	writeJSON(w, http.StatusCreated, createDocumentResponse{DocID: docID})
}

type getDocumentResponse struct {
	Content string `json:"content"`
	Version int    `json:"version"`
}

// handleGetDocument handles GET /docs/{id}: a snapshot read (spec
// §6.2).
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]

	doc, err := s.authorities.LoadOrAttach(r.Context(), docID)
	if err != nil {
		if errors.Is(err, authority.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")

			return
		}

		writeError(w, http.StatusInternalServerError, "failed to load document")

		return
	}

	content, version := doc.Snapshot()

	writeJSON(w, http.StatusOK, getDocumentResponse{Content: content, Version: version})
}
