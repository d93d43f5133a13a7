package httpapi

import (
	"encoding/json"
	"net/http"
)

type loginRequest struct {
	UserID string `json:"userId"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// handleLogin mints a bearer token for the given identity. Demo-grade
// per spec §6.2: production deployments substitute real auth.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")

		return
	}

	token, err := s.tokens.Sign(req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mint token")

		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: req.UserID})
}
