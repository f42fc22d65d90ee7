// CRC: crc-DevServer.md
// Spec: protocol.md
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/zot/actionq/internal/transport"
)

// errorResponse is the body of a rejected request.
type errorResponse struct {
	Error string `json:"error"`
}

// clientID identifies the sending client by header, then by ?client=.
func clientID(r *http.Request) string {
	if id := r.Header.Get(transport.ClientHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get("client"); id != "" {
		return id
	}
	return "anonymous"
}

// handleActions answers POST /actions with {"events":[...]}.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes))
	if err != nil {
		s.writeError(w, "read body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	events, err := s.responder.Respond(clientID(r), body)
	switch {
	case errors.Is(err, ErrSortOrderRegression):
		s.writeError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleStats answers GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.responder.Stats())
}

// handleSchema answers GET /schema with the registered action types.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"types": []string{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"types": s.registry.Types()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.config.Log(1, "DevServer: write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
