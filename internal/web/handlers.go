package web

import (
	"errors"
	"net/http"
)

var errNoRun = errors.New("no ingestion run has started")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun returns the progress snapshot of the current or last run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	p, ok := s.status.Progress()
	if !ok {
		respondError(w, r, errNoRun, http.StatusNotFound)
		return
	}
	respondJSON(w, r, http.StatusOK, p)
}

// handleInsertRange queries the store for the min and max insertion timestamps.
func (s *Server) handleInsertRange(w http.ResponseWriter, r *http.Request) {
	rng, err := s.status.InsertRange(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, r, http.StatusOK, rng)
}
