package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/satchelwiki/satchel/internal/model"
)

// writeError maps a domain error to an HTTP status. Validation errors are
// plain text so a misbehaving client sees the reason without parsing JSON.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case model.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case model.IsPermission(err):
		http.Error(w, err.Error(), http.StatusForbidden)
	case model.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("internal error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// etag derives the entity tag for a revision from its bag and id.
func etag(rev *model.Revision) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%s/%d", rev.Bag, rev.ID))
}

// writeRevisionHeaders sets the headers shared by successful writes.
func writeRevisionHeaders(w http.ResponseWriter, rev *model.Revision) {
	w.Header().Set("X-Revision-Number", fmt.Sprintf("%d", rev.ID))
	w.Header().Set("ETag", etag(rev))
}
