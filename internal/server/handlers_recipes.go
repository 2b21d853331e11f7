package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/satchelwiki/satchel/internal/model"
)

func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var rec model.Recipe
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if rec.Name == "" {
		return model.NewValidationError("name", "recipe name must not be empty")
	}
	if err := s.store.CreateRecipe(r.Context(), rec); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleUpdateRecipe(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var rec model.Recipe
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	rec.Name = rc.Vars["recipe"]
	if err := s.store.UpdateRecipe(r.Context(), rec); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// handleGetRecipeTiddler serves the resolved document for a title. When
// the title resolves to nothing and the request carries a fallback query
// parameter, the client is redirected there instead of receiving a 404.
func (s *Server) handleGetRecipeTiddler(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	rev, err := s.resolver.ResolveOne(r.Context(), rc.Vars["recipe"], rc.Vars["title"])
	if err != nil {
		return err
	}
	if rev == nil {
		if fallback := r.URL.Query().Get("fallback"); fallback != "" {
			http.Redirect(w, r, fallback, http.StatusFound)
			return nil
		}
		return model.NewNotFoundError("tiddler", rc.Vars["title"])
	}
	// The validator goes out on 304s too, so set it before the check.
	w.Header().Set("ETag", etag(rev))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag(rev) {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}
	if wantsJSON(r) {
		return respondJSON(w, http.StatusOK, rev)
	}
	w.Header().Set("Content-Type", rev.Type)
	_, err = io.WriteString(w, rev.Fields["text"])
	return err
}

// changeRecord is a revision annotated with the owning bag's position in
// the recipe, so clients can apply highest-position-wins themselves.
type changeRecord struct {
	model.Revision
	Position int `json:"position"`
}

// handleListRecipeTiddlers serves either the full resolved view or, when
// last_known_tiddler_id is present, the delta of revisions after that
// cursor in ascending id order.
func (s *Server) handleListRecipeTiddlers(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	name := rc.Vars["recipe"]
	q := r.URL.Query()

	if q.Get("last_known_tiddler_id") == "" {
		merged, err := s.resolver.Resolve(r.Context(), name)
		if err != nil {
			return err
		}
		revs := make([]model.Revision, 0, len(merged))
		for _, rev := range merged {
			revs = append(revs, rev)
		}
		sortRevisions(revs)
		return respondJSON(w, http.StatusOK, revs)
	}

	cursor, err := strconv.ParseInt(q.Get("last_known_tiddler_id"), 10, 64)
	if err != nil || cursor < 0 {
		return model.NewValidationError("last_known_tiddler_id", "must be a non-negative integer")
	}
	includeDeleted := q.Get("include_deleted") == "true"

	rec, err := s.store.GetRecipe(r.Context(), name)
	if err != nil {
		return err
	}
	revs, err := s.resolver.ChangesSince(r.Context(), name, cursor, includeDeleted)
	if err != nil {
		return err
	}
	records := make([]changeRecord, 0, len(revs))
	for _, rev := range revs {
		records = append(records, changeRecord{Revision: rev, Position: rec.PositionOf(rev.Bag)})
	}
	return respondJSON(w, http.StatusOK, records)
}

func sortRevisions(revs []model.Revision) {
	sort.Slice(revs, func(i, j int) bool { return revs[i].ID < revs[j].ID })
}
