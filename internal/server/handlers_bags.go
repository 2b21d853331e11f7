package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/satchelwiki/satchel/internal/model"
)

func (s *Server) handleGetBagTiddler(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	rev, err := s.store.GetCurrentTiddler(r.Context(), rc.Vars["bag"], rc.Vars["title"])
	if err != nil {
		return err
	}
	if rev == nil {
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
	if rev.AttachmentID != "" {
		return s.streamBlob(w, r, rc)
	}
	w.Header().Set("Content-Type", rev.Type)
	_, err = io.WriteString(w, rev.Fields["text"])
	return err
}

func (s *Server) handleGetBagTiddlerBlob(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	return s.streamBlob(w, r, rc)
}

// streamBlob copies the payload to the response without buffering it,
// one chunk at a time.
func (s *Server) streamBlob(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	rev, body, err := s.store.GetTiddlerStream(r.Context(), rc.Vars["bag"], rc.Vars["title"])
	if err != nil {
		return err
	}
	if rev == nil {
		return model.NewNotFoundError("tiddler", rc.Vars["title"])
	}
	defer body.Close()
	w.Header().Set("ETag", etag(rev))
	w.Header().Set("Content-Type", rev.Type)
	if _, err := io.Copy(w, body); err != nil {
		// Headers are already written; nothing to do beyond logging.
		rc.Logger.Error("blob stream interrupted", "bag", rev.Bag, "title", rev.Title, "err", err)
	}
	return nil
}

func (s *Server) handleSaveBagTiddler(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	bag, title := rc.Vars["bag"], rc.Vars["title"]

	var rev *model.Revision
	var err error
	if isJSONBody(r) {
		var fields model.Fields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
		}
		if fields == nil {
			fields = model.Fields{}
		}
		fields["title"] = title
		rev, err = s.store.SaveTiddler(r.Context(), bag, fields)
	} else {
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = model.DefaultTiddlerType
		}
		rev, err = s.store.SaveTiddlerBlob(r.Context(), bag, title, contentType, r.Body)
	}
	if err != nil {
		return err
	}

	s.bus.Publish(*rev)
	writeRevisionHeaders(w, rev)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleDeleteBagTiddler(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	rev, err := s.store.DeleteTiddler(r.Context(), rc.Vars["bag"], rc.Vars["title"])
	if err != nil {
		return err
	}
	s.bus.Publish(*rev)
	writeRevisionHeaders(w, rev)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleListBagTiddlers(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	revs, err := s.store.ListCurrentTiddlers(r.Context(), rc.Vars["bag"])
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, revs)
}

func (s *Server) handleCreateBag(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var bag model.Bag
	if err := json.NewDecoder(r.Body).Decode(&bag); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if bag.Name == "" {
		return model.NewValidationError("name", "bag name must not be empty")
	}
	if err := s.store.CreateBag(r.Context(), bag); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleUpdateBag(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var bag model.Bag
	if err := json.NewDecoder(r.Body).Decode(&bag); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	bag.Name = rc.Vars["bag"]
	if err := s.store.UpdateBag(r.Context(), bag); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isJSONBody(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
