package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/satchelwiki/satchel/internal/auth"
	"github.com/satchelwiki/satchel/internal/model"
)

type userRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if req.Username == "" {
		return model.NewValidationError("username", "username must not be empty")
	}
	if req.Password == "" {
		return model.NewValidationError("password", "password must not be empty")
	}
	verifier, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	user, err := s.store.CreateUser(r.Context(), model.User{
		Username: req.Username,
		Email:    req.Email,
		Verifier: verifier,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, user)
}

// userUpdateRequest is a partial update: absent fields leave the user
// unchanged, so is_admin is a pointer to tell "false" from "not sent".
type userUpdateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  *bool  `json:"is_admin"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var req userUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	user, err := s.store.GetUserByName(r.Context(), rc.Vars["username"])
	if err != nil {
		return err
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Password != "" {
		verifier, err := auth.HashPassword(req.Password)
		if err != nil {
			return err
		}
		user.Verifier = verifier
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if err := s.store.UpdateUser(r.Context(), *user); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var role model.Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if role.Name == "" {
		return model.NewValidationError("name", "role name must not be empty")
	}
	created, err := s.store.CreateRole(r.Context(), role)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	if err := s.store.DeleteRole(r.Context(), rc.Vars["role"]); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleListACL(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	q := r.URL.Query()
	records, err := s.store.ListACL(r.Context(),
		model.EntityType(q.Get("entity_type")), q.Get("entity_name"))
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleCreateACL(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var rec model.ACLRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	created, err := s.store.CreateACL(r.Context(), rec)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteACL(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	id, err := strconv.ParseInt(rc.Vars["id"], 10, 64)
	if err != nil {
		return model.NewValidationError("id", "must be an integer")
	}
	if err := s.store.DeleteACL(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
