package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/satchelwiki/satchel/internal/auth"
	"github.com/satchelwiki/satchel/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if req.Username == "" || req.Password == "" {
		return model.NewValidationError("credentials", "username and password are required")
	}
	sess, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.Expiry,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return respondJSON(w, http.StatusOK, loginResponse{SessionID: sess.ID})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, rc *RequestContext) error {
	id := r.Header.Get(auth.SessionHeader)
	if id == "" {
		if c, err := r.Cookie(auth.SessionCookie); err == nil {
			id = c.Value
		}
	}
	if id != "" {
		if err := s.auth.Logout(r.Context(), id); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   auth.SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
	return nil
}
