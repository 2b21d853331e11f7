package server

import (
	"log/slog"

	"github.com/satchelwiki/satchel/internal/model"
)

// RequestContext carries the per-request state handlers need. It is built
// once by the route wrapper after authentication and authorization have
// both run, so a handler receiving one may assume the requester (possibly
// anonymous) has already been cleared for the route's declared access.
type RequestContext struct {
	// Requester is nil for anonymous requests.
	Requester *model.Requester
	// Vars are the matched mux path variables.
	Vars map[string]string
	// Logger is the server logger.
	Logger *slog.Logger
}

// Username returns the requester's username, or "" when anonymous.
func (rc *RequestContext) Username() string {
	if rc.Requester == nil {
		return ""
	}
	return rc.Requester.Username
}
