// Package server exposes the HTTP surface: bag and recipe CRUD, tiddler
// reads and writes, the per-recipe live change feed, login, and the admin
// endpoints. Routes are declared in a single table and every handler runs
// behind the same access-check wrapper, so the permission required by an
// endpoint is visible next to its path instead of buried in handler bodies.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/satchelwiki/satchel/internal/acl"
	"github.com/satchelwiki/satchel/internal/auth"
	"github.com/satchelwiki/satchel/internal/config"
	"github.com/satchelwiki/satchel/internal/events"
	"github.com/satchelwiki/satchel/internal/model"
	"github.com/satchelwiki/satchel/internal/recipe"
	"github.com/satchelwiki/satchel/internal/store"
)

// Server wires the store, resolver, guard, bus, and session auth behind
// an HTTP router.
type Server struct {
	store     *store.Store
	resolver  *recipe.Resolver
	guard     *acl.Guard
	bus       *events.Bus
	auth      *auth.Auth
	logger    *slog.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithHeartbeatInterval overrides the feed keep-alive interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// WithAuth replaces the session authenticator, primarily so tests can
// inject deterministic session ids and clocks.
func WithAuth(a *auth.Auth) Option {
	return func(s *Server) { s.auth = a }
}

// WithBus replaces the change bus.
func WithBus(b *events.Bus) Option {
	return func(s *Server) { s.bus = b }
}

// New builds a Server over an open store using the given configuration.
func New(st *store.Store, cfg config.Config, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:     st,
		resolver:  recipe.NewResolver(st),
		guard:     acl.NewGuard(st, cfg.AllowAnonReads, cfg.AllowAnonWrites),
		bus:       events.NewBus(logger),
		auth:      auth.New(st, auth.WithLifetime(cfg.SessionLifetime())),
		logger:    logger,
		heartbeat: cfg.HeartbeatInterval(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Auth returns the session authenticator so the serve loop can run the
// expiry purge against it.
func (s *Server) Auth() *auth.Auth { return s.auth }

// access declares how a route is authorized before its handler runs.
type access struct {
	// entity names the mux var holding the protected entity, with its
	// type and the permission required. Empty entityVar means no entity
	// check.
	entityType model.EntityType
	entityVar  string
	perm       model.Permission

	// titleVar, when set together with a bag entity and WRITE, routes
	// the check through the title-aware path so partitioned-bag prefix
	// grants apply.
	titleVar string

	// adminOnly restricts the route to administrators (or the first
	// guest before any user exists).
	adminOnly bool

	// open skips authorization entirely (login, logout).
	open bool
}

// route is one row of the routing table.
type route struct {
	method string
	path   string
	name   string
	access access
	handle func(http.ResponseWriter, *http.Request, *RequestContext) error
}

func (s *Server) routes() []route {
	readBag := access{entityType: model.EntityTypeBag, entityVar: "bag", perm: model.PermissionRead}
	writeBag := access{entityType: model.EntityTypeBag, entityVar: "bag", perm: model.PermissionWrite, titleVar: "title"}
	readRecipe := access{entityType: model.EntityTypeRecipe, entityVar: "recipe", perm: model.PermissionRead}
	admin := access{adminOnly: true}
	open := access{open: true}

	return []route{
		{http.MethodGet, "/bags/{bag}/tiddlers.json", "bag-list", readBag, s.handleListBagTiddlers},
		{http.MethodGet, "/bags/{bag}/tiddlers/{title}", "bag-get", readBag, s.handleGetBagTiddler},
		{http.MethodGet, "/bags/{bag}/tiddlers/{title}/blob", "bag-blob", readBag, s.handleGetBagTiddlerBlob},
		{http.MethodPut, "/bags/{bag}/tiddlers/{title}", "bag-save", writeBag, s.handleSaveBagTiddler},
		{http.MethodDelete, "/bags/{bag}/tiddlers/{title}", "bag-delete", writeBag, s.handleDeleteBagTiddler},

		{http.MethodPost, "/bags", "bag-create", admin, s.handleCreateBag},
		{http.MethodPut, "/bags/{bag}", "bag-update", admin, s.handleUpdateBag},
		{http.MethodPost, "/recipes", "recipe-create", admin, s.handleCreateRecipe},
		{http.MethodPut, "/recipes/{recipe}", "recipe-update", admin, s.handleUpdateRecipe},

		{http.MethodGet, "/recipes/{recipe}/tiddlers.json", "recipe-list", readRecipe, s.handleListRecipeTiddlers},
		{http.MethodGet, "/recipes/{recipe}/tiddlers/{title}", "recipe-get", readRecipe, s.handleGetRecipeTiddler},
		{http.MethodGet, "/recipes/{recipe}/events", "recipe-events", readRecipe, s.handleRecipeEvents},
		{http.MethodGet, "/recipes/{recipe}/events/ws", "recipe-events-ws", readRecipe, s.handleRecipeEventsWS},

		{http.MethodPost, "/auth/login", "login", open, s.handleLogin},
		{http.MethodPost, "/auth/logout", "logout", open, s.handleLogout},

		{http.MethodPost, "/admin/users", "user-create", admin, s.handleCreateUser},
		{http.MethodPut, "/admin/users/{username}", "user-update", admin, s.handleUpdateUser},
		{http.MethodPost, "/admin/roles", "role-create", admin, s.handleCreateRole},
		{http.MethodDelete, "/admin/roles/{role}", "role-delete", admin, s.handleDeleteRole},
		{http.MethodGet, "/admin/acl", "acl-list", admin, s.handleListACL},
		{http.MethodPost, "/admin/acl", "acl-create", admin, s.handleCreateACL},
		{http.MethodDelete, "/admin/acl/{id}", "acl-delete", admin, s.handleDeleteACL},
	}
}

// Router builds the gorilla/mux router from the route table with the
// request logging middleware installed.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			s.logger.Info("handled",
				"method", request.Method,
				"url", request.URL,
				"duration", m.Duration,
				"status", m.Code)
		})
	})
	for _, rt := range s.routes() {
		r.Methods(rt.method).Path(rt.path).Name(rt.name).HandlerFunc(s.wrap(rt))
	}
	return r
}

// wrap identifies the requester, runs the route's access check, invokes
// the handler, and maps any returned error to an HTTP status.
func (s *Server) wrap(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, err := s.auth.Identify(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		rc := &RequestContext{
			Requester: requester,
			Vars:      mux.Vars(r),
			Logger:    s.logger,
		}
		if err := s.authorize(r, rt.access, rc); err != nil {
			s.writeError(w, err)
			return
		}
		if err := rt.handle(w, r, rc); err != nil {
			s.writeError(w, err)
		}
	}
}

func (s *Server) authorize(r *http.Request, a access, rc *RequestContext) error {
	switch {
	case a.open:
		return nil
	case a.adminOnly:
		return s.requireAdmin(r, rc)
	case a.entityVar != "":
		name := rc.Vars[a.entityVar]
		if a.titleVar != "" && a.perm == model.PermissionWrite {
			return s.guard.CheckWrite(r.Context(), name, rc.Vars[a.titleVar], rc.Requester)
		}
		return s.guard.Check(r.Context(), a.entityType, name, a.perm, rc.Requester)
	default:
		return nil
	}
}

// requireAdmin passes administrators, and anyone at all while the store
// still has zero users so the first administrator can be created.
func (s *Server) requireAdmin(r *http.Request, rc *RequestContext) error {
	if rc.Requester != nil && rc.Requester.IsAdmin {
		return nil
	}
	n, err := s.store.CountUsers(r.Context())
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return model.NewPermissionError("", "", "", "administrator access required")
}
