// Package httpapi serves the read-only admin surface: health, readiness, build
// info, metrics and directory inspection.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"g10.app/identity/internal/directory"
	"g10.app/identity/internal/obs"
	"g10.app/identity/internal/stream"
)

const serviceName = "identityd"

// API is the admin HTTP layer over a Directory.
type API struct {
	router  chi.Router
	dir     *directory.Directory
	log     *slog.Logger
	version string
	started time.Time
	ready   atomic.Bool
	events  *stream.Stream
}

// Option configures optional API collaborators.
type Option func(*API)

// WithEvents enables GET /v1/events, a live feed of authentication decisions.
func WithEvents(st *stream.Stream) Option {
	return func(a *API) { a.events = st }
}

func New(dir *directory.Directory, log *slog.Logger, version string, opts ...Option) *API {
	if log == nil {
		log = slog.Default()
	}
	a := &API{
		router:  chi.NewRouter(),
		dir:     dir,
		log:     log,
		version: version,
		started: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(a)
	}

	r := a.router
	r.Use(RequestID, Logging(log), SecurityHeaders, instrument)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Get("/v1/directory/{kind}", a.ListDirectory)
	r.Route("/v1/users/{id}", func(r chi.Router) {
		r.Get("/", a.GetUser)
		r.Get("/memberships", a.GetMemberships)
	})
	r.Get("/v1/events", a.Events)
	return a
}

func (a *API) Handler() http.Handler { return a.router }

// SetReady flips readiness once the directory has been populated.
func (a *API) SetReady(ready bool) { a.ready.Store(ready) }

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if !a.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{}
	for kind, n := range a.dir.Counts() {
		counts[string(kind)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      serviceName,
		"version":   a.version,
		"time":      time.Now().UTC().Format(time.RFC3339),
		"started":   a.started.Format(time.RFC3339),
		"directory": counts,
	})
}

func (a *API) ListDirectory(w http.ResponseWriter, r *http.Request) {
	kind, err := directory.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	items, err := a.dir.List(kind)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render(w, r, http.StatusOK, listResponse{Kind: kind, Count: len(items), Items: items})
}

type listResponse struct {
	Kind  directory.Kind `json:"kind" cbor:"kind"`
	Count int            `json:"count" cbor:"count"`
	Items []any          `json:"items" cbor:"items"`
}

func (a *API) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	u, found := a.dir.User(id)
	if !found {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	render(w, r, http.StatusOK, u)
}

func (a *API) GetMemberships(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	m, found := a.dir.Memberships(id)
	if !found {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	render(w, r, http.StatusOK, m)
}

func userID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		msg := "invalid user id"
		if errors.Is(err, strconv.ErrRange) {
			msg = "user id out of range"
		}
		writeError(w, r, http.StatusBadRequest, msg)
		return 0, false
	}
	return id, true
}
