// Package api exposes the index and resolver over HTTP.
//
// The server is read-only with respect to the system: it answers graph
// queries and computes plans, but never applies them. Applying stays with
// the CLI, next to the operator.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/graph"
	"github.com/fsmtools/fsm/pkg/pkg"
	"github.com/fsmtools/fsm/pkg/resolver"
	"github.com/fsmtools/fsm/pkg/state"
)

// Snapshot is the indexed world the server answers from. It is immutable;
// restart or re-index to serve a newer one.
type Snapshot struct {
	Graph        *graph.Graph
	Degraded     []string
	RepoPriority map[string]int
}

// Server handles the HTTP API.
type Server struct {
	snap   Snapshot
	store  state.Store
	logger *log.Logger
	router chi.Router
}

// New builds a server over an index snapshot and an installed-set store.
func New(snap Snapshot, store state.Store, logger *log.Logger) *Server {
	s := &Server{snap: snap, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/packages", s.handlePackages)
		r.Get("/packages/{format}/{repo}/{name}", s.handlePackage)
		r.Get("/graph/dot", s.handleDOT)
		r.Post("/resolve", s.handleResolve)
	})
	s.router = r
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"packages": s.snap.Graph.Len(),
		"degraded": s.snap.Degraded,
	})
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"packages": s.snap.Graph.Packages(),
	})
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	id := pkg.ID{
		Format: chi.URLParam(r, "format"),
		Name:   chi.URLParam(r, "name"),
		Repo:   chi.URLParam(r, "repo"),
	}
	p, ok := s.snap.Graph.Package(id)
	if !ok {
		s.writeError(w, errors.New(errors.ErrCodeNotFound,
			"no package %s", id).WithPackages(id.String()))
		return
	}

	dependents, _ := s.snap.Graph.Dependents(id)
	conflicts, _ := s.snap.Graph.ConflictsWith(id)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"package":    p,
		"dependents": ids(dependents),
		"conflicts":  ids(conflicts),
	})
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	dot := graph.ToDOT(s.snap.Graph, graph.DotOptions{
		Versions:  r.URL.Query().Get("versions") == "true",
		Conflicts: r.URL.Query().Get("conflicts") == "true",
	})
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = io.WriteString(w, dot)
}

// resolveRequest is the POST /v1/resolve body.
type resolveRequest struct {
	Operations []struct {
		Kind    string `json:"kind"`
		ID      string `json:"id"`
		Version string `json:"version,omitempty"`
		Cascade bool   `json:"cascade,omitempty"`
	} `json:"operations"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decoding request"))
		return
	}

	var ops []pkg.Operation
	for _, o := range req.Operations {
		id, err := pkg.ParseID(o.ID)
		if err != nil {
			s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "operation id %q", o.ID))
			return
		}
		switch o.Kind {
		case "install":
			ops = append(ops, pkg.Install(id, pkg.Version(o.Version)))
		case "upgrade":
			ops = append(ops, pkg.Upgrade(id, "", pkg.Version(o.Version)))
		case "remove":
			op := pkg.Remove(id)
			op.Cascade = o.Cascade
			ops = append(ops, op)
		default:
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput,
				"unknown operation kind %q", o.Kind))
			return
		}
	}

	installed, err := s.store.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInternal, err, "reading installed set"))
		return
	}

	plan, err := resolver.Resolve(s.snap.Graph, resolver.Request{
		Ops:           ops,
		Installed:     installed,
		RepoPriority:  s.snap.RepoPriority,
		DegradedRepos: s.snap.Degraded,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	digest, err := plan.Digest()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"plan":   plan,
		"digest": digest,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writing response", "err", err)
	}
}

// writeError maps structured errors onto HTTP statuses: bad input is 400,
// unknown things are 404, resolution failures are 422, the rest 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch {
	case code == errors.ErrCodeInvalidInput || code == errors.ErrCodeInvalidManifest:
		status = http.StatusBadRequest
	case code == errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.Resolution(code):
		status = http.StatusUnprocessableEntity
	}

	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":     code,
			"message":  errors.UserMessage(err),
			"packages": errors.ImplicatedPackages(err),
		},
	})
}

func ids(in []pkg.ID) []string {
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = id.String()
	}
	return out
}
