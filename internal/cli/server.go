package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/pipeline"
	"github.com/matzehuels/kinship/pkg/session"
	"github.com/matzehuels/kinship/pkg/store"
	"github.com/matzehuels/kinship/pkg/tree"
)

// server exposes one session over HTTP. Mutations change the local mirror
// only; the backend stays the source of truth and its echo replaces them.
type server struct {
	sess    *session.Session
	runner  *pipeline.Runner
	opts    pipeline.Options
	logger  *log.Logger
	metrics bool
}

func newServer(sess *session.Session, runner *pipeline.Runner, opts pipeline.Options, logger *log.Logger) *server {
	return &server{sess: sess, runner: runner, opts: opts, logger: logger}
}

var contentTypes = map[string]string{
	graph.FormatJSON: "application/json",
	graph.FormatSVG:  "image/svg+xml",
	graph.FormatDOT:  "text/vnd.graphviz; charset=utf-8",
	graph.FormatPNG:  "image/png",
	graph.FormatPDF:  "application/pdf",
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/graph", s.handleGraph)
	r.Get("/diagram.{format}", s.handleDiagram)
	r.Get("/messages", s.handleMessages)

	r.Route("/persons", func(r chi.Router) {
		r.Post("/", s.handleCreatePerson)
		r.Patch("/{id}", s.handleUpdatePerson)
		r.Delete("/{id}", s.handleDeletePerson)
	})
	r.Route("/edges", func(r chi.Router) {
		r.Post("/", s.handleCreateEdge)
		r.Delete("/{id}", s.handleDeleteEdge)
	})

	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start).Round(time.Microsecond))
	})
}

// =============================================================================
// Reads
// =============================================================================

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"graph_id": s.sess.GraphID(),
		"revision": s.sess.Store().Revision(),
	})
}

func (s *server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, graph.FromView(s.sess.GraphID(), s.sess.Name(), s.sess.Snapshot()))
}

// handleDiagram renders the current tree. Query parameters renderer,
// style and detailed override the configured options.
func (s *server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(chi.URLParam(r, "format"))
	if err := kerrors.ValidateFormat(format, graph.Formats...); err != nil {
		writeError(w, err)
		return
	}

	opts := s.opts
	opts.Formats = []string{format}
	opts.AutoPlace = true
	q := r.URL.Query()
	if v := q.Get("renderer"); v != "" {
		opts.Renderer = v
	}
	if v := q.Get("style"); v != "" {
		opts.Style = v
	}
	opts.Detailed = q.Get("detailed") == "true"
	if err := opts.ValidateAndSetDefaults(); err != nil {
		writeError(w, kerrors.Wrap(kerrors.ErrCodeInvalidInput, err, "%v", err))
		return
	}

	in := pipeline.Input{GraphID: s.sess.GraphID(), Name: s.sess.Name(), Snapshot: s.sess.Snapshot()}
	result, err := s.runner.Execute(r.Context(), in, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("X-Kinship-Unplaced", strconv.Itoa(result.Stats.Unplaced))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Artifacts[format])
}

func (s *server) handleMessages(w http.ResponseWriter, _ *http.Request) {
	conv := s.sess.Conversation()
	if conv == nil {
		writeError(w, kerrors.New(kerrors.ErrCodeNotFound, "no conversation is mirrored"))
		return
	}
	writeJSON(w, http.StatusOK, conv.Messages())
}

// =============================================================================
// Local mutations
// =============================================================================

// personPatch is the PATCH body. Absent fields stay unchanged; x and y
// must be given together, and null for both clears the position.
type personPatch struct {
	FirstName *string          `json:"first_name"`
	LastName  *string          `json:"last_name"`
	BirthDate *string          `json:"birth_date"`
	DeathDate *string          `json:"death_date"`
	X         *json.RawMessage `json:"x"`
	Y         *json.RawMessage `json:"y"`
}

func (p personPatch) patch() (tree.Patch, error) {
	out := tree.Patch{FirstName: p.FirstName, LastName: p.LastName, BirthDate: p.BirthDate, DeathDate: p.DeathDate}
	for _, name := range []*string{p.FirstName, p.LastName} {
		if name != nil {
			if err := kerrors.ValidateName(*name); err != nil {
				return out, err
			}
		}
	}
	if (p.X == nil) != (p.Y == nil) {
		return out, kerrors.New(kerrors.ErrCodeInvalidInput, "x and y must be set together")
	}
	if p.X == nil {
		return out, nil
	}
	out.SetPosition = true
	if string(*p.X) == "null" && string(*p.Y) == "null" {
		return out, nil
	}
	var pt tree.Point
	if json.Unmarshal(*p.X, &pt.X) != nil || json.Unmarshal(*p.Y, &pt.Y) != nil || !pt.Finite() {
		return out, kerrors.New(kerrors.ErrCodeInvalidInput, "x and y must be finite numbers")
	}
	out.Position = &pt
	return out, nil
}

func (s *server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var n graph.Node
	if !decodeBody(w, r, &n) {
		return
	}
	if n.ID != "" {
		if err := kerrors.ValidateID("person", n.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	for _, name := range []string{n.FirstName, n.LastName} {
		if err := kerrors.ValidateName(name); err != nil {
			writeError(w, err)
			return
		}
	}
	p, err := s.sess.Store().CreateNode(n.Person())
	if err != nil {
		writeError(w, storeError(err))
		return
	}
	writeJSON(w, http.StatusCreated, graph.NodeOf(p))
}

func (s *server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body personPatch
	if !decodeBody(w, r, &body) {
		return
	}
	patch, err := body.patch()
	if err != nil {
		writeError(w, err)
		return
	}
	st := s.sess.Store()
	if _, ok := st.Person(id); !ok {
		writeError(w, kerrors.New(kerrors.ErrCodePersonNotFound, "no person %q", id))
		return
	}
	st.UpdateNode(id, patch)
	p, _ := st.Person(id)
	writeJSON(w, http.StatusOK, graph.NodeOf(p))
}

func (s *server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	s.sess.Store().DeleteNode(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	var e graph.Edge
	if !decodeBody(w, r, &e) {
		return
	}
	kind, err := tree.ParseKind(e.Kind)
	if err != nil {
		writeError(w, kerrors.Wrap(kerrors.ErrCodeInvalidEdge, err, "%v", err))
		return
	}
	st := s.sess.Store()
	var created tree.Edge
	if e.ID == "" {
		created, err = st.Connect(kind, e.Source, e.Target)
	} else {
		created = tree.Edge{ID: e.ID, Kind: kind, Source: e.Source, Target: e.Target}
		err = st.AddEdge(created)
	}
	if err != nil {
		writeError(w, storeError(err))
		return
	}
	writeJSON(w, http.StatusCreated, graph.Edge{
		ID: created.ID, Kind: created.Kind.String(), Source: created.Source, Target: created.Target,
	})
}

func (s *server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	s.sess.Store().DeleteEdge(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// storeError maps store and tree sentinels to coded errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, tree.ErrCycle):
		return kerrors.Wrap(kerrors.ErrCodeInvalidEdge, err, "the edge would make a person their own ancestor")
	case errors.Is(err, tree.ErrDanglingEdge):
		return kerrors.Wrap(kerrors.ErrCodeInvalidEdge, err, "both persons must exist before they can be connected")
	case errors.Is(err, tree.ErrSelfLoop), errors.Is(err, tree.ErrInvalidKind), errors.Is(err, tree.ErrInvalidID):
		return kerrors.Wrap(kerrors.ErrCodeInvalidEdge, err, "%v", err)
	case errors.Is(err, store.ErrClosed):
		return kerrors.Wrap(kerrors.ErrCodeInternal, err, "the session is closed")
	default:
		return err
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, kerrors.Wrap(kerrors.ErrCodeInvalidInput, err, "invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := kerrors.GetCode(err)
	if code == "" {
		code = kerrors.ErrCodeInternal
	}
	writeJSON(w, kerrors.HTTPStatus(err), map[string]string{
		"error":   string(code),
		"message": kerrors.UserMessage(err),
	})
}
