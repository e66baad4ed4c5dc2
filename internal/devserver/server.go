// Package devserver runs the development loop: it supervises the front-end bundler,
// reloads the metadata graph when the project config changes and pushes live reload
// notifications to connected browsers.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/conduit-lang/metagraph/internal/export"
	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

// SnapshotPublisher receives every successfully reloaded snapshot
type SnapshotPublisher interface {
	Publish(ctx context.Context, doc *export.Document) (int64, error)
}

// Options configures a Server
type Options struct {
	Addr string
	// Holder publishes the metadata sessions served under /metadata
	Holder *metamodel.Holder
	// Classes returns the class names to load; it is called on every reload so
	// that edits to the project config take effect
	Classes func() ([]string, error)
	// WatchFiles trigger a metadata reload when they change
	WatchFiles []string
	Debounce   time.Duration
	// Bundler is nil when no bundler should be started
	Bundler   *SupervisorConfig
	Publisher SnapshotPublisher
	Logger    *zap.Logger
}

// Server is the development server
type Server struct {
	opts       Options
	logger     *zap.Logger
	reload     *ReloadServer
	supervisor *Supervisor
	router     chi.Router

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server. Nothing is started until Run.
func New(opts Options) (*Server, error) {
	if opts.Holder == nil {
		return nil, errors.New("metadata holder is required")
	}
	if opts.Classes == nil {
		return nil, errors.New("class source is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		reload: NewReloadServer(opts.Logger.Named("reload")),
	}
	if opts.Bundler != nil {
		supervisor, err := NewSupervisor(*opts.Bundler, opts.Logger.Named("bundler"), s.onCompile)
		if err != nil {
			s.reload.Close()
			return nil, err
		}
		s.supervisor = supervisor
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/__reload", s.reload.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Route("/metadata", func(r chi.Router) {
		r.Get("/", s.handleMetadata)
		r.Get("/classes/{name}", s.handleClass)
	})
	return r
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Reloads returns the reload server
func (s *Server) Reloads() *ReloadServer {
	return s.reload
}

// Supervisor returns the bundler supervisor, or nil when no bundler is configured
func (s *Server) Supervisor() *Supervisor {
	return s.supervisor
}

// ReloadMetadata rebuilds the metadata graph. On failure the previous session stays
// published and browsers are shown the error.
func (s *Server) ReloadMetadata(ctx context.Context) (*metamodel.Session, error) {
	start := time.Now()

	classes, err := s.opts.Classes()
	if err == nil {
		var session *metamodel.Session
		session, err = s.opts.Holder.Reload(ctx, classes)
		if err == nil {
			s.logger.Info("metadata reloaded",
				zap.Stringer("session", session.ID()),
				zap.Int("classes", session.Count()),
				zap.Duration("took", time.Since(start)))
			s.reload.NotifyReload(ScopeMetadata, session.ID().String())
			s.publish(ctx, session)
			return session, nil
		}
	}

	s.logger.Error("metadata reload failed", zap.Error(err))
	s.reload.NotifyError(ScopeMetadata, &ErrorInfo{Message: err.Error()})
	return nil, err
}

func (s *Server) publish(ctx context.Context, session *metamodel.Session) {
	if s.opts.Publisher == nil {
		return
	}
	doc, err := export.Build(session)
	if err != nil {
		s.logger.Warn("failed to build snapshot", zap.Error(err))
		return
	}
	receivers, err := s.opts.Publisher.Publish(ctx, doc)
	if err != nil {
		s.logger.Warn("failed to publish snapshot", zap.Error(err))
		return
	}
	s.logger.Debug("snapshot published", zap.Stringer("snapshot", doc.ID), zap.Int64("receivers", receivers))
}

// onCompile forwards every bundler compilation to the browsers
func (s *Server) onCompile(result CompileResult) {
	if result.Success {
		s.reload.NotifyReload(ScopeBundle, "")
		return
	}
	s.reload.NotifyError(ScopeBundle, &ErrorInfo{Message: "bundle failed to compile", Output: result.Output})
}

// Run loads the metadata, starts the bundler, the config watcher and the HTTP
// listener, and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.ReloadMetadata(ctx); err != nil {
		s.logger.Warn("serving without metadata until the config is fixed")
	}

	var watcher *Watcher
	if len(s.opts.WatchFiles) > 0 {
		var err error
		watcher, err = NewWatcher(s.opts.WatchFiles, s.opts.Debounce, s.logger.Named("watch"), func(files []string) {
			s.logger.Info("config changed", zap.Strings("files", files))
			s.ReloadMetadata(ctx)
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	if s.supervisor != nil {
		if err := s.supervisor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start bundler: %w", err)
		}
		defer s.supervisor.Stop()
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	s.logger.Info("dev server ready", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-serveErr:
		s.reload.Close()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dev server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.reload.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dev server: %w", err)
	}
	return nil
}

// Addr returns the listening address once Run has started listening
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

type health struct {
	Status  string `json:"status"`
	Bundler string `json:"bundler,omitempty"`
	Session string `json:"session,omitempty"`
	Classes int    `json:"classes"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok", Clients: s.reload.ConnectionCount()}
	if session := s.opts.Holder.Session(); session != nil {
		h.Session = session.ID().String()
		h.Classes = session.Count()
	} else {
		h.Status = "degraded"
	}
	if s.supervisor != nil {
		h.Bundler = s.supervisor.State().String()
		if s.supervisor.State() == StateFailed {
			h.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) snapshot(w http.ResponseWriter) (*export.Document, bool) {
	session := s.opts.Holder.Session()
	if session == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata is not loaded")
		return nil, false
	}
	doc, err := export.Build(session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return doc, true
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.snapshot(w)
	if !ok {
		return
	}

	format := export.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		var err error
		if format, err = export.ParseFormat(q); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if format == export.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := export.Write(w, doc, format); err != nil {
		s.logger.Warn("failed to write snapshot", zap.Error(err))
	}
}

func (s *Server) handleClass(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.snapshot(w)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	for _, c := range doc.Classes {
		if c.Name == name {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("class %s is not loaded", name))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
