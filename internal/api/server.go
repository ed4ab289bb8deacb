// Package api serves the per-source artifacts and the run history over a
// read-only HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/starfederation/datastar-go/datastar"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Config holds configuration for the API server.
type Config struct {
	DataDir string
	Store   core.Store
	Port    int

	// Watch refreshes the source index when artifacts change on disk.
	Watch bool

	Logger *slog.Logger
}

// Server is the read-only API server.
type Server struct {
	cfg      Config
	index    *sourceIndex
	notifier *Notifier
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:      cfg,
		index:    newSourceIndex(cfg.DataDir),
		notifier: NewNotifier(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Compress(5),
		s.logRequests,
	)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/updates", s.handleUpdates)
	r.Get("/sources", s.handleSources)
	r.Get("/sources/{name}/{artifact}", s.handleArtifact)
	r.Get("/runs", s.handleRuns)
	r.Get("/runs/{id}", s.handleRun)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.cfg.Logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.String("request_id", middleware.GetReqID(r.Context())))
		next.ServeHTTP(w, r)
	})
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.cfg.Logger.Info("starting API server", slog.String("addr", fmt.Sprintf("http://localhost:%d", s.cfg.Port)),
		slog.String("data_dir", s.cfg.DataDir))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch {
		eg.Go(func() error {
			return s.watch(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.cfg.Logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	sources, err := s.index.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []SourceSummary{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	artifact := chi.URLParam(r, "artifact")

	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		writeError(w, http.StatusBadRequest, "invalid source name")
		return
	}
	if !slices.Contains(galaxy.ArtifactNames, artifact) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown artifact %q", artifact))
		return
	}

	path := filepath.Join(galaxy.OutputDir(s.cfg.DataDir, name).Dir, artifact)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s not found for %s", artifact, name))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no state store configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.cfg.Store.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]runJSON, len(runs))
	for i, run := range runs {
		out[i] = toRunJSON(run, nil)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no state store configured")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.cfg.Store.GetRun(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	stages, err := s.cfg.Store.GetStageRuns(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRunJSON(run, stages))
}

// handleUpdates is the long-lived SSE endpoint of the index page. It pushes
// the source list whenever the data directory changes.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			sources, err := s.index.List()
			if err != nil {
				_ = sse.ConsoleError(err)
				continue
			}
			if err := sse.PatchElementTempl(sourceList(sources)); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sources, err := s.index.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage(sources).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type stageJSON struct {
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

type runJSON struct {
	ID          string      `json:"id"`
	SourceName  string      `json:"source_name"`
	RA          float64     `json:"ra"`
	Dec         float64     `json:"dec"`
	Status      string      `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
	Stages      []stageJSON `json:"stages,omitempty"`
}

func toRunJSON(run *core.Run, stages []*core.StageRun) runJSON {
	out := runJSON{
		ID:          run.ID,
		SourceName:  run.SourceName,
		RA:          run.RA,
		Dec:         run.Dec,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
	for _, st := range stages {
		out.Stages = append(out.Stages, stageJSON{
			Stage:      string(st.Stage),
			Status:     string(st.Status),
			StartedAt:  st.StartedAt,
			DurationMS: st.DurationMS,
			Error:      st.Error,
		})
	}
	return out
}
