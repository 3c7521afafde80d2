package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	v1 "github.com/OCAP2/mocap/internal/export/v1"
	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/pkg/core"
)

// StatusProvider reports what the capture system is doing right now.
type StatusProvider interface {
	Mode() core.OperationMode
	SessionID() string
}

// ServerConfig configures the catalog server.
type ServerConfig struct {
	APIKey string
	// RateLimit is requests per minute per client IP; zero disables limiting.
	RateLimit int
}

// ServerDependencies holds what the catalog server reads from.
type ServerDependencies struct {
	Storage storage.Backend
	Status  StatusProvider
	Logger  *slog.Logger
}

// Server exposes the recording catalog over HTTP.
type Server struct {
	cfg    ServerConfig
	store  storage.Backend
	status StatusProvider
	logger *slog.Logger
	router chi.Router
}

// NewServer builds the router. Status may be nil when no coordinator runs in
// this process.
func NewServer(cfg ServerConfig, deps ServerDependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		store:  deps.Storage,
		status: deps.Status,
		logger: deps.Logger,
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if s.cfg.RateLimit > 0 {
		r.Use(rateLimit(s.cfg.RateLimit, time.Minute))
	}

	r.Get("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/usage", s.handleUsage)
		r.Route("/recordings", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Get("/{name}", s.handleMetadata)
			r.Get("/{name}/export", s.handleExport)
			r.With(s.requireKey).Delete("/{name}", s.handleDelete)
		})
	})
	return r
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		}),
	)
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if s.cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusResponse struct {
	Mode      string `json:"mode"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, statusResponse{Mode: core.ModeReady.String()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:      s.status.Mode().String(),
		SessionID: s.status.SessionID(),
	})
}

type usageResponse struct {
	Bytes      uint64 `json:"bytes"`
	Recordings int    `json:"recordings"`
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	names, err := s.store.List()
	if err != nil {
		s.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Bytes:      s.store.TotalStorageUsed(),
		Recordings: len(names),
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	names, err := s.store.List()
	if err != nil {
		s.storageError(w, err)
		return
	}
	out := make([]core.RecordingMetadata, 0, len(names))
	for _, name := range names {
		// a recording deleted between List and Metadata is skipped
		if meta, ok := s.store.Metadata(name); ok {
			out = append(out, meta)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := storage.ValidateName(name); err != nil {
		s.storageError(w, err)
		return
	}
	meta, ok := s.store.Metadata(name)
	if !ok {
		s.storageError(w, storage.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := s.store.Load(name)
	if err != nil {
		s.storageError(w, err)
		return
	}
	data := &v1.RecordingData{Name: name, Recording: rec}
	if meta, ok := s.store.Metadata(name); ok {
		data.CreatedAt = meta.CreatedAt
	}
	writeJSON(w, http.StatusOK, v1.Build(data))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.Delete(name); err != nil {
		s.storageError(w, err)
		return
	}
	s.logger.Info("Recording deleted", "name", name, "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, storage.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error())
	case errors.Is(err, storage.ErrCorrupt):
		writeError(w, http.StatusUnprocessableEntity, "corrupt", err.Error())
	default:
		s.logger.Error("Storage request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "storage request failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
