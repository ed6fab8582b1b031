package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/MikeSquared-Agency/glossa/internal/processor"
)

// EventBus is the event connection reported by the status endpoint.
// *hermes.Client satisfies it.
type EventBus interface {
	Connected() bool
}

type Server struct {
	router   *chi.Mux
	events   EventBus
	port     int
	proc     *processor.Processor
	sessions *sessions
	validate *validator.Validate
	logger   *slog.Logger
}

func NewServer(port int, apiToken string, proc *processor.Processor, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		proc:     proc,
		sessions: newSessions(),
		validate: validator.New(),
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/glossa/status", s.status)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/analyses", s.createAnalysis)
		r.Get("/history", s.listHistory)
		r.Delete("/history/{timestamp}", s.deleteEntry)
		r.Post("/history/selection", s.updateSelection)
		r.Post("/history/delete-selected", s.deleteSelected)
		r.Get("/history/export", s.exportHistory)
		r.Get("/speech", s.speak)
	})

	return s
}

// SetEvents reports bus in the status payload.
func (s *Server) SetEvents(bus EventBus) {
	s.events = bus
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	nats := "disabled"
	if s.events != nil {
		nats = "disconnected"
		if s.events.Connected() {
			nats = "connected"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":    "glossa",
		"status":   "ready",
		"sessions": s.sessions.count(),
		"nats":     nats,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
