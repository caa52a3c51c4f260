// Package ops serves a small local HTTP surface for liveness checks and
// operator visibility (/healthz, /status).
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "trophybot/pkg/logx"
)

type Config struct {
	Addr string // default "127.0.0.1:8612"
}

// StatusFunc returns the JSON-serializable status snapshot.
type StatusFunc func() any

type Server struct {
	cfg    Config
	log    logx.Logger
	status StatusFunc

	srv *http.Server
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8612"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, log: log, status: status}
}

func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		var v any
		if s.status != nil {
			v = s.status()
		}
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Debug("status encode failed", logx.Err(err))
		}
	})

	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.log.Info("ops server listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("ops server failed", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("ops server shutdown", logx.Err(err))
	}
}
