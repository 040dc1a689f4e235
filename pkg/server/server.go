// Package server exposes the research engine over HTTP: an SSE chat
// stream, a WebSocket transport, session cancel and PDF export, plus
// health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/export"
)

type Server struct {
	cfg      *config.ServerConfig
	engine   *Engine
	exporter *export.PDFExporter
	logger   *slog.Logger

	httpServer *http.Server
}

func New(cfg *config.ServerConfig, engine *Engine) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		exporter: export.NewPDFExporter(),
		logger:   slog.Default(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/healthz", s.handleHealth)
	if cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/stream", s.handleChatStream)
		r.Post("/stream/{sessionID}/cancel", s.handleCancel)
		r.Get("/stream/{sessionID}/pdf", s.handlePDF)
		r.Get("/stream/{sessionID}/events", s.handleEvents)
	})
	r.Get("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
