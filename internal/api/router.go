package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hyperlocal/internal/api/handlers/http/admin"
	"hyperlocal/internal/api/handlers/http/incidents"
	"hyperlocal/internal/api/handlers/http/system"
	"hyperlocal/internal/config"
	"hyperlocal/internal/middleware"
	"hyperlocal/internal/realtime"
	"hyperlocal/internal/service"
)

type Server struct {
	logger *slog.Logger
	router *chi.Mux
	cfg    config.Config
}

func NewServer(cfg *config.Config, logger *slog.Logger, svc *service.Service, transport *realtime.Transport, checks ...system.Check) *Server {
	incidentHandler := incidents.NewHandler(logger, svc)
	adminHandler := admin.NewHandler(logger, svc)
	systemHandler := system.NewHandler(logger, checks...)

	r := InitRouter(cfg, incidentHandler, adminHandler, systemHandler, transport, logger)

	return &Server{
		logger: logger,
		router: r,
		cfg:    *cfg,
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func InitRouter(
	cfg *config.Config,
	incidentHandler *incidents.Handler,
	adminHandler *admin.Handler,
	systemHandler *system.Handler,
	transport *realtime.Transport,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewMux()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.APIKeyHeader},
		MaxAge:         300,
	}))
	// request_id must be set before chi's Logger reads it
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)

	r.Route("/api", func(api chi.Router) {
		if cfg.Http.WriteTimeout > 0 {
			api.Use(chimw.Timeout(cfg.Http.WriteTimeout))
		}

		api.Route("/incidents", func(ir chi.Router) {
			ir.Get("/", incidentHandler.List)
			// confirmations are cheap increments and come in bursts near an incident
			ir.Post("/{id}/confirm", incidentHandler.Confirm)

			ir.Group(func(wr chi.Router) {
				wr.Use(middleware.Limit(5, 20, 10*time.Minute, logger))

				wr.Post("/", incidentHandler.Create)
				wr.Delete("/{id}", incidentHandler.Delete)
			})
		})

		api.Route("/admin", func(ar chi.Router) {
			ar.Use(middleware.APIKeyMiddleware(cfg.APIKey))
			ar.Use(middleware.Limit(2, 5, 10*time.Minute, logger))

			ar.Get("/stats", adminHandler.AdminStats)
		})
	})

	r.Get("/ws", transport.ServeWS)
	r.Get("/events", transport.ServeSSE)

	r.Get("/health", systemHandler.SystemHealth)
	r.Get("/readyz", systemHandler.SystemReady)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.Http.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	// WriteTimeout stays zero: /ws and /events hold the connection open.
	srv := &http.Server{
		Addr:              port,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Http.ReadTimeout,
		IdleTimeout:       30 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("Starting HTTP server",
			slog.String("addr", srv.Addr),
			slog.Duration("read_timeout", s.cfg.Http.ReadTimeout),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("ListenAndServe error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server", slog.String("reason", ctx.Err().Error()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Http.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Server shutdown failed", slog.Any("error", err))
			return err
		}
		return nil

	case err := <-errChan:
		return err
	}
}
