// Package pushendpoint assembles the endpoint routing service: config,
// storage backend, delivery client, router, and the HTTP server that fronts
// them.
package pushendpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/10allday-services/autopush-endpoint/internal/api"
	"github.com/10allday-services/autopush-endpoint/internal/router"
	"github.com/10allday-services/autopush-endpoint/pkg/push"
	"github.com/10allday-services/autopush-endpoint/pushendpoint/config"
)

// Dependencies holds the external services the endpoint needs to operate.
// This struct is used for dependency injection: production wiring lives in
// cmd, tests supply fakes.
type Dependencies struct {
	Storage  push.Storage
	Delivery push.DeliveryClient
	Metrics  push.Metrics
}

// Service is the assembled endpoint service.
type Service struct {
	server *http.Server
	logger zerolog.Logger
}

// New wires up the service from config and dependencies.
func New(cfg *config.AppConfig, deps *Dependencies, logger zerolog.Logger) (*Service, error) {
	endpointURL, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	webpushRouter, err := router.New(deps.Storage, deps.Delivery, deps.Metrics, endpointURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	apiHandler, err := api.NewAPI(webpushRouter, deps.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create API: %w", err)
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Mount("/", apiHandler.Routes())

	return &Service{
		server: &http.Server{
			Addr:              ":" + cfg.APIPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "pushendpoint").Logger(),
	}, nil
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting endpoint service")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("endpoint server failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down endpoint service")
	return s.server.Shutdown(ctx)
}
