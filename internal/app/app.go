// Package app contains the shared logic for starting and stopping the
// service process.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/10allday-services/autopush-endpoint/pushendpoint"
)

const shutdownTimeout = 15 * time.Second

// Run executes the main application lifecycle: it starts the endpoint
// service, waits for an OS signal or a service failure, and performs a
// graceful shutdown.
func Run(ctx context.Context, logger zerolog.Logger, service *pushendpoint.Service) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := service.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Endpoint service failed")
			cancel()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal.")
	case <-ctx.Done():
		logger.Info().Msg("Context cancelled, initiating shutdown.")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Endpoint service shutdown failed.")
	}

	cancel()
	<-done
	logger.Info().Msg("Service shut down gracefully.")
}
