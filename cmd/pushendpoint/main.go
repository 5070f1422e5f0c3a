package main

import (
	"context"
	"flag"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/10allday-services/autopush-endpoint/internal/app"
	"github.com/10allday-services/autopush-endpoint/internal/platform/delivery"
	"github.com/10allday-services/autopush-endpoint/internal/platform/metrics"
	"github.com/10allday-services/autopush-endpoint/internal/platform/persistence"
	"github.com/10allday-services/autopush-endpoint/pkg/push"
	"github.com/10allday-services/autopush-endpoint/pushendpoint"
	"github.com/10allday-services/autopush-endpoint/pushendpoint/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service config file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.RunMode != "production" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	storage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build storage backend")
	}

	var sink push.Metrics = metrics.Nop{}
	if cfg.StatsdAddr != "" {
		statsdSink, err := metrics.New(cfg.StatsdAddr, cfg.StatsdNamespace, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create statsd client")
		}
		defer func() { _ = statsdSink.Close() }()
		sink = statsdSink
	}

	service, err := pushendpoint.New(cfg, &pushendpoint.Dependencies{
		Storage:  storage,
		Delivery: delivery.New(nil, logger),
		Metrics:  sink,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble service")
	}

	app.Run(ctx, logger, service)
}

func buildStorage(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (push.Storage, error) {
	switch cfg.StorageType {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return persistence.NewRedisStorage(client, cfg.MessagePartition, logger)
	default:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, err
		}
		return persistence.NewFirestoreStorage(client, cfg.MessagePartition, logger)
	}
}
