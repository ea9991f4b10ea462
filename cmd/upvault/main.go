package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/upvault/upvault/modules/files"
	"github.com/upvault/upvault/pkg/config"
	"github.com/upvault/upvault/pkg/httpserver"
	"github.com/upvault/upvault/pkg/logger"
)

type appConfig struct {
	AppEnv         string `env:"APP_ENV" envDefault:"development"`
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"s3"`
	MaxUploadSize  int64  `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	config.MustLoad(&cfg)

	var serverCfg httpserver.Config
	config.MustLoad(&serverCfg)

	log := logger.New(logger.WithEnvironment(cfg.AppEnv, "upvault"))
	logger.SetAsDefault(log)

	store, err := newStore(ctx, files.Backend(cfg.StorageBackend))
	if err != nil {
		return fmt.Errorf("initialize storage backend: %w", err)
	}
	log.Info("storage backend ready", logger.Backend(cfg.StorageBackend))

	handler := files.NewHandler(store, log.With(logger.Component("files")), cfg.MaxUploadSize)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", httpserver.HealthCheckHandler(log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, store.Ping))
	r.Mount("/v1/files", handler.Routes())

	srv := httpserver.NewFromConfig(serverCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}

// newStore builds the Store implementation selected by STORAGE_BACKEND.
func newStore(ctx context.Context, backend files.Backend) (files.Store, error) {
	switch backend {
	case files.BackendS3:
		var cfg files.S3Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return files.NewS3Store(ctx, cfg)
	case files.BackendDynamoDB:
		var cfg files.DynamoConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return files.NewDynamoStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
