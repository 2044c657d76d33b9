package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/fundood999/agentic-ai-backend/internal/config"
	"github.com/fundood999/agentic-ai-backend/internal/intake"
	"github.com/fundood999/agentic-ai-backend/internal/metrics"
	"github.com/fundood999/agentic-ai-backend/internal/storage"
	"github.com/fundood999/agentic-ai-backend/internal/upload"
)

// newBackend builds the storage backend named by cfg.Backend and, if asked,
// makes sure its bucket exists.
func newBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	var backend storage.Backend

	switch cfg.Backend {
	case config.BackendGCS:
		var opts []option.ClientOption
		if cfg.KeyFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.KeyFile))
		}
		g, err := storage.NewGCS(ctx, storage.GCSConfig{
			Bucket:    cfg.Bucket,
			ProjectID: cfg.ProjectID,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise GCS backend: %w", err)
		}
		backend = g

	case config.BackendS3:
		m, err := storage.NewMinio(storage.MinioConfig{
			Endpoint:   cfg.S3Endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Bucket:     cfg.Bucket,
			UseSSL:     cfg.S3UseSSL,
			Region:     cfg.S3Region,
			PublicBase: cfg.S3PublicBase,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialise S3 backend: %w", err)
		}
		backend = m

	case config.BackendDisk:
		d, err := storage.NewDisk(cfg.DiskDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise disk backend: %w", err)
		}
		backend = d

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if ensurer, ok := backend.(storage.BucketEnsurer); ok && cfg.EnsureBucket {
		if err := ensurer.EnsureBucket(ctx); err != nil {
			closeBackend(backend)
			return nil, err
		}
	}

	return backend, nil
}

func closeBackend(backend storage.Backend) {
	if c, ok := backend.(io.Closer); ok {
		_ = c.Close()
	}
}

// newService wires both strategies over backend using the allocator cfg
// asks for.
func newService(cfg *config.Config, backend storage.Backend, log *slog.Logger, m *metrics.Metrics) *upload.Service {
	var allocOpts []intake.AllocatorOption
	if cfg.UniqueKeys {
		allocOpts = append(allocOpts, intake.WithUniqueSuffix())
	}

	return upload.NewService(upload.Deps{
		Backend:   backend,
		Allocator: intake.NewAllocator(allocOpts...),
		Logger:    log,
		Metrics:   m,
	})
}
