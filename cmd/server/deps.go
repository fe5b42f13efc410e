package main

import (
	"context"
	"fmt"

	"github.com/iyunix/go-telemed/internal/blob"
	"github.com/iyunix/go-telemed/internal/config"
	"github.com/iyunix/go-telemed/internal/events"
	"github.com/iyunix/go-telemed/internal/repository"
	"github.com/iyunix/go-telemed/internal/repository/gormstore"
	"github.com/iyunix/go-telemed/internal/repository/memory"
	"github.com/iyunix/go-telemed/internal/repository/mongostore"
	"github.com/iyunix/go-telemed/internal/services"
)

type dependencies struct {
	store      repository.Store
	blobs      blob.Store
	publisher  events.Publisher
	eventsName string
}

func buildDependencies(ctx context.Context, cfg *config.ServerConfig, log services.Logger) (*dependencies, error) {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	deps := &dependencies{store: store, blobs: blobs, publisher: events.Noop{}, eventsName: "none"}
	if cfg.KafkaBrokers != "" {
		k, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaAnalyticsTopic)
		if err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		deps.publisher = events.NewRetrying(k, events.DefaultRetryConfig(), log)
		deps.eventsName = "kafka:" + cfg.KafkaAnalyticsTopic
	}
	return deps, nil
}

func openStore(ctx context.Context, cfg *config.ServerConfig, log services.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite, config.StorePostgres:
		s, err := gormstore.Open(cfg.StoreDriver, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMongo:
		s, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func openBlobs(ctx context.Context, cfg *config.ServerConfig) (blob.Store, error) {
	if cfg.BlobDriver != config.BlobS3 {
		return blob.NewMemory(), nil
	}
	s3, err := blob.NewS3(ctx, blob.S3Config{
		Bucket:    cfg.BlobS3Bucket,
		Region:    cfg.BlobS3Region,
		Endpoint:  cfg.BlobS3Endpoint,
		PathStyle: cfg.BlobS3PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3, nil
}

func (d *dependencies) close(log services.Logger) {
	if err := d.publisher.Close(); err != nil {
		log.Warn("Failed to close event publisher", "error", err)
	}
	if err := d.store.Close(context.Background()); err != nil {
		log.Warn("Failed to close store", "error", err)
	}
}
