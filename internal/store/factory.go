package store

import (
	"context"

	"github.com/csvleech/leech/internal/errors"
)

// Config is the subset of configuration the factory needs to build a
// Store; it mirrors config.StorageConfig without importing the config
// package, which would otherwise create an import cycle.
type Config struct {
	Type         string
	WorkDir      string
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// New builds the Store backend selected by cfg.Type. An empty Type
// selects the local filesystem backend rooted at cfg.WorkDir.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.WorkDir)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
	default:
		return nil, errors.NewConfigError(errors.CodeInvalidStorage, "unrecognized storage type "+cfg.Type)
	}
}
