// Package config assembles a bundle.Pusher from declarative configuration,
// loadable from the environment.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
	repomemory "github.com/datadist/dataset-distribute/pkg/datadist/repo/memory"
	repopg "github.com/datadist/dataset-distribute/pkg/datadist/repo/postgres"
	fsstorage "github.com/datadist/dataset-distribute/pkg/datadist/storage/fs"
	memorystorage "github.com/datadist/dataset-distribute/pkg/datadist/storage/memory"
	s3storage "github.com/datadist/dataset-distribute/pkg/datadist/storage/s3"
)

// Config describes which blob stores and registry back package pushes.
// A memory store is always registered; fs and s3 stores are added when
// configured.
type Config struct {
	DefaultStore string `env:"DATADIST_DEFAULT_STORE" env-default:"memory"`

	// Registry configuration
	RegistryType string `env:"DATADIST_REGISTRY_TYPE" env-default:"memory"` // "memory", "postgres"
	DatabaseURL  string `env:"DATADIST_DATABASE_URL"`

	// Filesystem store
	FSBaseDir string `env:"DATADIST_FS_BASE_DIR"`

	// S3 store
	S3Bucket          string `env:"DATADIST_S3_BUCKET"`
	S3Region          string `env:"DATADIST_S3_REGION"`
	S3Endpoint        string `env:"DATADIST_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"DATADIST_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"DATADIST_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"DATADIST_S3_USE_PATH_STYLE"`
	S3CreateBucket    bool   `env:"DATADIST_S3_CREATE_BUCKET"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RegistryType != "memory" && c.RegistryType != "postgres" {
		return errors.New("registry_type must be 'memory' or 'postgres'")
	}
	if c.RegistryType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	switch c.DefaultStore {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs_base_dir is required when the default store is fs")
		}
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("s3_bucket is required when the default store is s3")
		}
	default:
		return fmt.Errorf("unknown default store %q", c.DefaultStore)
	}
	return nil
}

// BuildPusher creates a bundle.Pusher from the configuration.
func (c *Config) BuildPusher(ctx context.Context) (*bundle.Pusher, error) {
	options := []bundle.PusherOption{
		bundle.WithBlobStore("memory", memorystorage.New()),
		bundle.WithDefaultStore(c.DefaultStore),
	}

	if c.FSBaseDir != "" {
		store, err := fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
		if err != nil {
			return nil, fmt.Errorf("failed to build fs store: %w", err)
		}
		options = append(options, bundle.WithBlobStore("fs", store))
	}

	if c.S3Bucket != "" {
		store, err := s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3Region,
			Bucket:                 c.S3Bucket,
			AccessKeyID:            c.S3AccessKeyID,
			SecretAccessKey:        c.S3SecretAccessKey,
			Endpoint:               c.S3Endpoint,
			UsePathStyle:           c.S3UsePathStyle,
			CreateBucketIfNotExist: c.S3CreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build s3 store: %w", err)
		}
		options = append(options, bundle.WithBlobStore("s3", store))
	}

	registry, err := c.buildRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	options = append(options, bundle.WithRegistry(registry))

	return bundle.NewPusher(options...)
}

func (c *Config) buildRegistry(ctx context.Context) (bundle.Registry, error) {
	switch c.RegistryType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unknown registry type %q", c.RegistryType)
	}
}
