package store

import (
	"context"
	"fmt"
)

// BackendType selects which ArtifactStore implementation New constructs.
type BackendType string

const (
	BackendMemory     BackendType = "memory"
	BackendFilesystem BackendType = "filesystem"
	BackendS3         BackendType = "s3"
	BackendRedis      BackendType = "redis"
)

// Config is the union of settings every backend might need; only the
// fields relevant to Type are read.
type Config struct {
	Type BackendType

	// Filesystem
	BasePath string

	// S3
	S3 S3Config

	// Redis
	Redis RedisConfig
}

// New constructs the ArtifactStore selected by cfg.Type.
func New(ctx context.Context, cfg Config) (ArtifactStore, error) {
	switch cfg.Type {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFilesystem:
		return NewFilesystem(cfg.BasePath), nil
	case BackendS3:
		return NewS3(ctx, cfg.S3)
	case BackendRedis:
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Type)
	}
}
