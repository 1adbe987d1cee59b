// Package blob opens the attachment store selected by configuration.
package blob

import (
	"context"
	"fmt"

	"estatecore/internal/blob/core"
	"estatecore/internal/infra/blob/fs"
	"estatecore/internal/infra/blob/memory"
	"estatecore/internal/infra/blob/s3"
)

// Config selects a backend. Driver is one of fs, s3 or memory; empty means fs.
type Config struct {
	Driver string
	FSRoot string
	S3     s3.Config
}

// Open returns the configured store.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	driver := core.Driver(cfg.Driver)
	if driver == "" {
		driver = core.DriverFilesystem
	}
	switch driver {
	case core.DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
