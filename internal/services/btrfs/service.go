// Package btrfs creates and deletes btrfs subvolume snapshots.
package btrfs

import (
	"context"

	"github.com/fgeck/btrfs-backup/internal/services/executor"
	"github.com/rs/zerolog"
)

// Service defines the interface for snapshot operations.
type Service interface {
	CreateSnapshot(ctx context.Context, source, dest string) error
	DeleteSnapshot(ctx context.Context, path string) error
}

// Impl implements the Service interface.
type Impl struct {
	executor executor.Executor
	binary   string
	logger   zerolog.Logger
}

// New creates a new btrfs service running binary through a privilege wrapper.
func New(logger zerolog.Logger, binary, wrapper string) *Impl {
	return NewWithExecutor(logger, binary, executor.New(logger, wrapper))
}

// NewWithExecutor creates a new btrfs service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, binary string, exec executor.Executor) *Impl {
	return &Impl{
		executor: exec,
		binary:   binary,
		logger:   logger,
	}
}

// CreateSnapshot snapshots the subvolume at source into dest. dest must not exist.
func (s *Impl) CreateSnapshot(ctx context.Context, source, dest string) error {
	s.logger.Info().Str("source", source).Str("dest", dest).Msg("creating snapshot")
	return s.executor.RunPrivileged(ctx, s.binary, "subvolume", "snapshot", source, dest)
}

// DeleteSnapshot deletes the subvolume at path.
func (s *Impl) DeleteSnapshot(ctx context.Context, path string) error {
	s.logger.Info().Str("path", path).Msg("deleting snapshot")
	return s.executor.RunPrivileged(ctx, s.binary, "subvolume", "delete", path)
}
