// Package retention deletes the oldest snapshots in a directory beyond a
// configured count.
//
// Entries are ordered by filesystem modification time only; the timestamp in
// a snapshot's name is never consulted. Every entry in the directory is a
// candidate, including stray files that are not snapshots.
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fgeck/btrfs-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrMetadata is returned when a directory entry cannot be listed or stat'ed.
var ErrMetadata = errors.New("cannot read snapshot metadata")

// Service defines the interface for retention operations.
type Service interface {
	List(dir string) ([]models.SnapshotEntry, error)
	Plan(dir string, keep int) (*models.RetentionPlan, error)
	Enforce(ctx context.Context, dir string, keep int) (*models.RetentionResult, error)
}

// Deleter removes a single snapshot.
type Deleter interface {
	DeleteSnapshot(ctx context.Context, path string) error
}

// Impl implements the Service interface.
type Impl struct {
	fs      afero.Fs
	deleter Deleter
	logger  zerolog.Logger
}

// New creates a new retention service listing the OS filesystem.
func New(logger zerolog.Logger, deleter Deleter) *Impl {
	return NewWithFs(logger, deleter, afero.NewOsFs())
}

// NewWithFs creates a new retention service with a custom filesystem (for testing).
func NewWithFs(logger zerolog.Logger, deleter Deleter, fs afero.Fs) *Impl {
	return &Impl{
		fs:      fs,
		deleter: deleter,
		logger:  logger,
	}
}

// List returns every entry directly under dir, oldest first. Entries with
// equal modification times keep the order the directory listing produced.
func (s *Impl) List(dir string) ([]models.SnapshotEntry, error) {
	f, err := s.fs.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrMetadata, dir, err)
	}
	names, err := f.Readdirnames(-1)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrMetadata, dir, err)
	}

	entries := make([]models.SnapshotEntry, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)

		info, err := s.lstat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMetadata, path, err)
		}

		entries = append(entries, models.SnapshotEntry{
			Name:    name,
			Path:    path,
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModTime.Before(entries[j].ModTime)
	})

	s.logger.Debug().Str("dir", dir).Int("count", len(entries)).Msg("snapshots listed")
	return entries, nil
}

func (s *Impl) lstat(path string) (os.FileInfo, error) {
	if lstater, ok := s.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		return info, err
	}
	return s.fs.Stat(path)
}

// Plan computes which entries of dir a retention pass with keep would delete.
func (s *Impl) Plan(dir string, keep int) (*models.RetentionPlan, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must not be negative, got %d", keep)
	}

	entries, err := s.List(dir)
	if err != nil {
		return nil, err
	}

	excess := len(entries) - keep
	if excess < 0 {
		excess = 0
	}

	return &models.RetentionPlan{
		Dir:    dir,
		Delete: entries[:excess],
		Keep:   entries[excess:],
	}, nil
}

// Enforce deletes the oldest entries of dir until at most keep remain.
// The first failed deletion stops the pass; the returned result still
// lists the entries removed before it.
func (s *Impl) Enforce(ctx context.Context, dir string, keep int) (*models.RetentionResult, error) {
	start := time.Now()
	result := &models.RetentionResult{Dir: dir}

	if keep < 0 {
		return result, fmt.Errorf("keep count must not be negative, got %d", keep)
	}

	entries, err := s.List(dir)
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Str("dir", dir).
		Int("found", len(entries)).
		Int("keep", keep).
		Msg("applying retention")

	for len(entries) > keep {
		if err := ctx.Err(); err != nil {
			result.Kept = len(entries)
			result.Duration = time.Since(start)
			return result, err
		}

		oldest := entries[0]
		if !oldest.IsDir {
			s.logger.Warn().Str("path", oldest.Path).Msg("retention candidate is not a directory")
		}

		if err := s.deleter.DeleteSnapshot(ctx, oldest.Path); err != nil {
			result.Kept = len(entries)
			result.Duration = time.Since(start)
			return result, fmt.Errorf("deleting %s: %w", oldest.Path, err)
		}

		result.Removed = append(result.Removed, oldest.Path)
		entries = entries[1:]
	}

	result.Kept = len(entries)
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("dir", dir).
		Int("kept", result.Kept).
		Int("removed", len(result.Removed)).
		Msg("retention applied")

	return result, nil
}
