// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fgeck/btrfs-backup/internal/models"
	"github.com/fgeck/btrfs-backup/internal/services/btrfs"
	"github.com/fgeck/btrfs-backup/internal/services/retention"
	"github.com/fgeck/btrfs-backup/internal/services/telegram"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// TimestampFormat names snapshots with second granularity; the names sort
// lexically in creation order but are only for humans.
const TimestampFormat = "2006-01-02_15-04-05"

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.Config) (*models.RunResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	fs           afero.Fs
	btrfsSvc     btrfs.Service
	retentionSvc retention.Service
	telegramSvc  telegram.Service
	logger       zerolog.Logger
	now          func() time.Time
	hostname     string
}

// New creates a new runner service for the tool and privilege wrapper named in cfg.
func New(logger zerolog.Logger, cfg models.Config) *Impl {
	btrfsSvc := btrfs.New(logger, cfg.BtrfsBinary, cfg.PrivilegeWrapper)
	fs := afero.NewOsFs()

	return NewWithServices(
		logger,
		fs,
		btrfsSvc,
		retention.NewWithFs(logger, btrfsSvc, fs),
		telegram.New(logger),
		time.Now,
	)
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	fs afero.Fs,
	btrfsSvc btrfs.Service,
	retentionSvc retention.Service,
	telegramSvc telegram.Service,
	now func() time.Time,
) *Impl {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Impl{
		fs:           fs,
		btrfsSvc:     btrfsSvc,
		retentionSvc: retentionSvc,
		telegramSvc:  telegramSvc,
		logger:       logger,
		now:          now,
		hostname:     hostname,
	}
}

// SnapshotDir returns the directory holding the snapshots of target.
func SnapshotDir(cfg models.Config, target models.Target) string {
	return filepath.Join(cfg.SnapshotsDir, target.Name)
}

// SnapshotPath returns the path of the snapshot of target taken at timestamp.
func SnapshotPath(cfg models.Config, target models.Target, timestamp string) string {
	return filepath.Join(SnapshotDir(cfg, target), fmt.Sprintf("%s_snapshot_%s", target.Name, timestamp))
}

// Run executes the complete backup workflow. A failed step aborts every later
// step; steps that already completed are not rolled back.
//
//nolint:gocognit,gocyclo // backup workflow has multiple steps by design
func (s *Impl) Run(ctx context.Context, cfg models.Config) (*models.RunResult, error) {
	startTime := s.now()
	var failedStep string
	var runErr error

	result := &models.RunResult{
		Timestamp: startTime.Format(TimestampFormat),
		DryRun:    cfg.DryRun,
	}

	s.logger.Info().
		Str("snapshots_dir", cfg.SnapshotsDir).
		Int("keep", cfg.BackupsToKeep).
		Bool("dry_run", cfg.DryRun).
		Msg("starting backup run")

	defer func() {
		// Send notification if configured
		if cfg.Telegram != nil && !cfg.DryRun {
			s.sendNotification(ctx, cfg, startTime, result, failedStep, runErr)
		}
	}()

	// Step 1: Snapshot directories
	failedStep = "directories"
	for _, target := range models.Targets {
		dir := SnapshotDir(cfg, target)
		if cfg.DryRun {
			s.logger.Info().Str("dir", dir).Msg("dry run: would ensure snapshot directory")
			continue
		}
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			runErr = err
			return result, fmt.Errorf("creating snapshot directories failed: %w", err)
		}
	}

	// Step 2: Snapshots, one target after the other
	for _, target := range models.Targets {
		failedStep = "snapshot " + target.Name
		dest := SnapshotPath(cfg, target, result.Timestamp)

		if cfg.DryRun {
			s.logger.Info().
				Str("source", target.Source).
				Str("dest", dest).
				Msg("dry run: would create snapshot")
			continue
		}

		if err := s.btrfsSvc.CreateSnapshot(ctx, target.Source, dest); err != nil {
			runErr = err
			return result, fmt.Errorf("snapshot %s failed: %w", target.Name, err)
		}
		result.Created = append(result.Created, dest)

		s.logger.Info().Str("path", dest).Msg("snapshot created")
	}

	// Step 3: Retention, per target directory
	for _, target := range models.Targets {
		failedStep = "retention " + target.Name
		dir := SnapshotDir(cfg, target)

		if cfg.DryRun {
			if err := s.planRetention(dir, cfg.BackupsToKeep); err != nil {
				runErr = err
				return result, fmt.Errorf("retention %s failed: %w", target.Name, err)
			}
			continue
		}

		res, err := s.retentionSvc.Enforce(ctx, dir, cfg.BackupsToKeep)
		if res != nil {
			result.Retention = append(result.Retention, *res)
		}
		if err != nil {
			runErr = err
			return result, fmt.Errorf("retention %s failed: %w", target.Name, err)
		}
	}

	// Success - clear failedStep
	failedStep = ""
	result.Duration = time.Since(startTime)
	s.logger.Info().
		Strs("created", result.Created).
		Int("removed", result.SnapshotsRemoved()).
		Dur("duration", result.Duration).
		Msg("backup run completed successfully")

	return result, nil
}

func (s *Impl) planRetention(dir string, keep int) error {
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Info().Str("dir", dir).Msg("dry run: snapshot directory does not exist yet")
		return nil
	}

	// The real run adds one snapshot before retention, so the existing
	// entries compete for one slot less.
	existingKeep := keep - 1
	if existingKeep < 0 {
		existingKeep = 0
	}

	plan, err := s.retentionSvc.Plan(dir, existingKeep)
	if err != nil {
		return err
	}

	for _, entry := range plan.Delete {
		s.logger.Info().
			Str("path", entry.Path).
			Time("modified", entry.ModTime).
			Msg("dry run: would delete snapshot")
	}
	if keep == 0 {
		s.logger.Info().Str("dir", dir).Msg("dry run: would also delete the snapshot created by this run")
	}

	return nil
}

func (s *Impl) sendNotification(
	ctx context.Context,
	cfg models.Config,
	startTime time.Time,
	result *models.RunResult,
	failedStep string,
	runErr error,
) {
	msg := models.TelegramMessage{
		Success:          runErr == nil,
		Host:             s.hostname,
		SnapshotsDir:     cfg.SnapshotsDir,
		StartTime:        startTime,
		Duration:         time.Since(startTime),
		Created:          result.Created,
		SnapshotsRemoved: result.SnapshotsRemoved(),
		SnapshotsKept:    result.SnapshotsKept(),
	}

	if runErr != nil {
		msg.FailedStep = failedStep
		msg.ErrorMessage = runErr.Error()
	}

	res, err := s.telegramSvc.SendNotification(ctx, *cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if res.Error != nil {
		s.logger.Error().Err(res.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
