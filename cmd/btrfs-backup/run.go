package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/btrfs-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the snapshot workflow",
	Long: `Execute the complete snapshot workflow:
1. Create <snapshots_dir>/home and <snapshots_dir>/root (if missing)
2. Snapshot /home into home/home_snapshot_<timestamp>
3. Snapshot / into root/root_snapshot_<timestamp>
4. Delete the oldest entries of home/ beyond backups_to_keep
5. Delete the oldest entries of root/ beyond backups_to_keep
6. Send Telegram notification (if configured)

Any failure stops the run; completed steps are not rolled back.`,
	RunE: runBackup,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log what would be done without changing anything")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.DryRun = dryRun

	log.Info().
		Str("snapshots_dir", cfg.SnapshotsDir).
		Int("backups_to_keep", cfg.BackupsToKeep).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run backup
	runnerSvc := runner.New(log.Logger, *cfg)
	if _, err := runnerSvc.Run(ctx, *cfg); err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	if cfg.DryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run completed, nothing was changed.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Backup completed successfully.")
	return nil
}
