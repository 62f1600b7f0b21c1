package main

import (
	"fmt"

	"github.com/fgeck/btrfs-backup/internal/config"
	"github.com/fgeck/btrfs-backup/internal/models"
	"github.com/fgeck/btrfs-backup/internal/services/runner"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without executing any snapshot operations.

A missing file is valid and means all defaults. A file that exists but is not
valid TOML is an error; keys with the wrong type fall back to their default
and are reported as warnings.`,
	RunE: validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// Print configuration summary
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Snapshots dir: %s\n", cfg.SnapshotsDir)
	fmt.Fprintf(out, "  Backups to keep: %d\n", cfg.BackupsToKeep)
	if cfg.PrivilegeWrapper == "" {
		fmt.Fprintf(out, "  Command: %s (no privilege wrapper)\n", cfg.BtrfsBinary)
	} else {
		fmt.Fprintf(out, "  Command: %s %s\n", cfg.PrivilegeWrapper, cfg.BtrfsBinary)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Targets:")
	for _, target := range models.Targets {
		fmt.Fprintf(out, "  %s -> %s\n", target.Source, runner.SnapshotDir(*cfg, target))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintf(out, "  Bot Token: (configured)\n")
	}

	if cfg.BackupsToKeep == 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Warning: backups_to_keep is 0, every run deletes all snapshots (default is %d).\n", config.DefaultBackupsToKeep)
	}

	return nil
}
