package main

import (
	"fmt"

	"github.com/fgeck/btrfs-backup/internal/models"
	"github.com/fgeck/btrfs-backup/internal/services/retention"
	"github.com/fgeck/btrfs-backup/internal/services/runner"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, oldest first, with their retention status",
	Long: `List the entries of each snapshot directory ordered by modification time,
the order retention deletes them in. Entries marked "excess" are beyond
backups_to_keep and would be deleted by the next retention pass.

Entries marked with "!" are not directories. Retention does not filter them
out: they count towards backups_to_keep and are deleted like snapshots.`,
	RunE: listSnapshots,
}

func listSnapshots(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	retentionSvc := retention.NewWithFs(log.Logger, nil, fs)

	tbl := tablewriter.NewWriter(cmd.OutOrStdout())
	tbl.SetAutoFormatHeaders(false)
	tbl.SetBorder(false)
	tbl.SetHeader([]string{"Target", "Name", "Modified", "Status"})

	for _, target := range models.Targets {
		dir := runner.SnapshotDir(*cfg, target)

		exists, err := afero.DirExists(fs, dir)
		if err != nil {
			return err
		}
		if !exists {
			tbl.Append([]string{target.Name, "(no snapshot directory)", "", ""})
			continue
		}

		plan, err := retentionSvc.Plan(dir, cfg.BackupsToKeep)
		if err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("failed to list snapshots")
			return err
		}

		for _, entry := range plan.Delete {
			tbl.Append(entryRow(target, entry, "excess"))
		}
		for _, entry := range plan.Keep {
			tbl.Append(entryRow(target, entry, "keep"))
		}
	}

	tbl.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "\nbackups_to_keep: %d per target\n", cfg.BackupsToKeep)

	return nil
}

func entryRow(target models.Target, entry models.SnapshotEntry, status string) []string {
	name := entry.Name
	if !entry.IsDir {
		name = "! " + name
	}
	return []string{target.Name, name, entry.ModTime.Format("2006-01-02 15:04:05"), status}
}
