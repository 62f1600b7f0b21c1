// Package models contains the data structures used throughout btrfs-backup.
package models

// Config holds the complete configuration for a backup run.
type Config struct {
	BackupsToKeep    int
	SnapshotsDir     string
	PrivilegeWrapper string          // empty runs the tool without escalation
	BtrfsBinary      string
	Telegram         *TelegramConfig // nil if not configured
	DryRun           bool            // set from the command line, never from the file
}

// Target is a subvolume that gets snapshotted on every run.
type Target struct {
	Name   string // subdirectory of SnapshotsDir and snapshot name prefix
	Source string // mounted subvolume path
}

// Targets are the subvolumes snapshotted by a run, in order.
var Targets = []Target{
	{Name: "home", Source: "/home"},
	{Name: "root", Source: "/"},
}
