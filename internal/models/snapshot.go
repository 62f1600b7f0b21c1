package models

import "time"

// SnapshotEntry is one entry found in a snapshot directory.
type SnapshotEntry struct {
	Name    string
	Path    string
	ModTime time.Time
	IsDir   bool
}

// RetentionPlan splits a directory listing into the entries a retention
// pass keeps and the entries it deletes, oldest first.
type RetentionPlan struct {
	Dir    string
	Keep   []SnapshotEntry
	Delete []SnapshotEntry
}

// RetentionResult holds the result of enforcing retention on one directory.
type RetentionResult struct {
	Dir      string
	Kept     int
	Removed  []string // paths, in deletion order
	Duration time.Duration
}

// RunResult holds the result of a complete backup run.
type RunResult struct {
	Timestamp string
	Created   []string
	Retention []RetentionResult
	DryRun    bool
	Duration  time.Duration
}

// SnapshotsRemoved returns the number of snapshots deleted across all directories.
func (r *RunResult) SnapshotsRemoved() int {
	n := 0
	for _, res := range r.Retention {
		n += len(res.Removed)
	}
	return n
}

// SnapshotsKept returns the number of snapshots kept across all directories.
func (r *RunResult) SnapshotsKept() int {
	n := 0
	for _, res := range r.Retention {
		n += res.Kept
	}
	return n
}
