package retention

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/btrfs-backup/internal/services/executor"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDir = "/snapshots/home"

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// mockDeleter removes snapshots from the in-memory filesystem and records the order.
type mockDeleter struct {
	fs         afero.Fs
	deleteFunc func(ctx context.Context, path string) error
	deleted    []string
}

func (m *mockDeleter) DeleteSnapshot(ctx context.Context, path string) error {
	if m.deleteFunc != nil {
		if err := m.deleteFunc(ctx, path); err != nil {
			return err
		}
	}
	m.deleted = append(m.deleted, path)
	return m.fs.RemoveAll(path)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestService(t *testing.T) (*Impl, *mockDeleter, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testDir, 0o755))
	deleter := &mockDeleter{fs: fs}
	return NewWithFs(testLogger(), deleter, fs), deleter, fs
}

// addSnapshot creates a snapshot directory whose modification time is
// baseTime plus offset hours.
func addSnapshot(t *testing.T, fs afero.Fs, name string, offset int) string {
	t.Helper()
	path := filepath.Join(testDir, name)
	require.NoError(t, fs.MkdirAll(path, 0o755))
	mtime := baseTime.Add(time.Duration(offset) * time.Hour)
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
	return path
}

func remaining(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, testDir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func TestList_SortsByModTimeNotName(t *testing.T) {
	svc, _, fs := newTestService(t)
	// Names sort in the opposite order of their modification times.
	addSnapshot(t, fs, "home_snapshot_2024-03-03", 1)
	addSnapshot(t, fs, "home_snapshot_2024-03-02", 2)
	addSnapshot(t, fs, "home_snapshot_2024-03-01", 3)

	entries, err := svc.List(testDir)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "home_snapshot_2024-03-03", entries[0].Name)
	assert.Equal(t, "home_snapshot_2024-03-02", entries[1].Name)
	assert.Equal(t, "home_snapshot_2024-03-01", entries[2].Name)
	assert.Equal(t, filepath.Join(testDir, "home_snapshot_2024-03-03"), entries[0].Path)
	assert.True(t, entries[0].IsDir)
	assert.True(t, entries[0].ModTime.Equal(baseTime.Add(time.Hour)))
}

func TestList_IncludesStrayFiles(t *testing.T) {
	svc, _, fs := newTestService(t)
	addSnapshot(t, fs, "home_snapshot_a", 2)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, fs.Chtimes(filepath.Join(testDir, "notes.txt"), baseTime, baseTime))

	entries, err := svc.List(testDir)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "notes.txt", entries[0].Name)
	assert.False(t, entries[0].IsDir)
}

func TestList_MissingDirectory(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.List("/snapshots/nope")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMetadata)
}

func TestEnforce_KeepsNewest(t *testing.T) {
	tests := []struct {
		name        string
		existing    int
		keep        int
		wantDeleted int
	}{
		{name: "more than keep", existing: 7, keep: 5, wantDeleted: 2},
		{name: "exactly keep", existing: 5, keep: 5, wantDeleted: 0},
		{name: "fewer than keep", existing: 2, keep: 5, wantDeleted: 0},
		{name: "empty dir", existing: 0, keep: 5, wantDeleted: 0},
		{name: "keep zero", existing: 4, keep: 0, wantDeleted: 4},
		{name: "keep one", existing: 4, keep: 1, wantDeleted: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deleter, fs := newTestService(t)
			var paths []string
			for i := 0; i < tt.existing; i++ {
				paths = append(paths, addSnapshot(t, fs, string(rune('a'+tt.existing-i))+"_snap", i))
			}

			result, err := svc.Enforce(context.Background(), testDir, tt.keep)

			require.NoError(t, err)
			assert.Len(t, result.Removed, tt.wantDeleted)
			assert.Equal(t, tt.existing-tt.wantDeleted, result.Kept)
			assert.Len(t, remaining(t, fs), tt.existing-tt.wantDeleted)

			// Oldest first, in modification-time order.
			if tt.wantDeleted > 0 {
				assert.Equal(t, paths[:tt.wantDeleted], deleter.deleted)
			} else {
				assert.Empty(t, deleter.deleted)
			}
		})
	}
}

func TestEnforce_Idempotent(t *testing.T) {
	svc, deleter, fs := newTestService(t)
	for i := 0; i < 6; i++ {
		addSnapshot(t, fs, "snap_"+string(rune('a'+i)), i)
	}

	_, err := svc.Enforce(context.Background(), testDir, 3)
	require.NoError(t, err)
	require.Len(t, deleter.deleted, 3)

	result, err := svc.Enforce(context.Background(), testDir, 3)

	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	assert.Equal(t, 3, result.Kept)
	assert.Len(t, deleter.deleted, 3)
	assert.ElementsMatch(t, []string{"snap_d", "snap_e", "snap_f"}, remaining(t, fs))
}

func TestEnforce_StopsOnFirstFailure(t *testing.T) {
	svc, deleter, fs := newTestService(t)
	t1 := addSnapshot(t, fs, "snap_1", 1)
	t2 := addSnapshot(t, fs, "snap_2", 2)
	addSnapshot(t, fs, "snap_3", 3)
	addSnapshot(t, fs, "snap_4", 4)
	addSnapshot(t, fs, "snap_5", 5)

	deleteErr := &executor.ExecError{Command: "btrfs", Args: []string{"subvolume", "delete", t2}, ExitCode: 1, Err: errors.New("exit status 1")}
	deleter.deleteFunc = func(ctx context.Context, path string) error {
		if path == t2 {
			return deleteErr
		}
		return nil
	}

	result, err := svc.Enforce(context.Background(), testDir, 1)

	require.Error(t, err)
	var execErr *executor.ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, err.Error(), t2)

	// Only the entry before the failure was deleted.
	assert.Equal(t, []string{t1}, result.Removed)
	assert.Equal(t, []string{t1}, deleter.deleted)
	assert.Equal(t, 4, result.Kept)
	assert.ElementsMatch(t, []string{"snap_2", "snap_3", "snap_4", "snap_5"}, remaining(t, fs))
}

func TestEnforce_DeletesStrayFiles(t *testing.T) {
	svc, deleter, fs := newTestService(t)
	stray := filepath.Join(testDir, "README")
	require.NoError(t, afero.WriteFile(fs, stray, []byte("x"), 0o644))
	require.NoError(t, fs.Chtimes(stray, baseTime, baseTime))
	addSnapshot(t, fs, "snap_1", 1)

	_, err := svc.Enforce(context.Background(), testDir, 1)

	require.NoError(t, err)
	assert.Equal(t, []string{stray}, deleter.deleted)
}

func TestEnforce_EqualModTimes(t *testing.T) {
	svc, deleter, fs := newTestService(t)
	addSnapshot(t, fs, "snap_a", 1)
	addSnapshot(t, fs, "snap_b", 1)
	newest := addSnapshot(t, fs, "snap_c", 2)

	_, err := svc.Enforce(context.Background(), testDir, 1)

	require.NoError(t, err)
	assert.Len(t, deleter.deleted, 2)
	assert.NotContains(t, deleter.deleted, newest)
}

func TestEnforce_NegativeKeep(t *testing.T) {
	svc, deleter, fs := newTestService(t)
	addSnapshot(t, fs, "snap_a", 1)

	_, err := svc.Enforce(context.Background(), testDir, -1)

	require.Error(t, err)
	assert.Empty(t, deleter.deleted)
}

func TestEnforce_ListFailure(t *testing.T) {
	svc, deleter, _ := newTestService(t)

	_, err := svc.Enforce(context.Background(), "/snapshots/missing", 1)

	assert.ErrorIs(t, err, ErrMetadata)
	assert.Empty(t, deleter.deleted)
}

func TestEnforce_CanceledContext(t *testing.T) {
	svc, deleter, fs := newTestService(t)
	addSnapshot(t, fs, "snap_a", 1)
	addSnapshot(t, fs, "snap_b", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Enforce(ctx, testDir, 0)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, deleter.deleted)
	assert.Equal(t, 2, result.Kept)
}

func TestPlan(t *testing.T) {
	svc, deleter, fs := newTestService(t)
	addSnapshot(t, fs, "snap_1", 1)
	addSnapshot(t, fs, "snap_2", 2)
	addSnapshot(t, fs, "snap_3", 3)
	addSnapshot(t, fs, "snap_4", 4)

	plan, err := svc.Plan(testDir, 2)

	require.NoError(t, err)
	assert.Equal(t, testDir, plan.Dir)
	require.Len(t, plan.Delete, 2)
	require.Len(t, plan.Keep, 2)
	assert.Equal(t, "snap_1", plan.Delete[0].Name)
	assert.Equal(t, "snap_2", plan.Delete[1].Name)
	assert.Equal(t, "snap_3", plan.Keep[0].Name)
	assert.Equal(t, "snap_4", plan.Keep[1].Name)
	assert.Empty(t, deleter.deleted)
	assert.Len(t, remaining(t, fs), 4)
}

func TestPlan_KeepExceedsCount(t *testing.T) {
	svc, _, fs := newTestService(t)
	addSnapshot(t, fs, "snap_1", 1)

	plan, err := svc.Plan(testDir, 5)

	require.NoError(t, err)
	assert.Empty(t, plan.Delete)
	assert.Len(t, plan.Keep, 1)
}
