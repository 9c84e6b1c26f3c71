package tagfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplayMkdirCreatesDirectory(t *testing.T) {
	r := require.New(t)
	root := t.TempDir()

	skipped, invalid, err := replayMkdir(root, "a/b", 0755, 0, 0, false, nil)
	r.NoError(err)
	r.False(skipped)
	r.False(invalid)

	info, err := os.Stat(filepath.Join(root, "a", "b"))
	r.NoError(err)
	r.True(info.IsDir())
}

func TestReplayMkdirIsIdempotent(t *testing.T) {
	r := require.New(t)
	root := t.TempDir()

	_, _, err := replayMkdir(root, "a", 0755, 0, 0, false, nil)
	r.NoError(err)

	skipped, invalid, err := replayMkdir(root, "a", 0755, 0, 0, false, nil)
	r.NoError(err)
	r.True(skipped)
	r.False(invalid)
}

func TestReplayMkdirDryRunTouchesNothing(t *testing.T) {
	r := require.New(t)
	root := t.TempDir()

	skipped, invalid, err := replayMkdir(root, "a/b", 0755, 0, 0, true, nil)
	r.NoError(err)
	r.False(skipped)
	r.False(invalid)

	_, err = os.Stat(filepath.Join(root, "a"))
	r.True(os.IsNotExist(err))
}

func TestReplayMkdirCollisionWithNonDirectoryIsNonFatal(t *testing.T) {
	r := require.New(t)
	root := t.TempDir()

	r.NoError(os.WriteFile(filepath.Join(root, "a"), nil, 0644))

	skipped, invalid, err := replayMkdir(root, "a", 0755, 0, 0, false, nil)
	r.NoError(err)
	r.False(skipped)
	r.True(invalid)
}

func TestReplayDryRunOfFullLogTouchesNothing(t *testing.T) {
	r := require.New(t)
	root := t.TempDir()
	log := newTestLog(t)

	mk, err := NewMkdirEntry("dir", 0755, 0, 0)
	r.NoError(err)
	r.NoError(log.Append(&mk))

	stats, err := Replay(log, root, true, nil)
	r.NoError(err)
	r.Equal(1, stats.Dirs)
	r.Zero(stats.Skipped)

	entries, err := os.ReadDir(root)
	r.NoError(err)
	r.Empty(entries)
}
