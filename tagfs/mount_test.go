package tagfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindMountPointWalksUpward(t *testing.T) {
	r := require.New(t)

	root := t.TempDir()
	meta := filepath.Join(root, MetaDirName)
	r.NoError(os.MkdirAll(meta, 0755))
	r.NoError(os.WriteFile(filepath.Join(meta, SuperblockFileName), nil, 0644))
	r.NoError(os.WriteFile(filepath.Join(meta, LogFileName), nil, 0644))

	sub := filepath.Join(root, "a", "b", "c")
	r.NoError(os.MkdirAll(sub, 0755))

	got, err := FindMountPoint(sub)
	r.NoError(err)
	r.Equal(root, got)
}

func TestFindMountPointFailsWithoutMetaFiles(t *testing.T) {
	r := require.New(t)

	dir := t.TempDir()
	_, err := FindMountPoint(dir)
	r.ErrorIs(err, ErrNotTagfs)
}

func TestRelPathIsRelativeToMount(t *testing.T) {
	r := require.New(t)

	root := t.TempDir()
	meta := filepath.Join(root, MetaDirName)
	r.NoError(os.MkdirAll(meta, 0755))
	r.NoError(os.WriteFile(filepath.Join(meta, SuperblockFileName), nil, 0644))
	r.NoError(os.WriteFile(filepath.Join(meta, LogFileName), nil, 0644))

	target := filepath.Join(root, "dir", "file.bin")
	r.NoError(os.MkdirAll(filepath.Dir(target), 0755))
	r.NoError(os.WriteFile(target, nil, 0644))

	mp, rel, err := RelPath(target)
	r.NoError(err)
	r.Equal(root, mp)
	r.Equal(filepath.Join("dir", "file.bin"), rel)
}

func TestParseMountLine(t *testing.T) {
	r := require.New(t)

	entry, ok := parseMountLine("/dev/dax0.0 /mnt/tagfs tagfs rw,relatime 0 0")
	r.True(ok)
	r.Equal("/dev/dax0.0", entry.Device)
	r.Equal("/mnt/tagfs", entry.MountPoint)
	r.Equal("tagfs", entry.FSType)

	_, ok = parseMountLine("garbage")
	r.False(ok)
}
