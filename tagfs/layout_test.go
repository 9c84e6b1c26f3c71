package tagfs

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPayloadSizeFitsBothVariants(t *testing.T) {
	r := require.New(t)

	r.Equal(480, fileCreationSize)
	r.Equal(268, mkdirEntrySize)
	r.GreaterOrEqual(payloadSize, fileCreationSize)
	r.GreaterOrEqual(payloadSize, mkdirEntrySize)

	r.Equal(binary.Size(fileCreation{}), fileCreationSize)
	r.Equal(binary.Size(mkdirEntry{}), mkdirEntrySize)
}

func TestFileEntryRoundTrip(t *testing.T) {
	r := require.New(t)

	extents := []Extent{{Offset: 2 << 20, Length: 4 << 20}}
	entry, err := NewFileEntry("dir/file.bin", 0644, 1000, 1000, 4<<20, extents)
	r.NoError(err)
	r.Equal(EntryFile, entry.Type)

	relpath, mode, uid, gid, size, exts, err := entry.File()
	r.NoError(err)
	r.Equal("dir/file.bin", relpath)
	r.Equal(uint32(0644), mode)
	r.Equal(uint32(1000), uid)
	r.Equal(uint32(1000), gid)
	r.Equal(uint64(4<<20), size)
	r.Equal(extents, exts)
}

func TestFileEntryRejectsTooManyExtents(t *testing.T) {
	r := require.New(t)

	extents := make([]Extent, MaxExtents+1)
	_, err := NewFileEntry("x", 0644, 0, 0, 1, extents)
	r.Error(err)
}

func TestFileEntryRejectsPathTooLong(t *testing.T) {
	r := require.New(t)

	long := make([]byte, MaxPathLen)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewFileEntry(string(long), 0644, 0, 0, 1, []Extent{{Length: AllocUnit}})
	r.ErrorIs(err, ErrInvalidPath)
}

func TestMkdirEntryRoundTrip(t *testing.T) {
	r := require.New(t)

	entry, err := NewMkdirEntry("a/b/c", 0755, 42, 42)
	r.NoError(err)
	r.Equal(EntryMkdir, entry.Type)

	relpath, mode, uid, gid, err := entry.Mkdir()
	r.NoError(err)
	r.Equal("a/b/c", relpath)
	r.Equal(uint32(0755), mode)
	r.Equal(uint32(42), uid)
	r.Equal(uint32(42), gid)
}

func TestDecodingWrongVariantFails(t *testing.T) {
	r := require.New(t)

	entry, err := NewMkdirEntry("a", 0755, 0, 0)
	r.NoError(err)
	_, _, _, _, _, _, err = entry.File()
	r.Error(err)
}

func TestSuperblockRoundTrip(t *testing.T) {
	r := require.New(t)

	id := uuid.New()
	data, err := FormatSuperblock(id, []string{"dax0.0", "dax1.0"}, []uint64{1 << 30, 2 << 30})
	r.NoError(err)
	r.Len(data, SuperblockSize)

	sb, err := decodeSuperblock(data)
	r.NoError(err)
	r.True(sb.Valid())
	r.Equal(id, sb.UUID)
	r.Equal(uint32(2), sb.NumDaxDevs)
	r.Equal("dax0.0", sb.DevName(0))
	r.Equal("dax1.0", sb.DevName(1))

	size, err := sb.PrimarySize()
	r.NoError(err)
	r.Equal(uint64(1<<30), size)
}

func TestSuperblockRejectsTooManyDevs(t *testing.T) {
	r := require.New(t)

	devs := make([]string, MaxDaxDevs+1)
	sizes := make([]uint64, MaxDaxDevs+1)
	_, err := FormatSuperblock(uuid.New(), devs, sizes)
	r.Error(err)
}
