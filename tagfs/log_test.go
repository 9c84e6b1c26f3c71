package tagfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	buf := make([]byte, LogLen)
	log, err := FormatLog(buf)
	require.NoError(t, err)
	return log
}

func TestFormatLogIsEmptyAndValid(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	r.True(log.Valid())
	r.Equal(uint64(0), log.NextIndex())
	r.Equal(uint64(0), log.NextSeqnum())
	r.False(log.Full())
	r.Greater(log.Capacity(), uint64(0))
}

func TestFormatLogRejectsWrongSize(t *testing.T) {
	r := require.New(t)
	_, err := FormatLog(make([]byte, LogLen-1))
	r.Error(err)
}

func TestAppendAdvancesCountersAndStampsSeqnum(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	e1, err := NewMkdirEntry("a", 0755, 0, 0)
	r.NoError(err)
	r.NoError(log.Append(&e1))
	r.Equal(uint64(0), e1.Seqnum)
	r.Equal(uint64(1), log.NextIndex())
	r.Equal(uint64(1), log.NextSeqnum())

	e2, err := NewMkdirEntry("b", 0755, 0, 0)
	r.NoError(err)
	r.NoError(log.Append(&e2))
	r.Equal(uint64(1), e2.Seqnum)
	r.Equal(uint64(2), log.NextIndex())
}

func TestEntryAtReadsBackAppendedEntry(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	extents := []Extent{{Offset: 2 * AllocUnit, Length: AllocUnit}}
	want, err := NewFileEntry("f.bin", 0600, 1, 1, AllocUnit, extents)
	r.NoError(err)
	r.NoError(log.Append(&want))

	got, err := log.EntryAt(0)
	r.NoError(err)
	r.Equal(EntryFile, got.Type)
	r.Equal(want.Seqnum, got.Seqnum)

	relpath, _, _, _, size, exts, err := got.File()
	r.NoError(err)
	r.Equal("f.bin", relpath)
	r.Equal(uint64(AllocUnit), size)
	r.Equal(extents, exts)
}

func TestAppendFailsWhenLogIsFull(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	capacity := log.Capacity()
	for i := uint64(0); i < capacity; i++ {
		e, err := NewMkdirEntry("d", 0755, 0, 0)
		r.NoError(err)
		r.NoError(log.Append(&e))
	}

	r.True(log.Full())
	e, err := NewMkdirEntry("overflow", 0755, 0, 0)
	r.NoError(err)
	r.ErrorIs(log.Append(&e), ErrLogFull)
}
