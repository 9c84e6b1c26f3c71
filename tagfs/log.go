package tagfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Log wraps the bytes backing a tagfs log region — whether mmap'd directly
// from the raw device, mmap'd from a .meta/.log file, or held in an
// ordinary heap buffer (as the tests do). Header fields are read and written
// directly on the backing bytes via binary.LittleEndian, the way a
// MAP_SHARED region must be mutated in place for other mapped hosts to
// observe the change; entries are encoded/decoded as whole fixed-size
// records.
//
// Log is not safe for concurrent Append calls — spec.md §5 requires
// callers to hold an external mutex across the whole append sequence.
type Log struct {
	data  []byte
	unmap func() error
}

// NewLog wraps data (length LogLen) as a Log. unmap is called by Close, and
// may be nil for a heap-backed buffer that owns no OS resource.
func NewLog(data []byte, unmap func() error) *Log {
	return &Log{data: data, unmap: unmap}
}

// Close unmaps the backing region, if any.
func (l *Log) Close() error {
	if l.unmap != nil {
		return l.unmap()
	}
	return nil
}

// Bytes returns the raw backing slice. Callers must not retain it past a
// Close.
func (l *Log) Bytes() []byte { return l.data }

func (l *Log) Magic() uint64      { return binary.LittleEndian.Uint64(l.data[0:8]) }
func (l *Log) NextSeqnum() uint64 { return binary.LittleEndian.Uint64(l.data[8:16]) }
func (l *Log) NextIndex() uint64  { return binary.LittleEndian.Uint64(l.data[16:24]) }
func (l *Log) LastIndex() uint64  { return binary.LittleEndian.Uint64(l.data[24:32]) }

func (l *Log) setMagic(v uint64)      { binary.LittleEndian.PutUint64(l.data[0:8], v) }
func (l *Log) setNextSeqnum(v uint64) { binary.LittleEndian.PutUint64(l.data[8:16], v) }
func (l *Log) setNextIndex(v uint64)  { binary.LittleEndian.PutUint64(l.data[16:24], v) }
func (l *Log) setLastIndex(v uint64)  { binary.LittleEndian.PutUint64(l.data[24:32], v) }

// Valid reports whether the log's magic matches the expected sentinel.
func (l *Log) Valid() bool {
	return len(l.data) >= logHeaderSize && l.Magic() == LogMagic
}

// Capacity is the number of entry slots the region has room for.
func (l *Log) Capacity() uint64 {
	if len(l.data) <= logHeaderSize {
		return 0
	}
	return uint64(len(l.data)-logHeaderSize) / uint64(EntrySize)
}

// Full reports whether the log has no room for another append (spec.md I6).
func (l *Log) Full() bool {
	return l.NextIndex() > l.LastIndex()
}

func (l *Log) entryOffset(i uint64) int {
	return logHeaderSize + int(i)*EntrySize
}

// EntryAt decodes the entry at index i. i must be < NextIndex (or, for a
// concurrent reader racing an appender, may observe a torn tail entry —
// callers iterate only up to the NextIndex they observed).
func (l *Log) EntryAt(i uint64) (LogEntry, error) {
	var e LogEntry
	off := l.entryOffset(i)
	if off+EntrySize > len(l.data) {
		return e, fmt.Errorf("tagfs: entry index %d out of range", i)
	}

	r := bytes.NewReader(l.data[off : off+EntrySize])
	var typ uint32
	var pad uint32
	if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &pad); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Seqnum); err != nil {
		return e, err
	}
	if _, err := r.Read(e.payload[:]); err != nil {
		return e, err
	}
	e.Type = EntryType(typ)
	return e, nil
}

func (l *Log) writeEntry(i uint64, e *LogEntry) error {
	off := l.entryOffset(i)
	if off+EntrySize > len(l.data) {
		return fmt.Errorf("tagfs: entry index %d out of range", i)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(e.Type))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, e.Seqnum)
	buf.Write(e.payload[:])

	copy(l.data[off:off+EntrySize], buf.Bytes())
	return nil
}

// Append stamps e's seqnum with the log's next_seqnum, writes it into the
// next free slot, and advances the counters. Per spec.md §4.5, this is not
// re-entrant: callers must serialize concurrent appenders externally.
func (l *Log) Append(e *LogEntry) error {
	if !l.Valid() {
		return fmt.Errorf("%w: bad log magic", ErrInvalidSuperblock)
	}
	if l.Full() {
		return ErrLogFull
	}

	idx := l.NextIndex()
	e.Seqnum = l.NextSeqnum()
	if err := l.writeEntry(idx, e); err != nil {
		return err
	}

	l.setNextSeqnum(e.Seqnum + 1)
	l.setNextIndex(idx + 1)
	return nil
}

// FormatLog initializes a zeroed LogLen-sized buffer into an empty, valid
// log. This is the primitive an external mkfs tool (not specified by
// spec.md) would call; it's exported here because allocator, replay, and
// fsck tests all need a well-formed log fixture to build on.
func FormatLog(data []byte) (*Log, error) {
	if len(data) != LogLen {
		return nil, fmt.Errorf("tagfs: log region must be exactly %d bytes, got %d", LogLen, len(data))
	}
	for i := range data {
		data[i] = 0
	}

	l := NewLog(data, nil)
	l.setMagic(LogMagic)
	l.setNextSeqnum(0)
	l.setNextIndex(0)
	l.setLastIndex(l.Capacity() - 1)
	return l, nil
}
