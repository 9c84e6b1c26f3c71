// Package tagfs implements the user-space management core for tagfs: the
// on-device superblock and log layout, the bitmap allocator reconstructed
// from the log, the log writer/replayer, file and directory materialization
// against the kernel driver's ioctl contract, mkmeta, and fsck.
//
// The filesystem itself — the path lookup and extent-backed read/write
// path — lives in the kernel driver. This package only owns the persistent
// metadata the driver depends on.
package tagfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// On-device constants. No kernel header shipped with the retrieved source,
// so these are this implementation's concrete choices (see DESIGN.md); the
// relationships between them (LogOffset == SuperblockSize, both multiples
// of AllocUnit) reproduce the "reference layout" spec.md §6 describes.
const (
	// AllocUnit is the filesystem's minimum allocation granule, the
	// system's huge-page size in practice.
	AllocUnit = 2 << 20 // 2 MiB

	// SuperblockSize is the fixed size of the superblock region at device
	// offset 0.
	SuperblockSize = AllocUnit

	// LogOffset is the device offset of the log region. Equal to
	// SuperblockSize in the reference layout: no padding in between.
	LogOffset = SuperblockSize

	// LogLen is the fixed size of the log region.
	LogLen = 2 * AllocUnit // 4 MiB

	// MaxDaxDevs bounds the superblock's device list.
	MaxDaxDevs = 4

	// MaxPathLen bounds relative paths stored in log entries.
	MaxPathLen = 256

	// MaxExtents bounds the extent list of a single FILE log entry.
	MaxExtents = 8

	// DevNameLen bounds a daxdev name in the superblock's device list.
	DevNameLen = 256
)

// Magic sentinels identifying a valid tagfs superblock and log.
const (
	SuperMagic uint64 = 0x5446474d5341465f // "_FASMGFT" little-endian-ish sentinel
	LogMagic   uint64 = 0x5446474d4c4f475f // "_GOLMGFT"
)

// EntryType discriminates a log entry's payload.
type EntryType uint32

const (
	EntryInvalid EntryType = 0
	EntryFile    EntryType = 1
	EntryMkdir   EntryType = 2
	EntryAccess  EntryType = 3
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "FILE"
	case EntryMkdir:
		return "MKDIR"
	case EntryAccess:
		return "ACCESS"
	default:
		return "INVALID"
	}
}

// ExtentKind discriminates an on-disk extent record. SIMPLE is the only
// kind the current format produces; others are reserved the way ACCESS log
// entries are reserved.
type ExtentKind uint32

const (
	ExtentInvalid ExtentKind = 0
	ExtentSimple  ExtentKind = 1
)

// FileKind is the ioctl MAP_CREATE file_type field: what a file's extents
// alias.
type FileKind uint32

const (
	FileReg        FileKind = 1
	FileSuperblock FileKind = 2
	FileLog        FileKind = 3
)

// ExtentSpace is the ioctl MAP_CREATE extent_type field: where the extents
// live. FSDAX is the only space this driver contract supports.
type ExtentSpace uint32

const (
	ExtentSpaceFSDAX ExtentSpace = 1
)

// Extent is a half-open byte range [Offset, Offset+Length) on the primary
// device.
type Extent struct {
	Offset uint64
	Length uint64
}

func (e Extent) String() string {
	return fmt.Sprintf("[%#x, %#x)", e.Offset, e.Offset+e.Length)
}

// PageStart and PageCount convert an extent to allocation-unit granularity,
// the way the allocator and bitmap builder reason about it.
func (e Extent) PageStart() uint64 { return e.Offset / AllocUnit }
func (e Extent) PageCount() uint64 { return (e.Length + AllocUnit - 1) / AllocUnit }

// logExtent is the on-disk discriminated extent record inside a FILE entry.
type logExtent struct {
	Kind   ExtentKind
	_      uint32
	Extent Extent
}

// daxDev describes one entry in the superblock's device list.
type daxDev struct {
	Name [DevNameLen]byte
	Size uint64
}

func (d daxDev) name() string {
	n := bytes.IndexByte(d.Name[:], 0)
	if n < 0 {
		n = len(d.Name)
	}
	return string(d.Name[:n])
}

// fileCreation is the on-disk FILE log entry payload.
type fileCreation struct {
	RelPath    [MaxPathLen]byte
	Size       uint64
	Flags      uint32
	Mode       uint32
	UID        uint32
	GID        uint32
	NumExtents uint32
	_          uint32
	Extents    [MaxExtents]logExtent
}

// mkdirEntry is the on-disk MKDIR log entry payload.
type mkdirEntry struct {
	RelPath [MaxPathLen]byte
	Mode    uint32
	UID     uint32
	GID     uint32
}

// fileCreationSize and mkdirEntrySize are fileCreation/mkdirEntry's encoded
// sizes, computed by hand (and cross-checked against binary.Size in
// layout_test.go) so payloadSize can stay a compile-time constant.
const (
	logExtentSize    = 4 + 4 + 8 + 8 // Kind + pad + Offset + Length
	fileCreationSize = MaxPathLen + 8 + 4 + 4 + 4 + 4 + 4 + 4 + MaxExtents*logExtentSize
	mkdirEntrySize   = MaxPathLen + 4 + 4 + 4
)

// payloadSize is the fixed size every log entry's variant payload is padded
// to, so that entries[i] is a pure offset computation regardless of which
// variant is stored — the "padded variant payload" design spec.md §9 calls
// for in place of a real union.
const payloadSize = max(fileCreationSize, mkdirEntrySize)

// entryHeaderSize is the encoded size of LogEntry's Type+Seqnum fields.
const entryHeaderSize = 4 + 4 /*pad*/ + 8

// EntrySize is the fixed encoded size of one log entry record.
const EntrySize = entryHeaderSize + payloadSize

// logHeaderSize is the encoded size of the log's header fields (magic,
// next_seqnum, next_index, last_index).
const logHeaderSize = 8 + 8 + 8 + 8

// LogEntry is a decoded discriminated log record.
type LogEntry struct {
	Type    EntryType
	Seqnum  uint64
	payload [payloadSize]byte
}

func relpathBytes(relpath string) ([MaxPathLen]byte, error) {
	var buf [MaxPathLen]byte
	if len(relpath) >= MaxPathLen {
		return buf, fmt.Errorf("%w: relpath %q exceeds %d bytes", ErrInvalidPath, relpath, MaxPathLen-1)
	}
	copy(buf[:], relpath)
	return buf, nil
}

func pathFromBytes(b [MaxPathLen]byte) string {
	n := bytes.IndexByte(b[:], 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}

// NewFileEntry builds a FILE log entry. extents must be non-empty and no
// longer than MaxExtents.
func NewFileEntry(relpath string, mode, uid, gid uint32, size uint64, extents []Extent) (LogEntry, error) {
	var e LogEntry
	if len(extents) == 0 {
		return e, fmt.Errorf("%w: file entry needs at least one extent", ErrInvalidPath)
	}
	if len(extents) > MaxExtents {
		return e, fmt.Errorf("%w: %d extents exceeds max %d", ErrInvalidPath, len(extents), MaxExtents)
	}

	rp, err := relpathBytes(relpath)
	if err != nil {
		return e, err
	}

	fc := fileCreation{
		RelPath:    rp,
		Size:       size,
		Mode:       mode,
		UID:        uid,
		GID:        gid,
		NumExtents: uint32(len(extents)),
	}
	for i, ext := range extents {
		fc.Extents[i] = logExtent{Kind: ExtentSimple, Extent: ext}
	}

	e.Type = EntryFile
	if err := e.encode(fc); err != nil {
		return e, err
	}
	return e, nil
}

// NewMkdirEntry builds a MKDIR log entry.
func NewMkdirEntry(relpath string, mode, uid, gid uint32) (LogEntry, error) {
	var e LogEntry
	rp, err := relpathBytes(relpath)
	if err != nil {
		return e, err
	}

	md := mkdirEntry{RelPath: rp, Mode: mode, UID: uid, GID: gid}
	e.Type = EntryMkdir
	if err := e.encode(md); err != nil {
		return e, err
	}
	return e, nil
}

func (e *LogEntry) encode(v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return err
	}
	if buf.Len() > len(e.payload) {
		return fmt.Errorf("encoded payload %d bytes exceeds entry capacity %d", buf.Len(), len(e.payload))
	}
	copy(e.payload[:], buf.Bytes())
	return nil
}

// File decodes the entry as a FILE payload. Returns an error if the entry
// isn't a FILE entry.
func (e *LogEntry) File() (relpath string, mode, uid, gid uint32, size uint64, extents []Extent, err error) {
	if e.Type != EntryFile {
		return "", 0, 0, 0, 0, nil, fmt.Errorf("log entry is not a FILE entry (type=%s)", e.Type)
	}
	var fc fileCreation
	if err := binary.Read(bytes.NewReader(e.payload[:payloadSize]), binary.LittleEndian, &fc); err != nil {
		return "", 0, 0, 0, 0, nil, err
	}
	n := int(fc.NumExtents)
	if n > MaxExtents {
		n = MaxExtents
	}
	exts := make([]Extent, 0, n)
	for i := 0; i < n; i++ {
		exts = append(exts, fc.Extents[i].Extent)
	}
	return pathFromBytes(fc.RelPath), fc.Mode, fc.UID, fc.GID, fc.Size, exts, nil
}

// Mkdir decodes the entry as a MKDIR payload.
func (e *LogEntry) Mkdir() (relpath string, mode, uid, gid uint32, err error) {
	if e.Type != EntryMkdir {
		return "", 0, 0, 0, fmt.Errorf("log entry is not a MKDIR entry (type=%s)", e.Type)
	}
	var md mkdirEntry
	if err := binary.Read(bytes.NewReader(e.payload[:payloadSize]), binary.LittleEndian, &md); err != nil {
		return "", 0, 0, 0, err
	}
	return pathFromBytes(md.RelPath), md.Mode, md.UID, md.GID, nil
}

// Superblock is the decoded, read-only superblock. Created once by mkfs
// (external to this module); thereafter only ever read.
type Superblock struct {
	Magic      uint64
	UUID       uuid.UUID
	NumDaxDevs uint32
	devList    [MaxDaxDevs]daxDev
	LogOffset  uint64
	LogLen     uint64
}

// Valid reports whether the superblock's magic matches the expected
// sentinel. Per spec.md §4.3, additional CRC/field checks are reserved.
func (sb *Superblock) Valid() bool {
	return sb != nil && sb.Magic == SuperMagic
}

// PrimarySize returns the size in bytes of the primary (first) daxdev.
func (sb *Superblock) PrimarySize() (uint64, error) {
	if sb.NumDaxDevs == 0 {
		return 0, fmt.Errorf("%w: superblock has no daxdevs", ErrInvalidSuperblock)
	}
	return sb.devList[0].Size, nil
}

// DevName returns the name of the i'th daxdev.
func (sb *Superblock) DevName(i int) string {
	if i < 0 || i >= int(sb.NumDaxDevs) || i >= MaxDaxDevs {
		return ""
	}
	return sb.devList[i].name()
}

func decodeSuperblock(data []byte) (*Superblock, error) {
	if len(data) < SuperblockSize {
		return nil, fmt.Errorf("%w: superblock region too small (%d < %d)", ErrInvalidSuperblock, len(data), SuperblockSize)
	}

	var raw struct {
		Magic      uint64
		UUID       [16]byte
		NumDaxDevs uint32
		_          uint32
		DevList    [MaxDaxDevs]daxDev
		LogOffset  uint64
		LogLen     uint64
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSuperblock, err)
	}

	return &Superblock{
		Magic:      raw.Magic,
		UUID:       uuid.UUID(raw.UUID),
		NumDaxDevs: raw.NumDaxDevs,
		devList:    raw.DevList,
		LogOffset:  raw.LogOffset,
		LogLen:     raw.LogLen,
	}, nil
}

// encodeSuperblock serializes sb into a zero-padded SuperblockSize buffer.
// Used by FormatSuperblock and tests; ordinary operation never writes a
// superblock (spec.md: created once by mkfs, thereafter read-only).
func encodeSuperblock(sb *Superblock) ([]byte, error) {
	raw := struct {
		Magic      uint64
		UUID       [16]byte
		NumDaxDevs uint32
		_          uint32
		DevList    [MaxDaxDevs]daxDev
		LogOffset  uint64
		LogLen     uint64
	}{
		Magic:      sb.Magic,
		UUID:       [16]byte(sb.UUID),
		NumDaxDevs: sb.NumDaxDevs,
		DevList:    sb.devList,
		LogOffset:  sb.LogOffset,
		LogLen:     sb.LogLen,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	out := make([]byte, SuperblockSize)
	copy(out, buf.Bytes())
	return out, nil
}

// FormatSuperblock builds a fresh superblock for devs (primary device
// first) and serializes it to a SuperblockSize buffer. Like FormatLog, this
// is the primitive an external mkfs tool would call; exported for fixture
// construction in tests.
func FormatSuperblock(id uuid.UUID, devs []string, sizes []uint64) ([]byte, error) {
	if len(devs) == 0 {
		return nil, fmt.Errorf("%w: at least one daxdev required", ErrInvalidSuperblock)
	}
	if len(devs) > MaxDaxDevs {
		return nil, fmt.Errorf("%w: %d daxdevs exceeds max %d", ErrInvalidSuperblock, len(devs), MaxDaxDevs)
	}
	if len(devs) != len(sizes) {
		return nil, fmt.Errorf("%w: devs/sizes length mismatch", ErrInvalidSuperblock)
	}

	sb := &Superblock{
		Magic:      SuperMagic,
		UUID:       id,
		NumDaxDevs: uint32(len(devs)),
		LogOffset:  LogOffset,
		LogLen:     LogLen,
	}
	for i, name := range devs {
		if len(name) >= DevNameLen {
			return nil, fmt.Errorf("%w: daxdev name %q exceeds %d bytes", ErrInvalidPath, name, DevNameLen-1)
		}
		var d daxDev
		copy(d.Name[:], name)
		d.Size = sizes[i]
		sb.devList[i] = d
	}

	return encodeSuperblock(sb)
}
