package tagfs

import (
	"log/slog"

	"github.com/pkg/errors"
)

// BitmapStats summarizes a bitmap rebuild, the way fsck and the allocator
// both need to report it: total bytes logically allocated vs. total bytes
// actually consumed by allocation units, and how many times two files'
// extents claimed the same unit.
type BitmapStats struct {
	AllocUnits uint64 // units claimed by FILE extents (metadata units excluded, each collided unit counted once)
	SizeTotal  uint64 // sum of each file's logical Size, in bytes
	AllocTotal uint64 // AllocUnits * AllocUnit, in bytes
	Collisions int    // units an extent claimed whose bit was already set
}

// Bitmap is a reconstructed allocation bitmap, one bit per AllocUnit-sized
// unit of the primary device, superblock and log regions included.
type Bitmap struct {
	bits  []byte
	nbits uint64
	Stats BitmapStats
}

// BuildBitmap rebuilds the allocation bitmap by replaying every FILE entry
// in log up to its NextIndex, per spec.md §4.4. The bitmap is never
// persisted — the log is the only source of truth, and is rebuilt before
// every allocation.
//
// devSize is the primary daxdev's size in bytes; it bounds the bitmap and
// is reserved up front (superblock + log regions) before any FILE extent is
// marked, matching tagfs_build_bitmap's treatment of the metadata region as
// pre-allocated.
func BuildBitmap(log *Log, devSize uint64, logger *slog.Logger) (*Bitmap, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !log.Valid() {
		return nil, errors.Wrap(ErrInvalidSuperblock, "build bitmap: log has bad magic")
	}

	nbits := (devSize + AllocUnit - 1) / AllocUnit
	bm := &Bitmap{
		bits:  make([]byte, bitmapBytes(nbits)),
		nbits: nbits,
	}

	// The metadata region (superblock + log) is implicitly allocated: it's
	// never described by a log entry, so it's marked reserved here to keep
	// the allocator from handing it out, but — per spec.md §4.4/§8 — it
	// doesn't count toward alloc_total/size_total, which track only file
	// space efficiency.
	metaUnits := (LogOffset + LogLen + AllocUnit - 1) / AllocUnit
	for u := uint64(0); u < metaUnits && u < nbits; u++ {
		bitSet(bm.bits, u)
	}

	next := log.NextIndex()
	for i := uint64(0); i < next; i++ {
		entry, err := log.EntryAt(i)
		if err != nil {
			return nil, errors.Wrapf(err, "build bitmap: read entry %d", i)
		}
		if entry.Type != EntryFile {
			continue
		}

		relpath, _, _, _, size, extents, err := entry.File()
		if err != nil {
			return nil, errors.Wrapf(err, "build bitmap: decode entry %d", i)
		}
		bm.Stats.SizeTotal += size
		trace(logger, "build bitmap: file entry", "index", i, "path", relpath, "size", size, "extents", len(extents))

		for _, ext := range extents {
			start := ext.PageStart()
			count := ext.PageCount()
			for u := start; u < start+count; u++ {
				if u >= nbits {
					logger.Warn("extent exceeds device size", "path", relpath, "unit", u, "nbits", nbits)
					continue
				}
				if bitTestAndSet(bm.bits, u) {
					bm.Stats.Collisions++
					logger.Warn("allocation collision", "path", relpath, "unit", u)
					continue
				}
				bm.Stats.AllocUnits++
				bm.Stats.AllocTotal += AllocUnit
			}
		}
	}

	return bm, nil
}

// AllocateContiguous finds the first run of nUnits free bits and marks them
// allocated, returning the extent those units cover. It does not append a
// log entry: the caller is responsible for the alloc-then-log sequence
// spec.md §4.7 describes (build bitmap under the caller's mutex, allocate,
// append, release mutex).
func (bm *Bitmap) AllocateContiguous(nUnits uint64) (Extent, error) {
	if nUnits == 0 {
		return Extent{}, errors.New("allocate: zero units requested")
	}

	var run uint64
	var start uint64
	for u := uint64(0); u < bm.nbits; u++ {
		if bitTest(bm.bits, u) {
			run = 0
			continue
		}
		if run == 0 {
			start = u
		}
		run++
		if run == nUnits {
			for i := start; i < start+nUnits; i++ {
				bitSet(bm.bits, i)
			}
			return Extent{Offset: start * AllocUnit, Length: nUnits * AllocUnit}, nil
		}
	}

	return Extent{}, ErrAllocationFailed
}

// AllocateForSize rounds size up to a whole number of allocation units and
// calls AllocateContiguous. size == 0 still reserves one unit: tagfs has no
// zero-length file representation, mirroring tagfs_file_alloc.
func (bm *Bitmap) AllocateForSize(size uint64) (Extent, error) {
	units := (size + AllocUnit - 1) / AllocUnit
	if units == 0 {
		units = 1
	}
	return bm.AllocateContiguous(units)
}
