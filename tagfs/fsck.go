package tagfs

import (
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/arramesh42/tagfs/pkg/multierror"
	"github.com/arramesh42/tagfs/pkg/units"
)

// FsckReport is fsck's full result, per spec.md §4.10: bitmap stats plus
// whatever structural problems the scan turned up. Err aggregates every
// problem found via pkg/multierror, so a caller can keep scanning past the
// first collision instead of aborting the pass.
type FsckReport struct {
	Superblock    *Superblock
	Stats         BitmapStats
	Amplification float64 // AllocTotal / SizeTotal; 1.0 is no waste
	Err           error
}

// Errors returns the individual problems Err aggregates, or nil if clean.
func (r *FsckReport) Errors() []error {
	if r.Err == nil {
		return nil
	}
	if me, ok := r.Err.(*multierror.MultiError); ok {
		return me.Errors()
	}
	return []error{r.Err}
}

// Fsck scans a tagfs's superblock and log, rebuilds the allocation bitmap,
// and reports collisions and space amplification. path may be either the
// raw daxdev (useMmap selects a direct device mmap, the pre-mount path) or
// a mounted tagfs's mount point (mmap via the bound meta-files under its
// .meta directory). Per
// spec.md §4.10, a raw-device scan first checks /proc/mounts and refuses
// with ErrDeviceBusy if the device is already mounted as tagfs — scanning a
// live device out from under its mount would race the allocator.
func Fsck(path string, useMmap bool, logger *slog.Logger) (*FsckReport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sbData, logData, closeFn, err := openFsckSource(path, useMmap)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	sb, err := decodeSuperblock(sbData)
	if err != nil {
		return nil, errors.Wrap(err, "fsck: decode superblock")
	}

	report := &FsckReport{Superblock: sb}
	if !sb.Valid() {
		report.Err = multierror.Append(report.Err, errors.Wrap(ErrInvalidSuperblock, "fsck: bad superblock magic"))
		return report, nil
	}

	log := NewLog(logData, nil)
	if !log.Valid() {
		report.Err = multierror.Append(report.Err, errors.Wrap(ErrInvalidSuperblock, "fsck: bad log magic"))
		return report, nil
	}

	devSize, err := sb.PrimarySize()
	if err != nil {
		report.Err = multierror.Append(report.Err, err)
		return report, nil
	}

	bm, err := BuildBitmap(log, devSize, logger)
	if err != nil {
		return nil, errors.Wrap(err, "fsck: build bitmap")
	}
	report.Stats = bm.Stats

	if bm.Stats.Collisions > 0 {
		report.Err = multierror.Append(report.Err, errors.Errorf("fsck: %d allocation collisions detected", bm.Stats.Collisions))
	}

	report.Amplification = units.Amplification(units.Bytes(bm.Stats.AllocTotal), units.Bytes(bm.Stats.SizeTotal))

	logger.Info("fsck complete",
		"device", path,
		"alloc_units", bm.Stats.AllocUnits,
		"size_total", units.Bytes(bm.Stats.SizeTotal).Short(),
		"alloc_total", units.Bytes(bm.Stats.AllocTotal).Short(),
		"amplification", report.Amplification,
		"collisions", bm.Stats.Collisions,
	)

	return report, nil
}

func openFsckSource(path string, useMmap bool) (sbData, logData []byte, closeFn func() error, err error) {
	if useMmap {
		mountPoint, mounted, err := ResolveMountByDevice(path)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "fsck: check mount state of %s", path)
		}
		if mounted {
			return nil, nil, nil, errors.Wrapf(ErrDeviceBusy, "fsck: %s is mounted at %s, refusing raw scan", path, mountPoint)
		}
		return MapSuperblockAndLogRaw(path)
	}

	sbPath := filepath.Join(path, MetaDirName, SuperblockFileName)
	logPath := filepath.Join(path, MetaDirName, LogFileName)

	sbData, sbClose, err := MapSuperblockFile(sbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logData, logClose, err := MapLogFile(logPath)
	if err != nil {
		sbClose()
		return nil, nil, nil, err
	}

	return sbData, logData, func() error {
		err := logClose()
		if cerr := sbClose(); err == nil {
			err = cerr
		}
		return err
	}, nil
}
