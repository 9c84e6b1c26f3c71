package tagfs

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ReplayStats summarizes one Replay pass.
type ReplayStats struct {
	Files   int
	Dirs    int
	Access  int
	Skipped int // entries whose target already existed (idempotent no-ops)
	Invalid int // entries that failed a non-fatal validation check (I5, zero-offset extent)
}

// Replay walks log from index 0 up to its observed NextIndex and
// materializes each entry under mountPoint: MKDIR entries become
// directories, FILE entries become regular files bound to their extents via
// MAP_CREATE, ACCESS entries are logged but otherwise inert (spec.md §4.6).
//
// Replay is idempotent by construction: re-running it against a tree that
// already has every target in place finds each one present and skips it —
// MAP_CREATE may only be issued once per file (spec.md §6), so an existing
// target is never re-bound. When dryRun is true, no filesystem mutation
// happens; the pass only logs what it would do.
//
// Per spec.md I5 and §9, an absolute relpath or a FILE extent at offset 0
// is a non-fatal validation failure: the entry is reported and skipped,
// never treated as an error that aborts the pass.
func Replay(log *Log, mountPoint string, dryRun bool, logger *slog.Logger) (ReplayStats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var stats ReplayStats
	n := log.NextIndex()
	for i := uint64(0); i < n; i++ {
		entry, err := log.EntryAt(i)
		if err != nil {
			return stats, errors.Wrapf(err, "replay: read entry %d", i)
		}

		switch entry.Type {
		case EntryMkdir:
			relpath, mode, uid, gid, err := entry.Mkdir()
			if err != nil {
				return stats, errors.Wrapf(err, "replay: decode mkdir entry %d", i)
			}
			if !validRelpath(relpath) {
				logger.Warn("replay: mkdir entry has absolute path, skipping", "index", i, "path", relpath)
				stats.Invalid++
				continue
			}

			skipped, invalid, err := replayMkdir(mountPoint, relpath, os.FileMode(mode), uid, gid, dryRun, logger)
			if err != nil {
				return stats, err
			}
			if invalid {
				stats.Invalid++
				continue
			}
			stats.Dirs++
			if skipped {
				stats.Skipped++
			}

		case EntryFile:
			relpath, mode, uid, gid, size, extents, err := entry.File()
			if err != nil {
				return stats, errors.Wrapf(err, "replay: decode file entry %d", i)
			}
			if !validRelpath(relpath) {
				logger.Warn("replay: file entry has absolute path, skipping", "index", i, "path", relpath)
				stats.Invalid++
				continue
			}
			if hasZeroOffsetExtent(extents) {
				logger.Warn("replay: file entry has extent at offset 0, skipping", "index", i, "path", relpath)
				stats.Invalid++
				continue
			}

			skipped, err := replayFile(mountPoint, relpath, os.FileMode(mode), uid, gid, size, extents, dryRun, logger)
			if err != nil {
				return stats, err
			}
			stats.Files++
			if skipped {
				stats.Skipped++
			}

		case EntryAccess:
			trace(logger, "replay: access entry", "index", i, "seqnum", entry.Seqnum)
			stats.Access++

		default:
			logger.Warn("replay: unknown entry type, skipping", "index", i, "type", entry.Type)
		}
	}

	return stats, nil
}

func validRelpath(relpath string) bool {
	return relpath != "" && !strings.HasPrefix(relpath, "/")
}

func hasZeroOffsetExtent(extents []Extent) bool {
	for _, e := range extents {
		if e.Offset == 0 {
			return true
		}
	}
	return false
}

// replayMkdir materializes a MKDIR entry's target. Per spec.md §4.6/§7 and
// the original tagfs_logplay's MKDIR case, a target that already exists as
// a non-directory is a non-fatal collision: it's reported via the invalid
// return (so the caller bumps stats.Invalid and skips on), never an error
// that aborts the whole replay pass.
func replayMkdir(mountPoint, relpath string, mode os.FileMode, uid, gid uint32, dryRun bool, logger *slog.Logger) (skipped, invalid bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	full := filepath.Join(mountPoint, relpath)
	trace(logger, "replay mkdir", "path", full, "mode", mode)
	if dryRun {
		return false, false, nil
	}

	if info, err := os.Stat(full); err == nil {
		if !info.IsDir() {
			logger.Warn("replay: mkdir target exists and is not a directory, skipping", "path", full)
			return false, true, nil
		}
		return true, false, nil
	}
	if err := os.MkdirAll(full, mode.Perm()); err != nil {
		return false, false, errors.Wrapf(err, "replay mkdir %s", full)
	}
	if uid != 0 && gid != 0 {
		if err := os.Chown(full, int(uid), int(gid)); err != nil {
			return false, false, errors.Wrapf(err, "replay mkdir: chown %s", full)
		}
	}
	return false, false, nil
}

// replayFile materializes a FILE entry's target. If the target already
// exists, MAP_CREATE is never re-issued against it: the ioctl contract
// allows exactly one bind per file, and this is the idempotence property
// Replay documents.
func replayFile(mountPoint, relpath string, mode os.FileMode, uid, gid uint32, size uint64, extents []Extent, dryRun bool, logger *slog.Logger) (skipped bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	full := filepath.Join(mountPoint, relpath)
	trace(logger, "replay file", "path", full, "size", size, "extents", len(extents))
	if dryRun {
		return false, nil
	}

	if _, err := os.Stat(full); err == nil {
		return true, nil
	}

	if err := MakeFile(mountPoint, relpath, mode, uid, gid, size, extents); err != nil {
		return false, errors.Wrapf(err, "replay file %s", full)
	}

	return false, nil
}
