// Command tagfsutil is the userspace management tool for tagfs: mkmeta,
// fsck, logplay, mkdir, and cp, following the flag-based CLI shape the
// teacher's lsvd command uses rather than a subcommand framework.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arramesh42/tagfs/tagfs"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	var err error
	switch cmd {
	case "mkmeta":
		err = runMkmeta(args, logLevel)
	case "fsck":
		err = runFsck(args, logLevel)
	case "logplay":
		err = runLogplay(args, logLevel)
	case "mkdir":
		err = runMkdir(args, logLevel)
	case "cp":
		err = runCp(args, logLevel)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "tagfsutil:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tagfsutil <mkmeta|fsck|logplay|mkdir|cp> [flags]")
}

func setVerbose(fs *flag.FlagSet, lvl *slog.LevelVar) *bool {
	return fs.Bool("v", false, "verbose (trace-level) logging")
}

func applyVerbose(verbose bool, lvl *slog.LevelVar) {
	if verbose {
		lvl.Set(tagfs.LevelTrace)
	}
}

func runMkmeta(args []string, lvl *slog.LevelVar) error {
	fs := flag.NewFlagSet("mkmeta", flag.ExitOnError)
	verbose := setVerbose(fs, lvl)
	device := fs.String("device", "", "primary daxdev backing the mount")
	mount := fs.String("mount", "", "mount point to populate .meta/ under (resolved from /proc/mounts if omitted)")
	fs.Parse(args)
	applyVerbose(*verbose, lvl)

	if *device == "" {
		return fmt.Errorf("mkmeta requires -device")
	}
	resolved, err := tagfs.Mkmeta(*device, *mount)
	if err != nil {
		return err
	}
	fmt.Println("mkmeta: bootstrapped", resolved)
	return nil
}

func runFsck(args []string, lvl *slog.LevelVar) error {
	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	verbose := setVerbose(fs, lvl)
	path := fs.String("path", "", "daxdev (with -raw) or mount point to check")
	raw := fs.Bool("raw", false, "scan the raw device directly instead of the mounted .meta files")
	fs.Parse(args)
	applyVerbose(*verbose, lvl)

	if *path == "" {
		return fmt.Errorf("fsck requires -path")
	}

	report, err := tagfs.Fsck(*path, *raw, slog.Default())
	if err != nil {
		return err
	}
	errs := report.Errors()
	fmt.Printf("alloc_units=%d size_total=%d alloc_total=%d amplification=%.3f errors=%d\n",
		report.Stats.AllocUnits, report.Stats.SizeTotal, report.Stats.AllocTotal, report.Amplification, len(errs))
	for _, e := range errs {
		fmt.Println("  -", e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("fsck found %d problems", len(errs))
	}
	return nil
}

func runLogplay(args []string, lvl *slog.LevelVar) error {
	fs := flag.NewFlagSet("logplay", flag.ExitOnError)
	verbose := setVerbose(fs, lvl)
	mount := fs.String("mount", "", "mount point to replay into")
	dryRun := fs.Bool("n", false, "dry run: log actions without touching the filesystem")
	fs.Parse(args)
	applyVerbose(*verbose, lvl)

	if *mount == "" {
		return fmt.Errorf("logplay requires -mount")
	}

	logData, closeFn, err := tagfs.MapLogFile(filepath.Join(*mount, tagfs.MetaDirName, tagfs.LogFileName))
	if err != nil {
		return err
	}
	defer closeFn()

	log, err := tagfs.OpenLog(logData, nil)
	if err != nil {
		return err
	}

	stats, err := tagfs.Replay(log, *mount, *dryRun, slog.Default())
	if err != nil {
		return err
	}
	fmt.Printf("files=%d dirs=%d access=%d skipped=%d\n", stats.Files, stats.Dirs, stats.Access, stats.Skipped)
	return nil
}

func runMkdir(args []string, lvl *slog.LevelVar) error {
	fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
	verbose := setVerbose(fs, lvl)
	mount := fs.String("mount", "", "mount point")
	relpath := fs.String("path", "", "path to create, relative to mount")
	mode := fs.Uint("mode", 0755, "directory permission bits")
	fs.Parse(args)
	applyVerbose(*verbose, lvl)

	if *mount == "" || *relpath == "" {
		return fmt.Errorf("mkdir requires -mount and -path")
	}

	logData, closeFn, err := tagfs.MapLogFile(filepath.Join(*mount, tagfs.MetaDirName, tagfs.LogFileName))
	if err != nil {
		return err
	}
	defer closeFn()

	log, err := tagfs.OpenLog(logData, nil)
	if err != nil {
		return err
	}

	return tagfs.MakeDir(log, *mount, *relpath, uint32(*mode), uint32(os.Getuid()), uint32(os.Getgid()))
}

func runCp(args []string, lvl *slog.LevelVar) error {
	fs := flag.NewFlagSet("cp", flag.ExitOnError)
	verbose := setVerbose(fs, lvl)
	mount := fs.String("mount", "", "destination mount point")
	src := fs.String("src", "", "source file path")
	dest := fs.String("dest", "", "destination path, relative to mount")
	device := fs.String("device", "", "primary daxdev backing the mount")
	fs.Parse(args)
	applyVerbose(*verbose, lvl)

	if *mount == "" || *src == "" || *dest == "" || *device == "" {
		return fmt.Errorf("cp requires -mount, -src, -dest and -device")
	}

	devSize, err := tagfs.DeviceSize(*device)
	if err != nil {
		return err
	}

	logData, closeFn, err := tagfs.MapLogFile(filepath.Join(*mount, tagfs.MetaDirName, tagfs.LogFileName))
	if err != nil {
		return err
	}
	defer closeFn()

	log, err := tagfs.OpenLog(logData, nil)
	if err != nil {
		return err
	}

	return tagfs.CopyFile(log, devSize, *mount, *src, *dest, 0644, slog.Default())
}
