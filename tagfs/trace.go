package tagfs

import (
	"context"
	"log/slog"
)

// LevelTrace is a sub-debug level for the high-volume per-entry logging
// replay and fsck do when walking the log.
const LevelTrace = slog.LevelDebug - 1

func trace(log *slog.Logger, msg string, v ...any) {
	log.Log(context.Background(), LevelTrace, msg, v...)
}
