package slog

import (
	"context"
	"log/slog"
	"os"
)

// Exit function; replaced in tests
var exitFn = os.Exit

// FatalError logs msg with the error at the Error level and terminates the process with exit code 1.
// If log is nil, the default logger is used.
func FatalError(log *slog.Logger, msg string, err error) {
	if log == nil {
		log = slog.Default()
	}
	log.LogAttrs(context.Background(), slog.LevelError, msg, slog.Any("error", err))
	exitFn(1)
}
