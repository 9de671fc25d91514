// Package fsnotify watches a folder and sends a message on a channel when files in it change.
// Changes are debounced, so a burst of writes (such as a certificate and its key being replaced) produces a single notification.
// Only file creation and write events trigger notifications.
package fsnotify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the default value for WatchOpts.Debounce.
const DefaultDebounce = 500 * time.Millisecond

// WatchOpts contains the options for WatchFolder.
type WatchOpts struct {
	// Time without further events after which a notification is sent
	// Default: DefaultDebounce
	Debounce time.Duration
	// If not empty, only changes to files with these base names are reported
	Files []string
	// Logger for errors reported by the watcher
	// Default: slog.Default()
	Logger *slog.Logger
}

// WatchFolder returns a channel that receives a notification when a file in folder is created or written to.
// The channel is closed when ctx is canceled.
func WatchFolder(ctx context.Context, folder string, opts WatchOpts) (<-chan struct{}, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	err = watcher.Add(folder)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to add watched folder: %w", err)
	}

	msgChan := make(chan struct{}, 1)
	go func() {
		defer close(msgChan)
		defer watcher.Close() //nolint:errcheck

		// Stopped timer, armed by the first relevant event
		timer := time.NewTimer(opts.Debounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if len(opts.Files) > 0 && !slices.Contains(opts.Files, filepath.Base(event.Name)) {
					continue
				}
				timer.Reset(opts.Debounce)

			case <-timer.C:
				// Never block if a notification is already pending
				select {
				case msgChan <- struct{}{}:
				default:
				}

			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				opts.Logger.WarnContext(ctx, "Error while watching for changes to files on disk",
					slog.Any("error", watchErr),
					slog.String("folder", folder),
				)
			}
		}
	}()

	return msgChan, nil
}
