package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDevice emits a frame for every image written into a directory,
// e.g. a folder a phone camera syncs its photos to.
type WatchDevice struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatchDevice creates a device watching dir
func NewWatchDevice(dir string, logger *slog.Logger) *WatchDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchDevice{dir: dir, logger: logger}
}

// Open implements Device
func (d *WatchDevice) Open(ctx context.Context, sink func(Frame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher != nil {
		return ErrDeviceBusy
	}

	info, err := os.Stat(d.dir)
	if err != nil {
		return fmt.Errorf("reading watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", d.dir, err)
	}

	d.watcher = watcher
	d.done = make(chan struct{})
	go d.loop(ctx, watcher, sink, d.done)
	d.logger.Info("Watching for frames", "dir", d.dir)
	return nil
}

// Close implements Device
func (d *WatchDevice) Close() error {
	d.mu.Lock()
	watcher, done := d.watcher, d.done
	d.watcher, d.done = nil, nil
	d.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

func (d *WatchDevice) loop(ctx context.Context, watcher *fsnotify.Watcher, sink func(Frame), done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ContentTypeForPath(ev.Name) == "" {
				continue
			}
			d.emit(ev.Name, sink)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("Watch error", "dir", d.dir, "error", err)
		}
	}
}

// emit decodes path and hands it to sink. A partially written file fails to
// decode and is picked up again by its next write event.
func (d *WatchDevice) emit(path string, sink func(Frame)) {
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Debug("Skipping unreadable frame file", "file", path, "error", err)
		return
	}
	img, err := DecodeImage(data, ContentTypeForPath(path))
	if err != nil {
		d.logger.Debug("Skipping undecodable frame file", "file", path, "error", err)
		return
	}
	sink(FrameFromImage(img, time.Now()))
}
