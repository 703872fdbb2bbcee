package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultReplayInterval is the delay between replayed frames
const DefaultReplayInterval = 500 * time.Millisecond

// ReplayDevice plays back a directory of captured images as a camera feed, looping
type ReplayDevice struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReplayDevice creates a device that emits one image from dir per interval
func NewReplayDevice(dir string, interval time.Duration, logger *slog.Logger) *ReplayDevice {
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayDevice{dir: dir, interval: interval, logger: logger}
}

// Open implements Device. It fails when the directory holds no decodable images.
func (d *ReplayDevice) Open(ctx context.Context, sink func(Frame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrDeviceBusy
	}

	images, err := d.load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(ctx, images, sink, d.done)
	return nil
}

// Close implements Device
func (d *ReplayDevice) Close() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (d *ReplayDevice) load() ([]image.Image, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("reading replay directory: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() || ContentTypeForPath(e.Name()) == "" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var images []image.Image
	for _, name := range names {
		path := filepath.Join(d.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		decoded, err := DecodeImages(data, ContentTypeForPath(path))
		if err != nil {
			d.logger.Warn("Skipping undecodable replay file", "file", name, "error", err)
			continue
		}
		images = append(images, decoded...)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images found in %s", d.dir)
	}
	d.logger.Info("Loaded replay frames", "dir", d.dir, "frames", len(images))
	return images, nil
}

func (d *ReplayDevice) loop(ctx context.Context, images []image.Image, sink func(Frame), done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(images) {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sink(FrameFromImage(images[i], now))
		}
	}
}
