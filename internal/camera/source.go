package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDeviceUnavailable is returned by Start when the camera cannot be acquired
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// Consumer receives frames from a Source. Submit must not block or call back into
// the Source; it returns false when the consumer is busy and the frame was dropped.
type Consumer interface {
	Submit(frame Frame) bool
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Stats summarises frame delivery for instrumentation
type Stats struct {
	Captured      uint64 `json:"captured"`
	Delivered     uint64 `json:"delivered"`
	DroppedBusy   uint64 `json:"dropped_busy"`
	DroppedPaused uint64 `json:"dropped_paused"`
	DroppedStale  uint64 `json:"dropped_stale"`
}

// Source owns the camera device and delivers its frames to a single consumer.
// Frames pass through a one-slot buffer: a frame arriving while the slot is full
// is dropped, so a slow consumer never causes unbounded buffering.
type Source struct {
	device     Device
	logger     *slog.Logger
	timeSource TimeSource

	// lifecycle serializes Start and Stop, including the device close
	lifecycle sync.Mutex

	mu        sync.Mutex
	consumer  Consumer
	state     ScanState
	resumedAt time.Time
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	slot     chan Frame
	sequence atomic.Uint64

	captured      atomic.Uint64
	delivered     atomic.Uint64
	droppedBusy   atomic.Uint64
	droppedPaused atomic.Uint64
	droppedStale  atomic.Uint64
}

// NewSource creates a stopped, active source for the device
func NewSource(device Device, logger *slog.Logger) *Source {
	return NewSourceWithDeps(device, logger, defaultTimeSource{})
}

// NewSourceWithDeps creates a source with a custom time source for testing
func NewSourceWithDeps(device Device, logger *slog.Logger, timeSource TimeSource) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		device:     device,
		logger:     logger,
		timeSource: timeSource,
		state:      Active,
		slot:       make(chan Frame, 1),
	}
}

// Subscribe sets the consumer frames are delivered to, replacing any previous one
func (s *Source) Subscribe(c Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumer = c
}

// Start acquires the device and begins delivery. Starting a running source is a no-op.
func (s *Source) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	// frames captured before this start (e.g. during a previous session) are stale
	s.resumedAt = s.timeSource.Now()
	s.drain()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go s.loop(loopCtx, done)

	if err := s.device.Open(loopCtx, s.sink); err != nil {
		cancel()
		<-done
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	s.running = true
	s.cancel = cancel
	s.done = done
	s.logger.Info("Camera started", "scan_state", s.state.String())
	return nil
}

// Stop releases the device. It is safe to call more than once.
func (s *Source) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	err := s.device.Close()

	s.mu.Lock()
	s.drain()
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("closing camera device: %w", err)
	}
	s.logger.Info("Camera stopped")
	return nil
}

// Running reports whether the device is acquired
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetScanState pauses or resumes delivery without releasing the device.
// Resuming discards any buffered frame so the next delivered frame is a fresh capture.
func (s *Source) SetScanState(state ScanState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	if prev == state {
		return
	}
	if prev == Paused && state == Active {
		s.resumedAt = s.timeSource.Now()
		s.drain()
	}
	s.state = state
	s.logger.Debug("scan state transition", "from", prev.String(), "to", state.String())
}

// ScanState returns the current scan state
func (s *Source) ScanState() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns delivery counters
func (s *Source) Stats() Stats {
	return Stats{
		Captured:      s.captured.Load(),
		Delivered:     s.delivered.Load(),
		DroppedBusy:   s.droppedBusy.Load(),
		DroppedPaused: s.droppedPaused.Load(),
		DroppedStale:  s.droppedStale.Load(),
	}
}

// sink is handed to the device and never blocks
func (s *Source) sink(frame Frame) {
	s.captured.Add(1)
	frame.Sequence = s.sequence.Add(1)
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = s.timeSource.Now()
	}
	select {
	case s.slot <- frame:
	default:
		s.droppedBusy.Add(1)
	}
}

// drain empties the slot; callers hold s.mu
func (s *Source) drain() {
	for {
		select {
		case <-s.slot:
			s.droppedStale.Add(1)
		default:
			return
		}
	}
}

func (s *Source) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.slot:
			s.deliver(frame)
		}
	}
}

// deliver holds s.mu across Submit so a pause cannot interleave with a delivery
func (s *Source) deliver(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Paused:
		s.droppedPaused.Add(1)
	case frame.CapturedAt.Before(s.resumedAt):
		s.droppedStale.Add(1)
	case s.consumer == nil || !s.consumer.Submit(frame):
		s.droppedBusy.Add(1)
	default:
		s.delivered.Add(1)
	}
}
