package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied is returned by a device that has not been granted camera access
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceBusy is returned when a device is already open
	ErrDeviceBusy = errors.New("camera device busy")

	// ErrDeviceClosed is returned when frames are pushed to a device that is not open
	ErrDeviceClosed = errors.New("camera device not open")
)

// Device is the platform camera. Open starts capture and calls sink for every frame
// until Close is called or ctx is done. sink must not be called after Close returns.
type Device interface {
	Open(ctx context.Context, sink func(Frame)) error
	Close() error
}

// PushDevice is a device whose frames are pushed from outside, e.g. uploaded by a phone
type PushDevice struct {
	mu       sync.Mutex
	sink     func(Frame)
	disabled bool
}

// NewPushDevice creates a new PushDevice
func NewPushDevice() *PushDevice {
	return &PushDevice{}
}

// SetPermission grants or revokes camera access. Revoking closes an open device.
func (d *PushDevice) SetPermission(granted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled = !granted
	if !granted {
		d.sink = nil
	}
}

// Open implements Device
func (d *PushDevice) Open(ctx context.Context, sink func(Frame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disabled {
		return ErrPermissionDenied
	}
	if d.sink != nil {
		return ErrDeviceBusy
	}
	d.sink = sink
	return nil
}

// Close implements Device
func (d *PushDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = nil
	return nil
}

// Push hands a frame to the open source
func (d *PushDevice) Push(frame Frame) error {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink == nil {
		return ErrDeviceClosed
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	sink(frame)
	return nil
}

// PushImage decodes an encoded image (JPEG, PNG, GIF, HEIC) and pushes it as a frame
func (d *PushDevice) PushImage(data []byte, contentType string) error {
	img, err := DecodeImage(data, contentType)
	if err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return d.Push(FrameFromImage(img, time.Now()))
}
