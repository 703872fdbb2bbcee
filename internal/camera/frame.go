// Package camera owns the frame device and the delivery of frames to the scan pipeline.
package camera

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one captured image as tightly packed RGBA pixels.
// A frame handed to a consumer is only valid for the duration of that call;
// a consumer that keeps it longer works on its own copy (see Clone).
type Frame struct {
	Pix        []byte
	Width      int
	Height     int
	CapturedAt time.Time
	Sequence   uint64
}

// Valid reports whether the pixel buffer matches the frame dimensions
func (f Frame) Valid() bool {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) == 0 {
		return false
	}
	return len(f.Pix) == f.Width*f.Height*4
}

// Clone returns a frame with its own pixel buffer
func (f Frame) Clone() Frame {
	f.Pix = append([]byte(nil), f.Pix...)
	return f
}

// Image wraps the pixel buffer without copying it
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// FrameFromImage copies img into a new frame
func FrameFromImage(img image.Image, capturedAt time.Time) Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return Frame{
		Pix:        rgba.Pix,
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: capturedAt,
	}
}

// ScanState controls whether frames reach the pipeline
type ScanState int

const (
	Active ScanState = iota
	Paused
)

func (s ScanState) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}
