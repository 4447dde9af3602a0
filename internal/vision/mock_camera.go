package vision

import (
	"image"
	"math"
	"sync"

	"github.com/relabs-tech/flyvr_rig/internal/orientation"
)

// MockCamera draws a dark ellipse on a white frame. The ellipse follows an
// orientation.Source: pose X/Z in mm move it, pose Yaw rotates it.
type MockCamera struct {
	Width, Height int
	PixelsPerMM   float64
	SemiMajor     float64 // pixels
	SemiMinor     float64 // pixels

	mu     sync.Mutex
	source orientation.Source
	frames int
	closed bool
}

// NewMockCamera creates a w x h camera following src.
func NewMockCamera(w, h int, pixelsPerMM float64, src orientation.Source) *MockCamera {
	return &MockCamera{
		Width:       w,
		Height:      h,
		PixelsPerMM: pixelsPerMM,
		SemiMajor:   12,
		SemiMinor:   5,
		source:      src,
	}
}

func (c *MockCamera) Capture() (*image.Gray, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pose, err := c.source.Next()
	if err != nil {
		return nil, err
	}
	c.frames++

	img := image.NewGray(image.Rect(0, 0, c.Width, c.Height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	cx := float64(c.Width)/2 + pose.X*c.PixelsPerMM
	cy := float64(c.Height)/2 + pose.Z*c.PixelsPerMM
	cos, sin := math.Cos(pose.Yaw), math.Sin(pose.Yaw)
	a2, b2 := c.SemiMajor*c.SemiMajor, c.SemiMinor*c.SemiMinor

	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			u := dx*cos + dy*sin
			v := -dx*sin + dy*cos
			if u*u/a2+v*v/b2 <= 1 {
				img.Pix[y*img.Stride+x] = 0
			}
		}
	}
	return img, nil
}

// Frames returns how many frames were captured.
func (c *MockCamera) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *MockCamera) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
