//go:build !linux

package devices

import (
	"errors"
	"fmt"
	"image"
)

// Webcam needs V4L2 and is only available on linux.
type Webcam struct{}

func OpenWebcam(device string, w, h int) (*Webcam, error) {
	return nil, fmt.Errorf("camera %s: %w", device, errors.ErrUnsupported)
}

func (c *Webcam) Capture() (*image.Gray, error) { return nil, errors.ErrUnsupported }

func (c *Webcam) Close() error { return nil }
