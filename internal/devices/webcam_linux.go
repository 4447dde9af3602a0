//go:build linux

package devices

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/blackjack/webcam"

	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

// frameTimeout is how long Capture waits for a frame, in seconds.
const frameTimeout = 5

func fourcc(s string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24)
}

// Webcam is a V4L2 camera delivering grayscale frames.
type Webcam struct {
	cam        *webcam.Webcam
	format     string
	srcW, srcH int
	w, h       int
}

var _ vision.Camera = (*Webcam)(nil)

// OpenWebcam opens device and starts streaming at w x h, preferring YUYV
// (no decode cost) over MJPG.
func OpenWebcam(device string, w, h int) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", device, err)
	}

	supported := cam.GetSupportedFormats()
	var (
		pxfmt webcam.PixelFormat
		name  string
	)
	for _, f := range []string{"YUYV", "MJPG", "JPEG"} {
		if _, ok := supported[fourcc(f)]; ok {
			pxfmt, name = fourcc(f), f
			break
		}
	}
	if name == "" {
		cam.Close()
		return nil, fmt.Errorf("camera %s: %w", device, ErrUnsupportedFormat)
	}

	_, gotW, gotH, err := cam.SetImageFormat(pxfmt, uint32(w), uint32(h))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera %s set format: %w", device, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera %s start streaming: %w", device, err)
	}
	log.Printf("camera: %s streaming %s %dx%d (analysed at %dx%d)", device, name, gotW, gotH, w, h)

	return &Webcam{cam: cam, format: name, srcW: int(gotW), srcH: int(gotH), w: w, h: h}, nil
}

// Capture blocks until the next frame is available.
func (c *Webcam) Capture() (*image.Gray, error) {
	for {
		err := c.cam.WaitForFrame(frameTimeout)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return nil, fmt.Errorf("camera: no frame within %ds", frameTimeout)
		}
		if err != nil {
			return nil, fmt.Errorf("camera wait: %w", err)
		}

		data, err := c.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("camera read: %w", err)
		}
		// Spurious wake-ups return an empty buffer.
		if len(data) == 0 {
			continue
		}
		return decodeFrame(c.format, data, c.srcW, c.srcH, c.w, c.h)
	}
}

func (c *Webcam) Close() error {
	if err := c.cam.StopStreaming(); err != nil {
		log.Printf("camera: stop streaming: %v", err)
	}
	return c.cam.Close()
}
