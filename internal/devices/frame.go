package devices

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ErrUnsupportedFormat is returned for pixel formats the camera adapter
// cannot decode.
var ErrUnsupportedFormat = errors.New("camera: unsupported pixel format")

// decodeFrame turns a raw V4L2 buffer into a grayscale image of exactly
// w x h, scaling when the device delivered another size.
func decodeFrame(format string, data []byte, srcW, srcH, w, h int) (*image.Gray, error) {
	var src image.Image

	switch format {
	case "MJPG", "JPEG":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode jpeg frame: %w", err)
		}
		src = img
	case "YUYV":
		if len(data) < srcW*srcH*2 {
			return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(data), srcW, srcH)
		}
		g := image.NewGray(image.Rect(0, 0, srcW, srcH))
		for i := 0; i < srcW*srcH; i++ {
			g.Pix[i] = data[2*i]
		}
		src = g
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if g, ok := src.(*image.Gray); ok && g.Bounds().Dx() == w && g.Bounds().Dy() == h {
		return g, nil
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return dst, nil
}
