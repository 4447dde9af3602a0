package vision

import (
	"image"
	"math"
)

// ThresholdDetector blurs the frame, crops the blur margin, keeps pixels at
// or below Threshold and returns the largest 4-connected region.
type ThresholdDetector struct {
	BlurSize  int   // box kernel size; also the crop margin
	Threshold uint8 // pixels <= Threshold are marker
	MinArea   int   // smaller regions are ignored
}

// Detect implements Detector.
func (d ThresholdDetector) Detect(frame *image.Gray) (Blob, bool) {
	if frame == nil {
		return Blob{}, false
	}
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	m := d.BlurSize
	if m < 0 {
		m = 0
	}
	cw, ch := w-2*m, h-2*m
	if cw <= 0 || ch <= 0 {
		return Blob{}, false
	}

	blurred := boxBlur(frame, d.BlurSize)

	mask := make([]bool, cw*ch)
	for y := 0; y < ch; y++ {
		row := (y + m) * w
		for x := 0; x < cw; x++ {
			mask[y*cw+x] = blurred[row+x+m] <= d.Threshold
		}
	}

	pixels := largestComponent(mask, cw, ch)
	if len(pixels) == 0 || len(pixels) < d.MinArea {
		return Blob{}, false
	}

	blob := moments(pixels, cw)
	blob.Width = cw
	blob.Height = ch
	return blob, true
}

// boxBlur returns the mean over a size x size window for every pixel of
// frame, in row-major order. Windows are cut at the frame edge.
func boxBlur(frame *image.Gray, size int) []uint8 {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)

	// x, y are relative to the frame origin, which need not be (0,0).
	src := func(x, y int) uint8 {
		return frame.Pix[frame.PixOffset(b.Min.X+x, b.Min.Y+y)]
	}
	if size <= 1 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = src(x, y)
			}
		}
		return out
	}

	// Integral image with a one pixel zero border.
	iw := w + 1
	integral := make([]uint32, iw*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint32
		for x := 0; x < w; x++ {
			rowSum += uint32(src(x, y))
			integral[(y+1)*iw+x+1] = integral[y*iw+x+1] + rowSum
		}
	}

	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}

	lo := size / 2
	for y := 0; y < h; y++ {
		y0 := clamp(y-lo, h)
		y1 := clamp(y-lo+size, h)
		for x := 0; x < w; x++ {
			x0 := clamp(x-lo, w)
			x1 := clamp(x-lo+size, w)
			area := uint32((x1 - x0) * (y1 - y0))
			sum := integral[y1*iw+x1] - integral[y0*iw+x1] - integral[y1*iw+x0] + integral[y0*iw+x0]
			out[y*w+x] = uint8((sum + area/2) / area)
		}
	}
	return out
}

// largestComponent returns the indices of the largest 4-connected set of
// true cells.
func largestComponent(mask []bool, w, h int) []int {
	seen := make([]bool, len(mask))
	var best, current, stack []int

	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		current = current[:0]
		stack = append(stack[:0], start)
		seen[start] = true

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			current = append(current, i)

			x, y := i%w, i/w
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if mask[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}

		if len(current) > len(best) {
			best = append(best[:0], current...)
		}
	}
	return best
}

// moments computes centroid and major axis angle from second central
// moments. Image y grows downwards; the angle is measured from +x towards +y.
func moments(pixels []int, w int) Blob {
	n := float64(len(pixels))
	var sx, sy float64
	for _, i := range pixels {
		sx += float64(i % w)
		sy += float64(i / w)
	}
	cx, cy := sx/n, sy/n

	var mu20, mu02, mu11 float64
	for _, i := range pixels {
		dx := float64(i%w) - cx
		dy := float64(i/w) - cy
		mu20 += dx * dx
		mu02 += dy * dy
		mu11 += dx * dy
	}

	angle := 0.5 * math.Atan2(2*mu11, mu20-mu02) * 180.0 / math.Pi
	angle = math.Mod(angle+180.0, 180.0)

	return Blob{
		// Pixel centres sit at +0.5.
		CenterX: cx + 0.5,
		CenterY: cy + 0.5,
		Angle:   angle,
		Area:    len(pixels),
	}
}
