package vision

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flyvr_rig/internal/orientation"
)

type fixedSource struct {
	pose orientation.Pose
	err  error
}

func (s fixedSource) Next() (orientation.Pose, error) { return s.pose, s.err }

func white(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fillRect(img *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func TestBlankFrameHasNoBlob(t *testing.T) {
	d := ThresholdDetector{BlurSize: 10, Threshold: 110, MinArea: 6}
	_, ok := d.Detect(white(200, 200))
	assert.False(t, ok)

	_, ok = d.Detect(nil)
	assert.False(t, ok)

	_, ok = d.Detect(white(15, 15))
	assert.False(t, ok, "frame smaller than the blur margins")
}

func TestDetectsMockEllipse(t *testing.T) {
	pose := orientation.Pose{X: 2, Z: -1, Yaw: orientation.DegToRad(30)}
	cam := NewMockCamera(200, 200, 9.1051, fixedSource{pose: pose})
	cam.SemiMajor = 20
	cam.SemiMinor = 8

	frame, err := cam.Capture()
	require.NoError(t, err)
	assert.Equal(t, 1, cam.Frames())

	d := ThresholdDetector{BlurSize: 4, Threshold: 110, MinArea: 6}
	blob, ok := d.Detect(frame)
	require.True(t, ok)

	assert.Equal(t, 192, blob.Width)
	assert.Equal(t, 192, blob.Height)

	x, y := blob.Offset()
	assert.InDelta(t, 2*9.1051, x, 1.0)
	assert.InDelta(t, -1*9.1051, y, 1.0)
	assert.InDelta(t, 30, blob.Angle, 2.0)
	assert.Greater(t, blob.Area, 300)
}

func TestAngleRange(t *testing.T) {
	d := ThresholdDetector{BlurSize: 0, Threshold: 110, MinArea: 1}
	for _, deg := range []float64{0, 45, 90, 135, 170} {
		cam := NewMockCamera(120, 120, 1, fixedSource{pose: orientation.Pose{Yaw: orientation.DegToRad(deg)}})
		cam.SemiMajor = 30
		cam.SemiMinor = 6
		frame, err := cam.Capture()
		require.NoError(t, err)

		blob, ok := d.Detect(frame)
		require.True(t, ok)
		assert.GreaterOrEqual(t, blob.Angle, 0.0)
		assert.Less(t, blob.Angle, 180.0)

		diff := blob.Angle - deg
		if diff > 90 {
			diff -= 180
		} else if diff < -90 {
			diff += 180
		}
		assert.InDelta(t, 0, diff, 1.5, "yaw %v got %v", deg, blob.Angle)
	}
}

func TestLargestRegionWins(t *testing.T) {
	img := white(100, 100)
	fillRect(img, image.Rect(10, 10, 14, 14), 0) // 16 px
	fillRect(img, image.Rect(50, 60, 60, 70), 0) // 100 px

	d := ThresholdDetector{Threshold: 110, MinArea: 6}
	blob, ok := d.Detect(img)
	require.True(t, ok)
	assert.Equal(t, 100, blob.Area)
	assert.InDelta(t, 55, blob.CenterX, 1e-9)
	assert.InDelta(t, 65, blob.CenterY, 1e-9)
}

func TestDiagonalPixelsAreSeparateRegions(t *testing.T) {
	img := white(10, 10)
	img.SetGray(2, 2, color.Gray{})
	img.SetGray(3, 3, color.Gray{})

	d := ThresholdDetector{Threshold: 110, MinArea: 1}
	blob, ok := d.Detect(img)
	require.True(t, ok)
	assert.Equal(t, 1, blob.Area)
}

func TestMinArea(t *testing.T) {
	img := white(50, 50)
	fillRect(img, image.Rect(20, 20, 22, 22), 0)

	_, ok := ThresholdDetector{Threshold: 110, MinArea: 6}.Detect(img)
	assert.False(t, ok)
	_, ok = ThresholdDetector{Threshold: 110, MinArea: 4}.Detect(img)
	assert.True(t, ok)
}

func TestBoxBlurKeepsUniformImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 30, 20))
	for i := range img.Pix {
		img.Pix[i] = 77
	}
	for _, v := range boxBlur(img, 10) {
		require.Equal(t, uint8(77), v)
	}
}

func TestBoxBlurAveragesStep(t *testing.T) {
	img := white(4, 1)
	img.Pix[0], img.Pix[1] = 0, 0

	out := boxBlur(img, 2)
	// Window is [x-1, x]; edges clamp.
	assert.Equal(t, []uint8{0, 0, 128, 255}, out)
}

func TestDetectOnSubImage(t *testing.T) {
	img := white(100, 100)
	fillRect(img, image.Rect(50, 60, 60, 70), 0)
	sub, ok := img.SubImage(image.Rect(40, 40, 100, 100)).(*image.Gray)
	require.True(t, ok)

	blob, found := ThresholdDetector{Threshold: 110, MinArea: 6}.Detect(sub)
	require.True(t, found)
	assert.Equal(t, 100, blob.Area)
	assert.InDelta(t, 15, blob.CenterX, 1e-9)
	assert.InDelta(t, 25, blob.CenterY, 1e-9)

	// Same pixels copied to a frame at the origin blur the same way.
	crop := white(60, 60)
	fillRect(crop, image.Rect(10, 20, 20, 30), 0)
	assert.Equal(t, boxBlur(crop, 4), boxBlur(sub, 4))
}

func TestMockCameraPropagatesSourceError(t *testing.T) {
	cam := NewMockCamera(10, 10, 1, fixedSource{err: errors.New("replay ended")})
	_, err := cam.Capture()
	assert.Error(t, err)
	assert.NoError(t, cam.Close())
}
