// Package projection computes generalized (off-axis) perspective
// projections for planar displays viewed from an arbitrary eye position,
// after Kooima, "Generalized Perspective Projection" (2008).
//
// Each display is described by three corners in world units: PA bottom-left,
// PB bottom-right, PC top-left. The resulting matrix maps world coordinates
// straight to clip space, so the camera using it keeps an identity view
// transform.
package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-9

var (
	// ErrDegenerateScreen is returned when the three corners do not span a plane.
	ErrDegenerateScreen = errors.New("projection: screen corners are collinear or coincident")

	// ErrEyeOnScreenPlane is returned when the eye lies in the plane of a screen.
	ErrEyeOnScreenPlane = errors.New("projection: eye lies on the screen plane")

	// ErrInvalidClip is returned for near <= 0 or far <= near.
	ErrInvalidClip = errors.New("projection: invalid clip distances")
)

// Screen is a physical display's reference corners.
type Screen struct {
	PA mgl64.Vec3 // bottom-left
	PB mgl64.Vec3 // bottom-right
	PC mgl64.Vec3 // top-left
}

// Basis is the orthonormal screen-space frame.
type Basis struct {
	Right  mgl64.Vec3
	Up     mgl64.Vec3
	Normal mgl64.Vec3
}

// Frustum holds the near-plane extents of an off-axis frustum.
type Frustum struct {
	Left, Right, Bottom, Top float64
	Near, Far                float64
}

// Validate checks that the corners span a plane.
func (s Screen) Validate() error {
	right := s.PB.Sub(s.PA)
	up := s.PC.Sub(s.PA)
	if right.Len() < epsilon || up.Len() < epsilon {
		return ErrDegenerateScreen
	}
	if right.Normalize().Cross(up.Normalize()).Len() < 1e-6 {
		return ErrDegenerateScreen
	}
	return nil
}

// Basis returns the screen's right, up and normal unit vectors.
func (s Screen) Basis() (Basis, error) {
	if err := s.Validate(); err != nil {
		return Basis{}, err
	}
	vr := s.PB.Sub(s.PA).Normalize()
	vu := s.PC.Sub(s.PA).Normalize()
	vn := vr.Cross(vu).Normalize()
	return Basis{Right: vr, Up: vu, Normal: vn}, nil
}

// Center returns the midpoint of the screen rectangle.
func (s Screen) Center() mgl64.Vec3 {
	return s.PB.Add(s.PC).Mul(0.5)
}

// ComputeFrustum returns the frustum extents for eye looking at screen.
func ComputeFrustum(eye mgl64.Vec3, s Screen, near, far float64) (Frustum, Basis, error) {
	if near <= 0 || far <= near || math.IsNaN(near) || math.IsNaN(far) {
		return Frustum{}, Basis{}, fmt.Errorf("%w: near=%g far=%g", ErrInvalidClip, near, far)
	}

	basis, err := s.Basis()
	if err != nil {
		return Frustum{}, Basis{}, err
	}

	va := s.PA.Sub(eye)
	vb := s.PB.Sub(eye)
	vc := s.PC.Sub(eye)

	d := -basis.Normal.Dot(va)
	if math.Abs(d) < epsilon {
		return Frustum{}, Basis{}, ErrEyeOnScreenPlane
	}

	scale := near / d
	return Frustum{
		Left:   basis.Right.Dot(va) * scale,
		Right:  basis.Right.Dot(vb) * scale,
		Bottom: basis.Up.Dot(va) * scale,
		Top:    basis.Up.Dot(vc) * scale,
		Near:   near,
		Far:    far,
	}, basis, nil
}

// Perspective returns the standard off-axis perspective matrix.
func (f Frustum) Perspective() mgl64.Mat4 {
	return mgl64.Frustum(f.Left, f.Right, f.Bottom, f.Top, f.Near, f.Far)
}

// Symmetric reports whether the frustum is centred on its axis.
func (f Frustum) Symmetric(tol float64) bool {
	return math.Abs(f.Left+f.Right) <= tol && math.Abs(f.Bottom+f.Top) <= tol
}

// OffAxis returns P * M^T * T: the perspective for the frustum, a rotation
// from world into screen space, and a translation moving the eye to the
// origin.
func OffAxis(eye mgl64.Vec3, s Screen, near, far float64) (mgl64.Mat4, error) {
	f, b, err := ComputeFrustum(eye, s, near, far)
	if err != nil {
		return mgl64.Mat4{}, err
	}

	// Column-major: the rows of the rotation are the screen basis vectors.
	rot := mgl64.Mat4{
		b.Right[0], b.Up[0], b.Normal[0], 0,
		b.Right[1], b.Up[1], b.Normal[1], 0,
		b.Right[2], b.Up[2], b.Normal[2], 0,
		0, 0, 0, 1,
	}
	trans := mgl64.Translate3D(-eye[0], -eye[1], -eye[2])

	return f.Perspective().Mul4(rot).Mul4(trans), nil
}

// All computes one matrix per screen for the same eye.
func All(eye mgl64.Vec3, screens []Screen, near, far float64) ([]mgl64.Mat4, error) {
	out := make([]mgl64.Mat4, len(screens))
	for i, s := range screens {
		m, err := OffAxis(eye, s, near, far)
		if err != nil {
			return nil, fmt.Errorf("screen %d: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}
