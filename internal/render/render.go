// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package render defines the rendering backend the render loop drives and
// a headless implementation used for mock runs and tests.
package render

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/relabs-tech/flyvr_rig/internal/projection"
)

var (
	ErrNotStarted = errors.New("render: renderer not started")
	ErrNoDisplay  = errors.New("render: no such display")
)

// Display is one physical screen: its window properties and the corners
// used for the off-axis projection.
type Display struct {
	ID         int
	Name       string
	Width      int
	Height     int
	Fullscreen bool
	Screen     projection.Screen
}

// Renderer is a rendering backend with one camera per display.
// It is only used from the render loop goroutine.
type Renderer interface {
	Start() error
	Displays() []Display
	// SetProjection installs a custom projection matrix on a display's
	// camera. The camera's view transform stays identity.
	SetProjection(display int, m mgl64.Mat4) error
	SetBackground(c Color)
	RenderFrame() error
	Scene() *Scene
	Close() error
}

// Screens extracts the projection corners of each display.
func Screens(ds []Display) []projection.Screen {
	out := make([]projection.Screen, len(ds))
	for i, d := range ds {
		out[i] = d.Screen
	}
	return out
}

func checkDisplay(ds []Display, i int) error {
	if i < 0 || i >= len(ds) {
		return fmt.Errorf("%w: %d of %d", ErrNoDisplay, i, len(ds))
	}
	return nil
}
