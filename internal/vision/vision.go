// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package vision finds the tracked marker in camera frames.
package vision

import (
	"image"
)

// Camera delivers grayscale frames.
type Camera interface {
	Capture() (*image.Gray, error)
	Close() error
}

// Blob is the largest dark region of a frame.
// CenterX and CenterY are pixels within the analysed region, which is the
// frame minus the blur margin on every side; Width and Height are the size
// of that region. Angle is the major axis orientation in degrees, [0,180).
type Blob struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Angle   float64 `json:"angle"`
	Area    int     `json:"area"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// Offset returns the blob centre relative to the centre of the analysed
// region, in pixels.
func (b Blob) Offset() (x, y float64) {
	return b.CenterX - float64(b.Width)/2.0, b.CenterY - float64(b.Height)/2.0
}

// Detector finds the largest blob in a frame, if any.
type Detector interface {
	Detect(frame *image.Gray) (Blob, bool)
}
