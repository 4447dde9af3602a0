// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import "math"

// Command is a pending, not-yet-applied stage displacement in mm.
// The zero value means "no pending move".
type Command struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// IsZero reports whether the command requests no motion.
func (c Command) IsZero() bool {
	return c.DX == 0 && c.DY == 0
}

// Status is the last known state of the stage, in mm.
type Status struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Moving bool    `json:"moving"`
}

// Motor is the stage controller the motor loop talks to.
// Implementations are not required to be safe for concurrent use; only the
// motor loop calls them.
type Motor interface {
	ReadStatus() (Status, error)
	Move(dx, dy float64) error
	Close() error
}

// Clamp bounds a requested move. Magnitudes below minMove snap to zero
// (dead-band), magnitudes above maxMove are limited to ±maxMove.
func Clamp(v, minMove, maxMove float64) float64 {
	switch {
	case math.Abs(v) < minMove:
		return 0
	case v < -maxMove:
		return -maxMove
	case v > maxMove:
		return maxMove
	default:
		return v
	}
}

// Bound clamps both axes of a raw displacement.
func Bound(dx, dy, minMove, maxMove float64) Command {
	return Command{
		DX: Clamp(dx, minMove, maxMove),
		DY: Clamp(dy, minMove, maxMove),
	}
}
