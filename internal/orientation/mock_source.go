// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock source that wanders smoothly around the
// origin: X/Z in a Lissajous pattern of a few mm, yaw sweeping slowly.
func NewMockSource() Source {
	return NewMockSourceWithClock(time.Now)
}

// NewMockSourceWithClock is NewMockSource driven by now instead of the wall
// clock. The pattern starts at the first reading of now.
func NewMockSourceWithClock(now func() time.Time) Source {
	return &mockSource{start: now(), now: now}
}

func (m *mockSource) Next() (Pose, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	return Pose{
		X:   6 * math.Sin(elapsed*0.8),
		Y:   0,
		Z:   4 * math.Cos(elapsed*0.5),
		Yaw: DegToRad(math.Mod(elapsed*30, 180)),
	}, nil
}
