// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"sync"
	"time"
)

// MockMotor simulates a stage that takes a fixed time per move.
// It is safe for concurrent use so tests can inspect it while the
// motor loop is running.
type MockMotor struct {
	mu       sync.Mutex
	now      func() time.Time
	travel   time.Duration
	status   Status
	busyTill time.Time
	moves    []Command
	closed   bool
}

// NewMockMotor creates a simulated stage at the origin. Each move keeps the
// stage busy for travel.
func NewMockMotor(travel time.Duration) *MockMotor {
	return &MockMotor{now: time.Now, travel: travel}
}

// WithClock replaces the time source, mostly for tests.
func (m *MockMotor) WithClock(now func() time.Time) *MockMotor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MockMotor) ReadStatus() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.status
	s.Moving = m.now().Before(m.busyTill)
	return s, nil
}

func (m *MockMotor) Move(dx, dy float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.X += dx
	m.status.Y += dy
	m.busyTill = m.now().Add(m.travel)
	m.moves = append(m.moves, Command{DX: dx, DY: dy})
	return nil
}

func (m *MockMotor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Moves returns a copy of every move issued so far.
func (m *MockMotor) Moves() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.moves))
	copy(out, m.moves)
	return out
}

// Closed reports whether Close was called.
func (m *MockMotor) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
