// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stimulus implements the timed visual stimuli shown by the render
// loop. Every stimulus walks Init, WaitBefore, Active, WaitAfter, Done,
// driven by wall-clock time since entering the current state.
package stimulus

import (
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/render"
)

var (
	// ErrInvalidState means the state variable holds an unknown value.
	ErrInvalidState = errors.New("stimulus: invalid state")

	// ErrUnknownType is returned for a stimulus type with no implementation.
	ErrUnknownType = errors.New("stimulus: unknown type")
)

// State is a stimulus lifecycle state.
type State int

const (
	Init State = iota
	WaitBefore
	Active
	WaitAfter
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case WaitBefore:
		return "wait_before"
	case Active:
		return "active"
	case WaitAfter:
		return "wait_after"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stimulus is one presentable stimulus. Update is called once per rendered
// frame with the current viewpoint.
type Stimulus interface {
	Name() string
	Update(pose orientation.Pose) error
	State() State
	Done() bool
	Close() error
}

// Trigger is a digital output raised while a stimulus is active, used to
// synchronise external recording equipment.
type Trigger interface {
	Set(high bool) error
}

// Background is the part of the renderer a stimulus needs besides the
// scene graph.
type Background interface {
	SetBackground(c render.Color)
}

// Option configures a stimulus.
type Option func(*options)

type options struct {
	now     func() time.Time
	trigger Trigger
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTrigger raises t while the stimulus is active.
func WithTrigger(t Trigger) Option {
	return func(o *options) { o.trigger = t }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
