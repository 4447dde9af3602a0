// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package shared holds the few variables exchanged between the vision,
// motor and render loops. Every category has its own mutex, held only
// while the value is copied in or out; no I/O happens under a lock.
//
// Writers per category:
//   - motion command: vision loop (publish), motor loop (take)
//   - actuator status: motor loop
//   - viewpoint and tracking sample: vision loop
//   - stimulus status: render loop
package shared

import (
	"sync"

	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
)

// Store is injected into each loop. The zero value is ready to use.
type Store struct {
	motionMu sync.Mutex
	motion   motion.Command

	actuatorMu sync.Mutex
	actuator   motion.Status

	viewpointMu sync.Mutex
	viewpoint   orientation.Pose

	sampleMu   sync.Mutex
	sample     telemetry.Sample
	haveSample bool

	stimulusMu   sync.Mutex
	stimulus     telemetry.StimulusStatus
	haveStimulus bool
}

// New returns an empty store with the viewpoint set to initial.
func New(initial orientation.Pose) *Store {
	return &Store{viewpoint: initial}
}

// PublishMotion overwrites the pending move command.
func (s *Store) PublishMotion(c motion.Command) {
	s.motionMu.Lock()
	s.motion = c
	s.motionMu.Unlock()
}

// TakeMotion returns the pending move command and resets it to zero, so a
// command is handed out at most once.
func (s *Store) TakeMotion() motion.Command {
	s.motionMu.Lock()
	c := s.motion
	s.motion = motion.Command{}
	s.motionMu.Unlock()
	return c
}

// Motion returns the pending move command without clearing it.
func (s *Store) Motion() motion.Command {
	s.motionMu.Lock()
	defer s.motionMu.Unlock()
	return s.motion
}

func (s *Store) PublishActuator(st motion.Status) {
	s.actuatorMu.Lock()
	s.actuator = st
	s.actuatorMu.Unlock()
}

func (s *Store) Actuator() motion.Status {
	s.actuatorMu.Lock()
	defer s.actuatorMu.Unlock()
	return s.actuator
}

func (s *Store) PublishViewpoint(p orientation.Pose) {
	s.viewpointMu.Lock()
	s.viewpoint = p
	s.viewpointMu.Unlock()
}

func (s *Store) Viewpoint() orientation.Pose {
	s.viewpointMu.Lock()
	defer s.viewpointMu.Unlock()
	return s.viewpoint
}

// PublishSample records the latest tracking sample for telemetry.
func (s *Store) PublishSample(sm telemetry.Sample) {
	s.sampleMu.Lock()
	s.sample = sm
	s.haveSample = true
	s.sampleMu.Unlock()
}

// Sample returns the latest tracking sample and whether one exists yet.
func (s *Store) Sample() (telemetry.Sample, bool) {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()
	return s.sample, s.haveSample
}

func (s *Store) PublishStimulus(st telemetry.StimulusStatus) {
	s.stimulusMu.Lock()
	s.stimulus = st
	s.haveStimulus = true
	s.stimulusMu.Unlock()
}

func (s *Store) Stimulus() (telemetry.StimulusStatus, bool) {
	s.stimulusMu.Lock()
	defer s.stimulusMu.Unlock()
	return s.stimulus, s.haveStimulus
}
