// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/projection"
	"github.com/relabs-tech/flyvr_rig/internal/render"
	"github.com/relabs-tech/flyvr_rig/internal/shared"
	"github.com/relabs-tech/flyvr_rig/internal/stimulus"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
	"github.com/relabs-tech/flyvr_rig/internal/timing"
)

type RenderLoopConfig struct {
	LogPath      string
	NearClip     float64
	FarClip      float64
	TargetPeriod time.Duration

	// StopWhenDone makes the loop return ErrStimuliDone after the last
	// stimulus finished.
	StopWhenDone bool
}

// RenderStats counts what the render loop did.
type RenderStats struct {
	Frames           int
	Overruns         int
	StimuliPresented int
	Timing           timing.Stats
}

// StimulusFactory builds the stimulus sequence once the renderer is live.
type StimulusFactory func(r render.Renderer) (*stimulus.Manager, error)

// RunRenderLoop starts the renderer, builds the stimuli and calls ready.
// Then, every frame, it reads the viewpoint, updates every display's
// off-axis projection, advances the current stimulus and renders.
// A viewpoint on a screen plane keeps the previous projections for that
// frame; any other failure is fatal.
func RunRenderLoop(ctx context.Context, cfg RenderLoopConfig, r render.Renderer, newStimuli StimulusFactory, store *shared.Store, ready func()) (stats RenderStats, err error) {
	if err := r.Start(); err != nil {
		return stats, &LoopError{Loop: "render", Err: fmt.Errorf("%w: start: %w", ErrRender, err)}
	}
	displays := r.Displays()
	screens := render.Screens(displays)
	for i, s := range screens {
		if err := s.Validate(); err != nil {
			return stats, &LoopError{Loop: "render", Err: fmt.Errorf("display %q: %w", displays[i].Name, err)}
		}
	}

	mgr, err := newStimuli(r)
	if err != nil {
		return stats, &LoopError{Loop: "render", Err: fmt.Errorf("stimuli: %w", err)}
	}
	store.PublishStimulus(mgr.Status())

	timer := timing.NewTimer("render", cfg.LogPath)
	pacer := timing.NewPacer("render")
	defer func() {
		if cerr := mgr.Close(); cerr != nil {
			log.Printf("render: close stimulus: %v", cerr)
		}
		stats.StimuliPresented = mgr.Presented()
		stats.Overruns = pacer.Overruns()
		stats.Timing = timer.Stats()
		timer.Close()
		log.Printf("render: stopped after %d frames, %d overruns", stats.Frames, stats.Overruns)
	}()

	log.Printf("render: %d displays ready", len(displays))
	ready()

	var eyeWarned bool
	for i := 0; ctx.Err() == nil; i++ {
		timer.Tick()

		vp := store.Viewpoint()
		eye := mgl64.Vec3{vp.X, vp.Y, vp.Z}

		mats, err := projection.All(eye, screens, cfg.NearClip, cfg.FarClip)
		switch {
		case errors.Is(err, projection.ErrEyeOnScreenPlane):
			if !eyeWarned {
				log.Printf("render: viewpoint %.3f,%.3f,%.3f on a screen plane, keeping last projection", vp.X, vp.Y, vp.Z)
				eyeWarned = true
			}
		case err != nil:
			return stats, &LoopError{Loop: "render", Iteration: i, Err: err}
		default:
			eyeWarned = false
			for d, m := range mats {
				if err := r.SetProjection(d, m); err != nil {
					return stats, &LoopError{Loop: "render", Iteration: i, Err: fmt.Errorf("%w: %w", ErrRender, err)}
				}
			}
		}

		if err := mgr.Update(vp); err != nil {
			return stats, &LoopError{Loop: "render", Iteration: i, Err: err}
		}
		store.PublishStimulus(mgr.Status())

		if err := r.RenderFrame(); err != nil {
			return stats, &LoopError{Loop: "render", Iteration: i, Err: fmt.Errorf("%w: %w", ErrRender, err)}
		}
		stats.Frames++

		elapsed := timer.Tock(telemetry.CSVFields(vp.X, vp.Y, vp.Z, vp.Yaw)...)
		pacer.PaceTo(cfg.TargetPeriod, elapsed)

		if cfg.StopWhenDone && mgr.Done() {
			return stats, ErrStimuliDone
		}
	}
	return stats, nil
}

// NewStimulusFactory builds the standard stimulus manager on the renderer's
// scene. The renderer also provides the background colour.
func NewStimulusFactory(stimuli []config.StimulusConfig, opts ...stimulus.Option) StimulusFactory {
	return func(r render.Renderer) (*stimulus.Manager, error) {
		return stimulus.NewManager(stimuli, stimulus.NewFactory(r.Scene(), r, opts...)), nil
	}
}
