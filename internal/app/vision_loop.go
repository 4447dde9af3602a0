// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/shared"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
	"github.com/relabs-tech/flyvr_rig/internal/timing"
	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

// VisionLoopConfig holds the tracking parameters of the vision loop.
type VisionLoopConfig struct {
	LogPath string

	// MaxIterations stops the loop after that many frames. Zero runs until
	// the context is cancelled.
	MaxIterations int

	PixelsPerMM float64
	MinMove     float64
	MaxMove     float64

	FilterWindow    int
	ViewpointHeight float64
	ViewpointScale  float64

	// Now stamps samples; nil means time.Now.
	Now func() time.Time
}

// VisionStats counts what the vision loop saw.
type VisionStats struct {
	Iterations int
	BlobsFound int
	Commands   int
	Timing     timing.Stats
}

// RunVisionLoop captures frames, finds the marker and turns its offset into
// a bounded stage command and a viewpoint for the render loop. A frame
// without a blob logs a zero record and publishes nothing. A capture error
// is fatal.
func RunVisionLoop(ctx context.Context, cfg VisionLoopConfig, cam vision.Camera, det vision.Detector, store *shared.Store) (stats VisionStats, err error) {
	if cfg.PixelsPerMM <= 0 {
		return stats, fmt.Errorf("vision: pixels per mm must be positive, got %v", cfg.PixelsPerMM)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	timer := timing.NewTimer("vision", cfg.LogPath)
	filter := orientation.NewMovingAverage(cfg.FilterWindow)
	defer func() {
		stats.Timing = timer.Stats()
		timer.Close()
		log.Printf("vision: stopped after %d frames, %d with a blob", stats.Iterations, stats.BlobsFound)
	}()

	for i := 0; cfg.MaxIterations == 0 || i < cfg.MaxIterations; i++ {
		if ctx.Err() != nil {
			break
		}
		timer.Tick()

		frame, err := cam.Capture()
		if err != nil {
			return stats, &LoopError{Loop: "vision", Iteration: i, Err: fmt.Errorf("%w: %w", ErrCameraRead, err)}
		}
		stats.Iterations++

		sample := telemetry.Sample{Time: now().Format(time.RFC3339Nano), Iteration: i}

		blob, ok := det.Detect(frame)
		if !ok {
			elapsed := timer.Tock(sample.Fields()...)
			sample.LoopSeconds = elapsed.Seconds()
			store.PublishSample(sample)
			continue
		}
		stats.BlobsFound++

		px, py := blob.Offset()
		camX := px / cfg.PixelsPerMM
		camY := py / cfg.PixelsPerMM

		// Image x grows the opposite way to stage x.
		store.PublishMotion(motion.Bound(-camX, camY, cfg.MinMove, cfg.MaxMove))
		stats.Commands++

		act := store.Actuator()
		filtered := filter.Push(blob.Angle)
		vp := orientation.ViewpointFromTracking(act.X, act.Y, camX, camY, filtered, cfg.ViewpointHeight, cfg.ViewpointScale)
		store.PublishViewpoint(vp)

		sample.Found = true
		sample.X = camX
		sample.Y = camY
		sample.ActuatorX = act.X
		sample.ActuatorY = act.Y
		sample.Angle = blob.Angle
		sample.FilteredAngle = filtered
		sample.Viewpoint = vp

		elapsed := timer.Tock(sample.Fields()...)
		sample.LoopSeconds = elapsed.Seconds()
		store.PublishSample(sample)
	}
	return stats, nil
}
