// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/devices"
	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/render"
	"github.com/relabs-tech/flyvr_rig/internal/session"
	"github.com/relabs-tech/flyvr_rig/internal/shared"
	"github.com/relabs-tech/flyvr_rig/internal/stimulus"
	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

// mockStageTravel is how long the simulated stage stays busy per move.
const mockStageTravel = 40 * time.Millisecond

// mockMotorInterval keeps the mock motor loop from spinning.
const mockMotorInterval = 2 * time.Millisecond

// Rig wires the three loops together. Build one with NewRig, or fill the
// fields directly in tests.
type Rig struct {
	Config     *config.Config
	ConfigFile string
	Displays   *config.DisplaySetup
	Stimuli    []config.StimulusConfig

	Renderer render.Renderer
	Motor    motion.Motor
	Camera   vision.Camera
	Detector vision.Detector
	Trigger  stimulus.Trigger // optional

	Store *shared.Store

	// Telemetry, when set, receives tracker/actuator/stimulus JSON while
	// the loops run.
	Telemetry Publisher

	// Now is the wall clock for the manifest and stimuli. nil means time.Now.
	Now func() time.Time
}

// NewRig opens every device named by cfg, or their simulated versions when
// USE_MOCK_DEVICES is set. Devices are opened renderer first, then motor,
// camera and trigger; on failure the ones already open are closed.
func NewRig(cfg *config.Config, setup *config.DisplaySetup, stimuli []config.StimulusConfig) (*Rig, error) {
	r := &Rig{
		Config:   cfg,
		Displays: setup,
		Stimuli:  stimuli,
		Store:    shared.New(orientation.Pose{Y: cfg.ViewpointHeight}),
		Detector: detectorFor(cfg),
	}

	r.Renderer = render.NewHeadless(setup.Displays)

	if cfg.UseMockDevices {
		log.Printf("rig: using mock devices")
		r.Motor = motion.NewMockMotor(mockStageTravel)
		r.Camera = vision.NewMockCamera(cfg.CameraWidth, cfg.CameraHeight, cfg.PixelsPerMM,
			&stageView{fly: orientation.NewMockSource(), store: r.Store})
		return r, nil
	}

	grbl, err := devices.OpenGRBL(cfg.GRBLSerialPort, cfg.GRBLBaudRate, cfg.GRBLFeedRate)
	if err != nil {
		r.closeDevices()
		return nil, err
	}
	r.Motor = grbl

	cam, err := devices.OpenWebcam(cfg.CameraDevice, cfg.CameraWidth, cfg.CameraHeight)
	if err != nil {
		r.closeDevices()
		return nil, err
	}
	r.Camera = cam

	if cfg.TriggerGPIOPin != "" {
		trig, err := devices.OpenGPIOTrigger(cfg.TriggerGPIOPin)
		if err != nil {
			r.closeDevices()
			return nil, err
		}
		r.Trigger = trig
	}
	return r, nil
}

// closeDevices releases whatever NewRig managed to open, newest first.
func (r *Rig) closeDevices() {
	closeQuietly("trigger", r.Trigger)
	if r.Camera != nil {
		closeQuietly("camera", r.Camera)
	}
	if r.Motor != nil {
		closeQuietly("motor", r.Motor)
	}
	if r.Renderer != nil {
		closeQuietly("renderer", r.Renderer)
	}
}

func closeQuietly(name string, v any) {
	c, ok := v.(io.Closer)
	if !ok || c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Printf("rig: close %s: %v", name, err)
	}
}

func (r *Rig) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Rig) logPath(name string) string {
	if r.Config.LogDir == "" {
		return ""
	}
	return filepath.Join(r.Config.LogDir, name)
}

// Run starts the render loop, waits until it is live, then starts the motor
// loop and runs the vision loop on the calling goroutine. The session ends
// when the vision loop reaches its frame budget, when every stimulus has
// been shown, when ctx is cancelled, or when any loop fails. Shutdown stops
// the motor loop, then the render loop, each bounded by SHUTDOWN_TIMEOUT,
// and then releases the camera, renderer and trigger.
//
// The returned error is the first fatal loop error, joined with any
// shutdown timeout. The manifest is returned and saved to LOG_DIR either way.
func (r *Rig) Run(ctx context.Context) (*session.Manifest, error) {
	cfg := r.Config
	manifest := r.newManifest()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var opts []stimulus.Option
	opts = append(opts, stimulus.WithClock(r.now))
	if r.Trigger != nil {
		opts = append(opts, stimulus.WithTrigger(r.Trigger))
	}

	ready := make(chan struct{})
	var readyOnce sync.Once

	var renderStats RenderStats
	renderW := spawn(ctx, "render", func(ctx context.Context) error {
		st, err := RunRenderLoop(ctx, RenderLoopConfig{
			LogPath:      r.logPath("render_loop.csv"),
			NearClip:     r.Displays.NearClip,
			FarClip:      r.Displays.FarClip,
			TargetPeriod: r.Displays.TargetLoop,
			StopWhenDone: true,
		}, r.Renderer, NewStimulusFactory(r.Stimuli, opts...), r.Store, func() {
			readyOnce.Do(func() { close(ready) })
		})
		renderStats = st
		return err
	}, cancel)

	select {
	case <-ready:
	case <-ctx.Done():
	}

	var motorW, telemetryW *worker
	var motorStats MotorStats
	var visionStats VisionStats

	if ctx.Err() == nil {
		log.Printf("rig: render ready, starting motor loop")
		motorW = spawn(ctx, "motor", func(ctx context.Context) error {
			interval := cfg.MotorLoopIntervalDuration()
			if interval == 0 && cfg.UseMockDevices {
				interval = mockMotorInterval
			}
			st, err := RunMotorLoop(ctx, MotorLoopConfig{
				LogPath:  r.logPath("motor_loop.csv"),
				Interval: interval,
			}, r.Motor, r.Store)
			motorStats = st
			return err
		}, cancel)

		if r.Telemetry != nil {
			telemetryW = spawn(ctx, "telemetry", func(ctx context.Context) error {
				return RunTelemetryPublisher(ctx, TelemetryTopics{
					Tracker:  cfg.TopicTracker,
					Actuator: cfg.TopicActuator,
					Stimulus: cfg.TopicStimulus,
				}, cfg.TelemetryIntervalDuration(), r.Telemetry, r.Store)
			}, func(err error) { log.Printf("rig: telemetry stopped: %v", err) })
		}

		var err error
		visionStats, err = RunVisionLoop(ctx, VisionLoopConfig{
			LogPath:         r.logPath("vision_loop.csv"),
			MaxIterations:   cfg.VisionMaxIterations,
			PixelsPerMM:     cfg.PixelsPerMM,
			MinMove:         cfg.MinMove,
			MaxMove:         cfg.MaxMove,
			FilterWindow:    cfg.FilterWindow,
			ViewpointHeight: cfg.ViewpointHeight,
			ViewpointScale:  cfg.ViewpointScale,
			Now:             r.now,
		}, r.Camera, r.Detector, r.Store)
		if err != nil {
			log.Printf("rig: vision loop failed: %v", err)
			cancel(err)
		}
	}

	// Ordered shutdown: motor first so the stage stops being driven, then
	// render, then the auxiliary publisher.
	timeout := cfg.ShutdownTimeoutDuration()
	var shutdownErrs []error
	if motorW != nil {
		if err := motorW.stop(timeout); err != nil {
			shutdownErrs = append(shutdownErrs, err)
		}
	} else if r.Motor != nil {
		closeQuietly("motor", r.Motor)
	}
	renderErr := renderW.stop(timeout)
	if renderErr != nil {
		shutdownErrs = append(shutdownErrs, renderErr)
	}
	if telemetryW != nil {
		if err := telemetryW.stop(timeout); err != nil {
			shutdownErrs = append(shutdownErrs, err)
		}
	}

	// Release in reverse acquisition order. A renderer whose loop is still
	// running is left alone.
	closeQuietly("camera", r.Camera)
	if renderErr == nil {
		closeQuietly("renderer", r.Renderer)
	}
	closeQuietly("trigger", r.Trigger)

	runErr := errors.Join(append([]error{fatalCause(context.Cause(ctx))}, shutdownErrs...)...)

	manifest.BlobsFound = visionStats.BlobsFound
	manifest.RecordLoop("vision", visionStats.Timing, 0)
	if motorW != nil && motorW.exited() {
		manifest.MovesIssued = motorStats.Moves
		manifest.RecordLoop("motor", motorStats.Timing, 0)
	}
	if renderW.exited() {
		manifest.StimuliPresented = renderStats.StimuliPresented
		manifest.RecordLoop("render", renderStats.Timing, renderStats.Overruns)
	}
	manifest.Finish(r.now(), runErr)
	if cfg.LogDir != "" {
		if path, err := manifest.Save(cfg.LogDir); err != nil {
			log.Printf("rig: save session: %v", err)
		} else {
			log.Printf("rig: session saved to %s", path)
		}
	}

	if runErr != nil {
		return manifest, fmt.Errorf("rig: %w", runErr)
	}
	log.Printf("rig: session finished after %v", manifest.Duration().Round(time.Millisecond))
	return manifest, nil
}

// fatalCause filters out the causes that mean a normal end of session.
func fatalCause(cause error) error {
	switch {
	case cause == nil,
		errors.Is(cause, ErrStimuliDone),
		errors.Is(cause, context.Canceled),
		errors.Is(cause, context.DeadlineExceeded):
		return nil
	}
	return cause
}

func (r *Rig) newManifest() *session.Manifest {
	cfg := r.Config
	m := session.New(r.now())
	m.ConfigFile = r.ConfigFile
	m.DisplaysFile = cfg.DisplaysFile
	m.StimuliFile = cfg.StimuliFile
	m.MockDevices = cfg.UseMockDevices
	for _, d := range r.Displays.Displays {
		m.Displays = append(m.Displays, d.Name)
	}
	for _, s := range r.Stimuli {
		m.Stimuli = append(m.Stimuli, s.Name)
	}
	return m
}

// stageView is what the mock camera sees: the simulated fly relative to the
// current stage position. Following the fly with the stage brings the marker
// back to the centre of the frame.
type stageView struct {
	fly   orientation.Source
	store *shared.Store
}

func (v *stageView) Next() (orientation.Pose, error) {
	p, err := v.fly.Next()
	if err != nil {
		return p, err
	}
	st := v.store.Actuator()
	return orientation.Pose{
		X:   st.X - p.X,
		Z:   p.Z - st.Y,
		Yaw: p.Yaw,
	}, nil
}
