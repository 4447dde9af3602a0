// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration measures the camera scale of the tracking rig.
//
// The stage is stepped a known distance along X and then Y while the marker
// is held still; the shift of the marker in the image gives pixels per mm
// and the direction of each axis. Output is a JSON file with the result,
// per-position statistics and a confidence score, plus the PIXELS_PER_MM
// line to paste into the rig config.
package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

const schemaVersion = 1

var (
	ErrNoMarker     = errors.New("calibration: marker not found")
	ErrStageTimeout = errors.New("calibration: stage did not come to rest")
	ErrNoShift      = errors.New("calibration: marker did not move with the stage")
)

// Expected image direction per stage axis: stage +X moves the marker
// towards +x in the image, stage +Y towards -y. The vision loop relies on
// this when it turns an offset into a command.
var expectedSign = map[string]int{"x": 1, "y": -1}

// Options tune a calibration run. Zero fields take defaults.
type Options struct {
	StepMM  float64       // stage step per axis, default 2 mm
	Samples int           // frames averaged per position, default 10
	Settle  time.Duration // wait after the stage is idle, default 200 ms
	Poll    time.Duration // status poll period, default 20 ms
	Timeout time.Duration // per move, default 10 s

	// Progress, if set, is called before every step.
	Progress func(Progress)
	// Sleep replaces time.Sleep, mostly for tests.
	Sleep func(time.Duration)
}

func (o Options) withDefaults() Options {
	if o.StepMM == 0 {
		o.StepMM = 2
	}
	if o.Samples <= 0 {
		o.Samples = 10
	}
	if o.Settle == 0 {
		o.Settle = 200 * time.Millisecond
	}
	if o.Poll <= 0 {
		o.Poll = 20 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	return o
}

// Progress reports which step a run is on.
type Progress struct {
	Step    string `json:"step"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Offset is a marker position relative to the image centre, in pixels.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PositionStats summarises the frames taken at one stage position.
type PositionStats struct {
	Name    string  `json:"name"`
	Samples int     `json:"samples"`
	Mean    Offset  `json:"mean"`
	StdDev  Offset  `json:"stddev"`
	Angle   float64 `json:"angle"` // mean marker angle, degrees
}

// AxisResult is the measurement for one stage axis.
type AxisResult struct {
	Axis        string  `json:"axis"`
	StepMM      float64 `json:"step_mm"`
	Shift       Offset  `json:"shift"`
	PixelsPerMM float64 `json:"pixels_per_mm"`
	Sign        int     `json:"sign"`
	CrossTalk   float64 `json:"cross_talk"` // off-axis shift / on-axis shift
	Confidence  float64 `json:"confidence"`
}

// Result is what a run produces.
type Result struct {
	SchemaVersion int             `json:"schema_version"`
	CalibratedAt  string          `json:"calibrated_at"` // RFC3339
	StepMM        float64         `json:"step_mm"`
	Positions     []PositionStats `json:"positions"`
	Axes          []AxisResult    `json:"axes"`
	PixelsPerMM   float64         `json:"pixels_per_mm"`
	Confidence    float64         `json:"confidence"`
	Notes         []string        `json:"notes,omitempty"`
}

// ConfigLine is the rig config entry for this result.
func (r Result) ConfigLine() string {
	return fmt.Sprintf("PIXELS_PER_MM=%.4f", r.PixelsPerMM)
}

type step struct {
	name   string
	dx, dy float64
}

// Run measures the marker at home, after a +X step, after a +Y step, and at
// home again. The stage is returned to where it started after each step.
// The marker must not move during the run.
func Run(ctx context.Context, m motion.Motor, cam vision.Camera, det vision.Detector, opts Options) (Result, error) {
	opts = opts.withDefaults()
	res := Result{
		SchemaVersion: schemaVersion,
		CalibratedAt:  time.Now().UTC().Format(time.RFC3339),
		StepMM:        opts.StepMM,
	}

	steps := []step{
		{name: "home"},
		{name: "x", dx: opts.StepMM},
		{name: "y", dy: opts.StepMM},
		{name: "home_check"},
	}

	positions := map[string]PositionStats{}
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if opts.Progress != nil {
			opts.Progress(Progress{Step: st.name, Index: i + 1, Total: len(steps)})
		}

		moved := st.dx != 0 || st.dy != 0
		if moved {
			if err := moveAndWait(ctx, m, st.dx, st.dy, opts); err != nil {
				return res, fmt.Errorf("step %s: %w", st.name, err)
			}
		}

		ps, err := measure(ctx, cam, det, opts.Samples)
		ps.Name = st.name
		if err != nil {
			return res, fmt.Errorf("step %s: %w", st.name, err)
		}
		positions[st.name] = ps
		res.Positions = append(res.Positions, ps)

		if moved {
			if err := moveAndWait(ctx, m, -st.dx, -st.dy, opts); err != nil {
				return res, fmt.Errorf("step %s return: %w", st.name, err)
			}
		}
	}

	home := positions["home"]
	for _, axis := range []string{"x", "y"} {
		ar, err := axisResult(axis, home, positions[axis], opts.StepMM)
		if err != nil {
			return res, err
		}
		if ar.Sign != expectedSign[axis] {
			res.Notes = append(res.Notes, fmt.Sprintf("stage %s axis is inverted relative to the camera; tracking would run away", axis))
		}
		if ar.CrossTalk > 0.1 {
			res.Notes = append(res.Notes, fmt.Sprintf("camera is rotated against stage %s axis (cross-talk %.2f)", axis, ar.CrossTalk))
		}
		res.Axes = append(res.Axes, ar)
	}

	px, py := res.Axes[0].PixelsPerMM, res.Axes[1].PixelsPerMM
	res.PixelsPerMM = (px + py) / 2
	agreement := clamp01(1 - math.Abs(px-py)/res.PixelsPerMM)
	res.Confidence = clamp01(math.Min(res.Axes[0].Confidence, res.Axes[1].Confidence) * agreement)
	if agreement < 0.95 {
		res.Notes = append(res.Notes, fmt.Sprintf("axes disagree: x=%.3f y=%.3f px/mm", px, py))
	}

	check := positions["home_check"]
	drift := math.Hypot(check.Mean.X-home.Mean.X, check.Mean.Y-home.Mean.Y)
	if drift > 1 {
		res.Notes = append(res.Notes, fmt.Sprintf("marker drifted %.1f px during the run", drift))
		res.Confidence *= clamp01(1 - drift/(opts.StepMM*res.PixelsPerMM))
	}
	return res, nil
}

func axisResult(axis string, home, moved PositionStats, stepMM float64) (AxisResult, error) {
	shift := Offset{X: moved.Mean.X - home.Mean.X, Y: moved.Mean.Y - home.Mean.Y}
	on, off := shift.X, shift.Y
	if axis == "y" {
		on, off = shift.Y, shift.X
	}
	if math.Abs(on) < 1e-6 {
		return AxisResult{}, fmt.Errorf("%w: axis %s", ErrNoShift, axis)
	}

	sign := 1
	if on < 0 {
		sign = -1
	}
	noise := math.Hypot(home.StdDev.X, home.StdDev.Y) + math.Hypot(moved.StdDev.X, moved.StdDev.Y)
	crossTalk := math.Abs(off) / math.Abs(on)

	return AxisResult{
		Axis:        axis,
		StepMM:      stepMM,
		Shift:       shift,
		PixelsPerMM: math.Abs(on) / stepMM,
		Sign:        sign,
		CrossTalk:   crossTalk,
		Confidence:  clamp01(1-noise/math.Abs(on)) * clamp01(1-crossTalk),
	}, nil
}

// moveAndWait issues a relative move and polls until the stage is idle.
func moveAndWait(ctx context.Context, m motion.Motor, dx, dy float64, opts Options) error {
	if err := m.Move(dx, dy); err != nil {
		return err
	}
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := m.ReadStatus()
		if err != nil {
			return err
		}
		if !st.Moving {
			break
		}
		if waited >= opts.Timeout {
			return ErrStageTimeout
		}
		opts.Sleep(opts.Poll)
		waited += opts.Poll
	}
	opts.Sleep(opts.Settle)
	return nil
}

// measure averages n detections. Every frame must contain the marker.
func measure(ctx context.Context, cam vision.Camera, det vision.Detector, n int) (PositionStats, error) {
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	angles := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return PositionStats{}, err
		}
		frame, err := cam.Capture()
		if err != nil {
			return PositionStats{}, err
		}
		blob, ok := det.Detect(frame)
		if !ok {
			return PositionStats{}, fmt.Errorf("%w in frame %d", ErrNoMarker, i)
		}
		x, y := blob.Offset()
		xs = append(xs, x)
		ys = append(ys, y)
		angles = append(angles, blob.Angle)
	}

	mx, sx := meanStd(xs)
	my, sy := meanStd(ys)
	ma, _ := meanStd(angles)
	return PositionStats{
		Samples: n,
		Mean:    Offset{X: mx, Y: my},
		StdDev:  Offset{X: sx, Y: sy},
		Angle:   ma,
	}, nil
}

// WriteResult saves res as indented JSON in dir and returns the file path.
func WriteResult(dir string, res Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
	name := filepath.Join(dir, fmt.Sprintf("%s_stage_calibration.json", ts))

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func meanStd(xs []float64) (mean float64, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var s float64
	for _, v := range xs {
		d := v - mean
		s += d * d
	}
	sd = math.Sqrt(s / float64(len(xs)))
	return mean, sd
}
