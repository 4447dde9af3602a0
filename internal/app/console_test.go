package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

func TestConsoleLine(t *testing.T) {
	cfg := config.DefaultConfig()
	snap := StateSnapshot{
		Tracker:  &telemetry.Sample{Iteration: 4, Found: true, X: 1, Y: -2, Angle: 30, FilteredAngle: 29},
		Actuator: &motion.Status{X: 10, Y: 5},
		Stimulus: &telemetry.StimulusStatus{Total: 3, Done: true},
	}

	assert.Contains(t, consoleLine(cfg, cfg.TopicTracker, snap), "x=   1.00 y=  -2.00")
	assert.Equal(t, "[STAGE] x=  10.00 y=   5.00 moving=false", consoleLine(cfg, cfg.TopicActuator, snap))
	assert.Equal(t, "[STIM ] all 3 done", consoleLine(cfg, cfg.TopicStimulus, snap))
	assert.Empty(t, consoleLine(cfg, "other/topic", snap))

	snap.Tracker.Found = false
	assert.Equal(t, "[TRACK] #4      no blob", consoleLine(cfg, cfg.TopicTracker, snap))
}

func TestConsoleNeedsBroker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MQTTBroker = ""
	assert.Error(t, RunConsole(context.Background(), cfg, &bytes.Buffer{}))
}

type stillMarker struct{ x, z float64 }

func (s stillMarker) Next() (orientation.Pose, error) {
	return orientation.Pose{X: s.x, Z: s.z}, nil
}

func TestTrackerCheck(t *testing.T) {
	cam := vision.NewMockCamera(200, 200, 5, stillMarker{x: 2, z: -1})
	det := vision.ThresholdDetector{BlurSize: 4, Threshold: 110, MinArea: 6}

	var out bytes.Buffer
	require.NoError(t, RunTrackerCheck(context.Background(), cam, det, 5, time.Millisecond, 3, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	var i int
	var x, y float64
	_, err := fmt.Sscanf(lines[0], "%d x=%fmm y=%fmm", &i, &x, &y)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.InDelta(t, 2, x, 0.3)
	assert.InDelta(t, -1, y, 0.3)
	assert.Equal(t, 3, cam.Frames())
}

func TestTrackerCheckReportsCameraFailure(t *testing.T) {
	cam := &blankCamera{failAfter: 1}
	err := RunTrackerCheck(context.Background(), cam, fixedDetector{}, 5, time.Millisecond, 5, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrCameraRead)
}
