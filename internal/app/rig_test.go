package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/render"
	"github.com/relabs-tech/flyvr_rig/internal/session"
	"github.com/relabs-tech/flyvr_rig/internal/shared"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

func testSetup() *config.DisplaySetup {
	return &config.DisplaySetup{
		NearClip:   0.01,
		FarClip:    10,
		TargetLoop: time.Millisecond,
		Displays:   testDisplays(),
	}
}

func mockConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.UseMockDevices = true
	cfg.LogDir = t.TempDir()
	cfg.CameraBlurSize = 4
	cfg.VisionMaxIterations = 25
	cfg.ShutdownTimeout = 2000
	return cfg
}

func TestRigMockRunWritesSession(t *testing.T) {
	cfg := mockConfig(t)
	stimuli := []config.StimulusConfig{config.DefaultStimulus("long")}

	rig, err := NewRig(cfg, testSetup(), stimuli)
	require.NoError(t, err)

	manifest, err := rig.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, manifest.MockDevices)
	assert.Equal(t, []string{"front"}, manifest.Displays)
	assert.Equal(t, []string{"long"}, manifest.Stimuli)
	assert.Equal(t, 25, manifest.Loops["vision"].Iterations)
	assert.Contains(t, manifest.Loops, "motor")
	assert.Contains(t, manifest.Loops, "render")
	assert.Positive(t, manifest.BlobsFound)
	assert.Empty(t, manifest.Error)

	back, err := session.Load(filepath.Join(cfg.LogDir, session.FileName))
	require.NoError(t, err)
	assert.Equal(t, 25, back.Loops["vision"].Iterations)

	for _, name := range []string{"vision_loop.csv", "motor_loop.csv", "render_loop.csv"} {
		_, err := os.Stat(filepath.Join(cfg.LogDir, name))
		assert.NoError(t, err, name)
	}

	assert.True(t, rig.Renderer.(*render.Headless).Closed())
	assert.True(t, rig.Camera.(*vision.MockCamera).Closed())
	assert.True(t, rig.Motor.(*motion.MockMotor).Closed())
}

func TestRigEndsWhenStimuliAreDone(t *testing.T) {
	cfg := mockConfig(t)
	cfg.VisionMaxIterations = 0

	rig, err := NewRig(cfg, testSetup(), []config.StimulusConfig{shortStimulus("only")})
	require.NoError(t, err)

	manifest, err := rig.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.StimuliPresented)
}

func newTestRig(t *testing.T, cam vision.Camera, motor motion.Motor) *Rig {
	cfg := mockConfig(t)
	cfg.VisionMaxIterations = 0
	cfg.ShutdownTimeout = 100
	return &Rig{
		Config:   cfg,
		Displays: testSetup(),
		Stimuli:  []config.StimulusConfig{config.DefaultStimulus("s")},
		Renderer: render.NewHeadless(testDisplays()),
		Motor:    motor,
		Camera:   cam,
		Detector: vision.ThresholdDetector{BlurSize: 2, Threshold: 110},
		Store:    shared.New(orientation.Pose{}),
	}
}

func TestRigCameraFailureStopsEverything(t *testing.T) {
	cam := &blankCamera{failAfter: 5}
	motor := motion.NewMockMotor(0)
	rig := newTestRig(t, cam, motor)

	manifest, err := rig.Run(context.Background())
	assert.ErrorIs(t, err, ErrCameraRead)
	assert.Contains(t, manifest.Error, "camera read failed")

	assert.True(t, motor.Closed())
	assert.True(t, cam.isClosed())
	assert.True(t, rig.Renderer.(*render.Headless).Closed())
}

func TestRigMotorFailureStopsVision(t *testing.T) {
	cam := &blankCamera{}
	rig := newTestRig(t, cam, &brokenMotor{})

	_, err := rig.Run(context.Background())
	assert.ErrorIs(t, err, ErrMotorIO)
	assert.True(t, cam.isClosed())
}

func TestRigStopsOnCancel(t *testing.T) {
	rig := newTestRig(t, &blankCamera{}, motion.NewMockMotor(0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rig.Run(ctx)
	assert.NoError(t, err)
}

// stuckMotor blocks in ReadStatus until released.
type stuckMotor struct {
	release chan struct{}
	once    sync.Once
}

func (m *stuckMotor) ReadStatus() (motion.Status, error) {
	<-m.release
	return motion.Status{}, nil
}
func (m *stuckMotor) Move(dx, dy float64) error { return nil }
func (m *stuckMotor) Close() error              { return nil }
func (m *stuckMotor) unblock()                  { m.once.Do(func() { close(m.release) }) }

func TestRigShutdownIsBounded(t *testing.T) {
	motor := &stuckMotor{release: make(chan struct{})}
	rig := newTestRig(t, &blankCamera{}, motor)
	t.Cleanup(motor.unblock)
	rig.Config.VisionMaxIterations = 3

	start := time.Now()
	_, err := rig.Run(context.Background())
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRigPublishesTelemetry(t *testing.T) {
	pub := &recordingPublisher{}
	rig := newTestRig(t, &blankCamera{}, motion.NewMockMotor(0))
	rig.Config.VisionMaxIterations = 0
	rig.Config.TelemetryInterval = 5
	rig.Telemetry = pub

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := rig.Run(ctx)
	require.NoError(t, err)

	assert.Positive(t, pub.count(rig.Config.TopicActuator))
	assert.Positive(t, pub.count(rig.Config.TopicTracker))
	assert.Positive(t, pub.count(rig.Config.TopicStimulus))
}

func TestFatalCause(t *testing.T) {
	assert.NoError(t, fatalCause(nil))
	assert.NoError(t, fatalCause(ErrStimuliDone))
	assert.NoError(t, fatalCause(context.Canceled))
	assert.ErrorIs(t, fatalCause(ErrMotorIO), ErrMotorIO)
}

func TestStageViewCentresWhenStageFollows(t *testing.T) {
	store := shared.New(orientation.Pose{})
	fly := fixedSource{orientation.Pose{X: 3, Z: -2, Yaw: 0.5}}
	v := &stageView{fly: fly, store: store}

	p, err := v.Next()
	require.NoError(t, err)
	// The vision loop commands -camX on stage X and camZ on stage Y.
	cmd := motion.Command{DX: -p.X, DY: p.Z}
	store.PublishActuator(motion.Status{X: cmd.DX, Y: cmd.DY})

	p, err = v.Next()
	require.NoError(t, err)
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 0, p.Z, 1e-9)
	assert.InDelta(t, 0.5, p.Yaw, 1e-9)
}

type fixedSource struct{ pose orientation.Pose }

func (s fixedSource) Next() (orientation.Pose, error) { return s.pose, nil }

// recordingPublisher counts publishes per topic.
type recordingPublisher struct {
	mu     sync.Mutex
	topics map[string][][]byte
}

func (p *recordingPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topics == nil {
		p.topics = map[string][][]byte{}
	}
	p.topics[topic] = append(p.topics[topic], payload.([]byte))
	return doneToken{}
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics[topic])
}

func (p *recordingPublisher) last(topic string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.topics[topic]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

func TestTelemetryPublisherSendsEachSampleOnce(t *testing.T) {
	store := shared.New(orientation.Pose{})
	store.PublishSample(telemetry.Sample{Iteration: 4, Found: true, X: 1.5})
	store.PublishStimulus(telemetry.StimulusStatus{Index: 0, Total: 2, Name: "a", State: "active"})
	pub := &recordingPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunTelemetryPublisher(ctx, TelemetryTopics{Tracker: "t", Actuator: "a", Stimulus: "s"}, time.Millisecond, pub, store)
	}()

	require.Eventually(t, func() bool { return pub.count("a") >= 5 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, pub.count("t"))
	assert.Equal(t, 1, pub.count("s"))
	assert.JSONEq(t, `{"index":0,"total":2,"name":"a","state":"active","done":false}`, string(pub.last("s")))
}

func TestTelemetryPublisherRejectsZeroInterval(t *testing.T) {
	err := RunTelemetryPublisher(context.Background(), TelemetryTopics{}, 0, &recordingPublisher{}, shared.New(orientation.Pose{}))
	assert.Error(t, err)
}
