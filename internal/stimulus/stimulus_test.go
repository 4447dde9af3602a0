package stimulus

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/render"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeBackground struct {
	colors []render.Color
}

func (b *fakeBackground) SetBackground(c render.Color) { b.colors = append(b.colors, c) }

type fakeTrigger struct {
	levels []bool
	err    error
}

func (t *fakeTrigger) Set(high bool) error {
	t.levels = append(t.levels, high)
	return t.err
}

func shortConfig(name string) config.StimulusConfig {
	cfg := config.DefaultStimulus(name)
	cfg.WaitBefore = 100 * time.Millisecond
	cfg.ActiveDuration = 200 * time.Millisecond
	cfg.WaitAfter = 100 * time.Millisecond
	cfg.NumberOfPeriods = 4
	return cfg
}

func TestStatesAdvanceInOrder(t *testing.T) {
	clk := &fakeClock{t: time.Unix(100, 0)}
	bg := &fakeBackground{}
	cfg := shortConfig("bars")
	cfg.Background = render.Grey(0.2)
	s := NewCylinderBars(cfg, render.NewScene(), bg, WithClock(clk.now))

	var seen []State
	record := func() {
		if len(seen) == 0 || seen[len(seen)-1] != s.State() {
			seen = append(seen, s.State())
		}
	}

	record()
	for i := 0; i < 100 && !s.Done(); i++ {
		require.NoError(t, s.Update(orientation.Pose{}))
		record()
		if !s.Done() {
			assert.NotEqual(t, Done, s.State())
		}
		clk.advance(10 * time.Millisecond)
	}

	assert.True(t, s.Done())
	assert.Equal(t, []State{Init, WaitBefore, Active, WaitAfter, Done}, seen)
	assert.Equal(t, []render.Color{render.Grey(0.2)}, bg.colors)
}

func TestDoneOnlyAfterWaitAfter(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := NewCylinderBars(shortConfig("bars"), render.NewScene(), &fakeBackground{}, WithClock(clk.now))

	step := func(d time.Duration) {
		clk.advance(d)
		require.NoError(t, s.Update(orientation.Pose{}))
	}

	step(0)
	assert.Equal(t, WaitBefore, s.State())
	step(99 * time.Millisecond)
	assert.Equal(t, WaitBefore, s.State())
	step(time.Millisecond)
	assert.Equal(t, Active, s.State())
	step(199 * time.Millisecond)
	assert.Equal(t, Active, s.State())
	step(time.Millisecond)
	assert.Equal(t, WaitAfter, s.State())
	assert.False(t, s.Done())
	step(100 * time.Millisecond)
	assert.Equal(t, Done, s.State())
	assert.True(t, s.Done())

	// Done is terminal.
	step(time.Hour)
	assert.Equal(t, Done, s.State())
}

func TestRotationIsComputedFromInitialOrientation(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cfg := shortConfig("bars")
	cfg.ActiveDuration = time.Hour
	s := NewCylinderBars(cfg, render.NewScene(), &fakeBackground{}, WithClock(clk.now))

	require.NoError(t, s.Update(orientation.Pose{}))
	clk.advance(cfg.WaitBefore)
	require.NoError(t, s.Update(orientation.Pose{}))
	require.Equal(t, Active, s.State())

	// Many small updates must land on the same orientation as one big one.
	for i := 0; i < 1000; i++ {
		clk.advance(time.Millisecond)
		require.NoError(t, s.Update(orientation.Pose{}))
	}

	want := mgl64.QuatRotate(1.0*cfg.RotationSpeed, mgl64.Vec3{0, 1, 0})
	got := s.Node().Orientation()
	v := mgl64.Vec3{1, 0, 0}
	assert.True(t, want.Rotate(v).ApproxEqualThreshold(got.Rotate(v), 1e-9), "want %v got %v", want.Rotate(v), got.Rotate(v))
}

func TestClosedLoopMovesWorldOppositeToViewer(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	scene := render.NewScene()
	cfg := shortConfig("bars")
	cfg.WaitBefore = 0
	s := NewCylinderBars(cfg, scene, &fakeBackground{}, WithClock(clk.now))

	require.NoError(t, s.Update(orientation.Pose{}))
	require.NoError(t, s.Update(orientation.Pose{}))
	require.Equal(t, Active, s.State())

	pose := orientation.Pose{X: 0.1, Y: 0.2, Z: -0.3, Yaw: math.Pi / 2}
	require.NoError(t, s.Update(pose))

	root := scene.Root()
	assert.Equal(t, mgl64.Vec3{-0.1, -0.2, 0.3}, root.Position())
	// Yaw of -90 degrees takes +X to +Z.
	r := root.Orientation().Rotate(mgl64.Vec3{1, 0, 0})
	assert.InDelta(t, 0, r[0], 1e-9)
	assert.InDelta(t, 1, r[2], 1e-9)

	// A second update does not accumulate.
	require.NoError(t, s.Update(pose))
	r = root.Orientation().Rotate(mgl64.Vec3{1, 0, 0})
	assert.InDelta(t, 1, r[2], 1e-9)
}

func TestOpenLoopLeavesWorldAlone(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	scene := render.NewScene()
	cfg := shortConfig("bars")
	cfg.WaitBefore = 0
	cfg.ClosedLoop = false
	s := NewCylinderBars(cfg, scene, &fakeBackground{}, WithClock(clk.now))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update(orientation.Pose{X: 5, Yaw: 1}))
	}
	assert.Equal(t, mgl64.Vec3{}, scene.Root().Position())
}

func TestSceneConstruction(t *testing.T) {
	scene := render.NewScene()
	cfg := shortConfig("bars")
	cfg.BackgroundLight = render.Grey(0.3)
	s := NewCylinderBars(cfg, scene, &fakeBackground{})

	panels := s.Node().Children()
	require.Len(t, panels, 4)
	assert.Equal(t, render.Grey(0.3), scene.Ambient())
	require.Len(t, s.Node().Lights(), 1)
	assert.Equal(t, mgl64.Vec3{0, cfg.LightHeight, 0}, s.Node().Lights()[0].Position)

	// First panel straight ahead, second a quarter turn to the right.
	assert.InDelta(t, -cfg.PatternRadius, panels[0].Position()[2], 1e-12)
	assert.InDelta(t, cfg.PatternRadius, panels[1].Position()[0], 1e-12)

	width := 2 * cfg.PatternRadius * math.Sin(cfg.DutyCycle*(math.Pi/2)/2)
	assert.InDelta(t, width, panels[0].Scale()[0], 1e-12)
	assert.Equal(t, cfg.Foreground, panels[0].Meshes()[0].Color)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, scene.Root().Count())
}

func TestTriggerFollowsActiveState(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	trig := &fakeTrigger{}
	s := NewCylinderBars(shortConfig("bars"), render.NewScene(), &fakeBackground{},
		WithClock(clk.now), WithTrigger(trig))

	for i := 0; i < 60 && !s.Done(); i++ {
		require.NoError(t, s.Update(orientation.Pose{}))
		clk.advance(10 * time.Millisecond)
	}
	assert.Equal(t, []bool{true, false}, trig.levels)
}

func TestTriggerErrorIsReturned(t *testing.T) {
	trig := &fakeTrigger{err: errors.New("gpio gone")}
	cfg := shortConfig("bars")
	cfg.WaitBefore = 0
	s := NewCylinderBars(cfg, render.NewScene(), &fakeBackground{}, WithTrigger(trig))

	require.NoError(t, s.Update(orientation.Pose{}))
	err := s.Update(orientation.Pose{})
	assert.ErrorContains(t, err, "gpio gone")
}

func TestInvalidStateIsFatal(t *testing.T) {
	s := NewCylinderBars(shortConfig("bars"), render.NewScene(), &fakeBackground{})
	s.state = State(42)
	assert.ErrorIs(t, s.Update(orientation.Pose{}), ErrInvalidState)
	assert.Equal(t, "state(42)", State(42).String())
}

func TestManagerPresentsInOrder(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	scene := render.NewScene()
	cfgs := []config.StimulusConfig{shortConfig("first"), shortConfig("second")}
	m := NewManager(cfgs, NewFactory(scene, &fakeBackground{}, WithClock(clk.now)))

	assert.Equal(t, "first", m.Status().Name)
	assert.Equal(t, 2, m.Status().Total)

	var names []string
	for i := 0; i < 200 && !m.Done(); i++ {
		require.NoError(t, m.Update(orientation.Pose{}))
		if cur := m.Current(); cur != nil && (len(names) == 0 || names[len(names)-1] != cur.Name()) {
			names = append(names, cur.Name())
		}
		clk.advance(10 * time.Millisecond)
	}

	assert.True(t, m.Done())
	assert.Equal(t, []string{"first", "second"}, names)
	assert.Equal(t, 2, m.Presented())
	assert.Equal(t, "done", m.Status().State)
	assert.True(t, m.Status().Done)
	assert.Equal(t, 1, scene.Root().Count(), "scene cleared after the last stimulus")

	// Further updates are no-ops.
	require.NoError(t, m.Update(orientation.Pose{}))
	assert.NoError(t, m.Close())
}

func TestManagerUnknownType(t *testing.T) {
	cfg := shortConfig("odd")
	cfg.Type = "sphere-dots"
	m := NewManager([]config.StimulusConfig{cfg}, NewFactory(render.NewScene(), &fakeBackground{}))
	assert.ErrorIs(t, m.Update(orientation.Pose{}), ErrUnknownType)
}

func TestManagerEmptyIsDone(t *testing.T) {
	m := NewManager(nil, nil)
	assert.True(t, m.Done())
	assert.NoError(t, m.Update(orientation.Pose{}))
}
