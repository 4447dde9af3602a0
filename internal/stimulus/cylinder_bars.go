package stimulus

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/render"
)

// CylinderBars is a ring of vertical bars around the viewer that rotates
// about the vertical axis while active.
type CylinderBars struct {
	cfg     config.StimulusConfig
	scene   *render.Scene
	bg      Background
	now     func() time.Time
	trigger Trigger

	node    *render.Node
	state   State
	entered time.Time
	done    bool
}

// NewCylinderBars builds the bars into scene.
func NewCylinderBars(cfg config.StimulusConfig, scene *render.Scene, bg Background, opts ...Option) *CylinderBars {
	o := buildOptions(opts)
	c := &CylinderBars{
		cfg:     cfg,
		scene:   scene,
		bg:      bg,
		now:     o.now,
		trigger: o.trigger,
		state:   Init,
	}
	c.createScene()
	return c
}

func (c *CylinderBars) createScene() {
	root := c.scene.Root()
	c.node = root.NewChild(c.cfg.Name)

	c.scene.SetAmbientLight(c.cfg.BackgroundLight)
	c.node.AttachLight(render.Light{Position: mgl64.Vec3{0, c.cfg.LightHeight, 0}})

	periods := c.cfg.NumberOfPeriods
	if periods < 1 {
		periods = 1
	}
	dtheta := 2 * math.Pi / float64(periods)
	width := 2 * c.cfg.PatternRadius * math.Sin(c.cfg.DutyCycle*dtheta/2)

	for i := 0; i < periods; i++ {
		theta := float64(i) * dtheta
		panel := c.node.NewChild(fmt.Sprintf("%s/panel%d", c.cfg.Name, i))
		panel.SetScale(mgl64.Vec3{width, c.cfg.PanelHeight, c.cfg.PanelThickness})
		panel.SetPosition(mgl64.Vec3{
			c.cfg.PatternRadius * math.Sin(theta),
			0,
			-c.cfg.PatternRadius * math.Cos(theta),
		})
		panel.Yaw(-theta)
		panel.AttachMesh(render.Mesh{Name: "cube", Color: c.cfg.Foreground})
	}
}

func (c *CylinderBars) Name() string       { return c.cfg.Name }
func (c *CylinderBars) State() State       { return c.state }
func (c *CylinderBars) Done() bool         { return c.done }
func (c *CylinderBars) Node() *render.Node { return c.node }

// Update advances the state machine and, while active, rotates the bars
// and compensates the world for the viewer's motion.
func (c *CylinderBars) Update(pose orientation.Pose) error {
	now := c.now()
	elapsed := now.Sub(c.entered)

	switch c.state {
	case Init:
		c.bg.SetBackground(c.cfg.Background)
		c.enter(WaitBefore, now)

	case WaitBefore:
		if elapsed >= c.cfg.WaitBefore {
			c.enter(Active, now)
			return c.setTrigger(true)
		}

	case Active:
		// Always from the initial orientation so rotation does not drift.
		c.node.SetOrientation(c.node.InitialOrientation())
		c.node.Yaw(elapsed.Seconds() * c.cfg.RotationSpeed)

		if c.cfg.ClosedLoop {
			root := c.scene.Root()
			root.SetPosition(mgl64.Vec3{-pose.X, -pose.Y, -pose.Z})
			root.SetOrientation(root.InitialOrientation())
			root.Yaw(-pose.Yaw)
		}

		if elapsed >= c.cfg.ActiveDuration {
			c.enter(WaitAfter, now)
			return c.setTrigger(false)
		}

	case WaitAfter:
		if elapsed >= c.cfg.WaitAfter {
			c.enter(Done, now)
			c.done = true
		}

	case Done:

	default:
		return fmt.Errorf("%w: %s in %q", ErrInvalidState, c.state, c.cfg.Name)
	}
	return nil
}

func (c *CylinderBars) enter(s State, now time.Time) {
	c.state = s
	c.entered = now
}

func (c *CylinderBars) setTrigger(high bool) error {
	if c.trigger == nil {
		return nil
	}
	if err := c.trigger.Set(high); err != nil {
		return fmt.Errorf("stimulus %q trigger: %w", c.cfg.Name, err)
	}
	return nil
}

// Close removes the stimulus from the scene and drops the trigger line if
// it is still high.
func (c *CylinderBars) Close() error {
	var err error
	if c.state == Active {
		err = c.setTrigger(false)
	}
	c.scene.Clear()
	log.Printf("stimulus: %q closed in state %s", c.cfg.Name, c.state)
	return err
}
