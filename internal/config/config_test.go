package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flyvr_rig/internal/projection"
	"github.com/relabs-tech/flyvr_rig/internal/render"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, "rig_config.txt", `
# mock rig
USE_MOCK_DEVICES=true
MAX_MOVE = 20
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.UseMockDevices)
	assert.Equal(t, 20.0, cfg.MaxMove)
	assert.Equal(t, 1.0, cfg.MinMove)
	assert.Equal(t, 100, cfg.FilterWindow)
	assert.Equal(t, 9.1051, cfg.PixelsPerMM)
	assert.Equal(t, 12000, cfg.VisionMaxIterations)
	assert.Equal(t, "flyvr/tracker", cfg.TopicTracker)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeoutDuration())
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":        "USE_MOCK_DEVICES=true\nFOO=1\n",
		"no equals":          "USE_MOCK_DEVICES=true\nMIN_MOVE\n",
		"bad int":            "USE_MOCK_DEVICES=true\nFILTER_WINDOW=abc\n",
		"min above max":      "USE_MOCK_DEVICES=true\nMIN_MOVE=5\nMAX_MOVE=2\n",
		"negative min":       "USE_MOCK_DEVICES=true\nMIN_MOVE=-1\n",
		"zero window":        "USE_MOCK_DEVICES=true\nFILTER_WINDOW=0\n",
		"port required":      "USE_MOCK_DEVICES=false\n",
		"threshold range":    "USE_MOCK_DEVICES=true\nCAMERA_THRESHOLD=300\n",
		"blur too large":     "USE_MOCK_DEVICES=true\nCAMERA_BLUR_SIZE=100\n",
		"zero pixels per mm": "USE_MOCK_DEVICES=true\nPIXELS_PER_MM=0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "rig_config.txt", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestOverridesApplyAfterFile(t *testing.T) {
	path := writeFile(t, "rig_config.txt", "MAX_MOVE=20\n")

	_, err := Load(path)
	assert.Error(t, err, "real devices need a serial port")

	cfg, err := Load(path, "USE_MOCK_DEVICES=true", "MAX_MOVE=30")
	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.MaxMove)

	_, err = Load(path, "USE_MOCK_DEVICES")
	assert.Error(t, err)
}

const displaysINI = `
near-clip-dist = 0.05
far-clip-dist = 20
target-loop-duration = 0.01

[front]
id = 2
width-pixels = 1920
height-pixels = 1080
display-fullscreen = false
pax = -1
pay = -1
paz = -1
pbx = 1
pby = -1
pbz = -1
pcx = -1
pcy = 1
pcz = -1

[left]
pax = -1
pay = -1
paz = 1
pbx = -1
pby = -1
pbz = -1
pcx = -1
pcy = 1
pcz = 1
`

func TestLoadDisplays(t *testing.T) {
	setup, err := LoadDisplays(writeFile(t, "tv.ini", displaysINI))
	require.NoError(t, err)

	assert.Equal(t, 0.05, setup.NearClip)
	assert.Equal(t, 20.0, setup.FarClip)
	assert.Equal(t, 10*time.Millisecond, setup.TargetLoop)
	require.Len(t, setup.Displays, 2)

	front := setup.Displays[0]
	assert.Equal(t, "front", front.Name)
	assert.Equal(t, 2, front.ID)
	assert.Equal(t, 1920, front.Width)
	assert.False(t, front.Fullscreen)
	assert.Equal(t, mgl64.Vec3{1, -1, -1}, front.Screen.PB)

	left := setup.Displays[1]
	assert.Equal(t, 1, left.ID)
	assert.Equal(t, 1440, left.Width)
	assert.Equal(t, 900, left.Height)
	assert.True(t, left.Fullscreen)
}

func TestLoadDisplaysDefaults(t *testing.T) {
	setup, err := LoadDisplays(writeFile(t, "tv.ini", "[only]\npbx=1\npcy=1\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.01, setup.NearClip)
	assert.Equal(t, 10.0, setup.FarClip)
	assert.Equal(t, 8*time.Millisecond, setup.TargetLoop)
}

func TestLoadDisplaysFatalCases(t *testing.T) {
	_, err := LoadDisplays(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)

	_, err = LoadDisplays(writeFile(t, "tv.ini", "near-clip-dist = 0.01\n"))
	assert.ErrorIs(t, err, ErrNoDisplays)

	_, err = LoadDisplays(writeFile(t, "tv.ini", "[flat]\npbx=1\npcx=2\n"))
	assert.ErrorIs(t, err, projection.ErrDegenerateScreen)

	_, err = LoadDisplays(writeFile(t, "tv.ini", "near-clip-dist = 5\nfar-clip-dist = 1\n[a]\npbx=1\npcy=1\n"))
	assert.ErrorIs(t, err, projection.ErrInvalidClip)

	_, err = LoadDisplays(writeFile(t, "tv.ini", "[left]\npax=-0.5\npaz=-abc\npbx=1\npcy=1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `display "left": bad paz "-abc"`)

	_, err = LoadDisplays(writeFile(t, "tv.ini", "[left]\nwidth-pixels=wide\npbx=1\npcy=1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `bad width-pixels "wide"`)

	_, err = LoadDisplays(writeFile(t, "tv.ini", "far-clip-dist = far\n[a]\npbx=1\npcy=1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad far-clip-dist")
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("0.25")
	require.NoError(t, err)
	assert.Equal(t, render.Grey(0.25), c)

	c, err = ParseColor("0xFF8000")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.R, 1e-12)
	assert.InDelta(t, 128.0/255.0, c.G, 1e-12)
	assert.InDelta(t, 0.0, c.B, 1e-12)

	c, err = ParseColor("0x0000ff")
	require.NoError(t, err)
	assert.Equal(t, render.Color{B: 1}, c)

	_, err = ParseColor("red")
	assert.Error(t, err)
	_, err = ParseColor("0xZZ")
	assert.Error(t, err)
}

func TestLoadStimuliInOrderWithFallbacks(t *testing.T) {
	path := writeFile(t, "stimuli.ini", `
[slow]
rotation-speed = 30
closed-loop = false
foreground-color = 0x00FF00
active-duration = 2

[broken]
number-of-periods = many
duty-cycle = wide
background-color = purple
wait-before = soon
`)
	stims, err := LoadStimuli(path)
	require.NoError(t, err)
	require.Len(t, stims, 2)

	slow := stims[0]
	assert.Equal(t, "slow", slow.Name)
	assert.False(t, slow.ClosedLoop)
	assert.InDelta(t, -30*math.Pi/180, slow.RotationSpeed, 1e-12)
	assert.Equal(t, render.Color{G: 1}, slow.Foreground)
	assert.Equal(t, 2*time.Second, slow.ActiveDuration)
	assert.Equal(t, 50, slow.NumberOfPeriods)

	def := DefaultStimulus("broken")
	broken := stims[1]
	assert.Equal(t, def, broken)
}

func TestLoadStimuliErrors(t *testing.T) {
	_, err := LoadStimuli(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)

	_, err = LoadStimuli(writeFile(t, "stimuli.ini", "# nothing\n"))
	assert.ErrorIs(t, err, ErrNoStimuli)
}
