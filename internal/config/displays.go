package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/ini.v1"

	"github.com/relabs-tech/flyvr_rig/internal/projection"
	"github.com/relabs-tech/flyvr_rig/internal/render"
)

// ErrNoDisplays is returned when the display file has no display sections.
var ErrNoDisplays = errors.New("config: no displays configured")

// DisplaySetup is the parsed display geometry file.
type DisplaySetup struct {
	NearClip   float64
	FarClip    float64
	TargetLoop time.Duration
	Displays   []render.Display
}

// LoadDisplays reads the display geometry INI. Global keys sit before the
// first section; every named section is one display, in file order.
// A missing file, no sections, unparsable values or degenerate corners
// are errors.
func LoadDisplays(path string) (*DisplaySetup, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load displays %s: %w", path, err)
	}

	global := displayReader{sec: f.Section(ini.DefaultSection), name: path}
	setup := &DisplaySetup{
		NearClip:   global.float("near-clip-dist", 0.01),
		FarClip:    global.float("far-clip-dist", 10),
		TargetLoop: seconds(global.float("target-loop-duration", 8e-3)),
	}
	if global.err != nil {
		return nil, global.err
	}
	if setup.NearClip <= 0 || setup.FarClip <= setup.NearClip {
		return nil, fmt.Errorf("displays %s: %w: near=%g far=%g", path, projection.ErrInvalidClip, setup.NearClip, setup.FarClip)
	}

	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}

		r := displayReader{sec: sec, name: sec.Name()}
		d := render.Display{
			ID:         r.integer("id", 1),
			Name:       sec.Name(),
			Width:      r.integer("width-pixels", 1440),
			Height:     r.integer("height-pixels", 900),
			Fullscreen: r.boolean("display-fullscreen", true),
			Screen: projection.Screen{
				PA: r.vec3("pa"),
				PB: r.vec3("pb"),
				PC: r.vec3("pc"),
			},
		}
		if r.err != nil {
			return nil, r.err
		}
		if err := d.Screen.Validate(); err != nil {
			return nil, fmt.Errorf("display %q: %w", d.Name, err)
		}
		setup.Displays = append(setup.Displays, d)
	}

	if len(setup.Displays) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoDisplays)
	}
	return setup, nil
}

// displayReader reads display keys. Absent keys take their default; a key
// that is present but does not parse is remembered as the first error.
type displayReader struct {
	sec  *ini.Section
	name string
	err  error
}

func (r *displayReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("display %q: bad %s %q: %w", r.name, key, r.sec.Key(key).String(), err)
	}
}

func (r *displayReader) float(key string, def float64) float64 {
	if !r.sec.HasKey(key) {
		return def
	}
	v, err := r.sec.Key(key).Float64()
	if err != nil {
		r.fail(key, err)
		return def
	}
	return v
}

func (r *displayReader) integer(key string, def int) int {
	if !r.sec.HasKey(key) {
		return def
	}
	v, err := r.sec.Key(key).Int()
	if err != nil {
		r.fail(key, err)
		return def
	}
	return v
}

func (r *displayReader) boolean(key string, def bool) bool {
	if !r.sec.HasKey(key) {
		return def
	}
	v, err := r.sec.Key(key).Bool()
	if err != nil {
		r.fail(key, err)
		return def
	}
	return v
}

func (r *displayReader) vec3(prefix string) mgl64.Vec3 {
	return mgl64.Vec3{
		r.float(prefix+"x", 0),
		r.float(prefix+"y", 0),
		r.float(prefix+"z", 0),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
