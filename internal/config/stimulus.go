package config

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/relabs-tech/flyvr_rig/internal/render"
)

// ErrNoStimuli is returned when the stimulus file has no sections.
var ErrNoStimuli = errors.New("config: no stimuli configured")

// StimulusConfig holds the parameters of one stimulus section.
type StimulusConfig struct {
	Name       string
	Type       string
	ClosedLoop bool

	NumberOfPeriods int
	DutyCycle       float64

	Foreground      render.Color
	Background      render.Color
	BackgroundLight render.Color

	WaitBefore     time.Duration
	ActiveDuration time.Duration
	WaitAfter      time.Duration

	// RotationSpeed is in rad/s. The file gives deg/s with the opposite
	// sign convention.
	RotationSpeed float64

	LightHeight    float64
	PatternRadius  float64
	PanelHeight    float64
	PanelThickness float64
}

// DefaultStimulus returns a stimulus with every key at its default.
func DefaultStimulus(name string) StimulusConfig {
	return StimulusConfig{
		Name:            name,
		Type:            "cylinder-bars",
		ClosedLoop:      true,
		NumberOfPeriods: 50,
		DutyCycle:       0.5,
		Foreground:      render.Grey(1),
		Background:      render.Grey(0),
		BackgroundLight: render.Grey(0),
		WaitBefore:      seconds(0.55),
		ActiveDuration:  seconds(5.0),
		WaitAfter:       seconds(0.55),
		RotationSpeed:   rotationSpeed(15),
		LightHeight:     1.25,
		PatternRadius:   0.8,
		PanelHeight:     5,
		PanelThickness:  0.001,
	}
}

func rotationSpeed(degPerSec float64) float64 {
	return -degPerSec * math.Pi / 180.0
}

// LoadStimuli reads every stimulus section in file order. Malformed values
// are logged and replaced by their default.
func LoadStimuli(path string) ([]StimulusConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load stimuli %s: %w", path, err)
	}

	var out []StimulusConfig
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		out = append(out, parseStimulus(sec))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoStimuli)
	}
	return out, nil
}

func parseStimulus(sec *ini.Section) StimulusConfig {
	s := DefaultStimulus(sec.Name())
	r := sectionReader{sec: sec}

	if sec.HasKey("type") {
		s.Type = strings.TrimSpace(sec.Key("type").String())
	}
	s.ClosedLoop = r.boolean("closed-loop", s.ClosedLoop)
	s.NumberOfPeriods = r.integer("number-of-periods", s.NumberOfPeriods)
	if s.NumberOfPeriods < 1 {
		log.Printf("config: stimulus %q: number-of-periods %d < 1, using 1", s.Name, s.NumberOfPeriods)
		s.NumberOfPeriods = 1
	}
	s.DutyCycle = r.float("duty-cycle", s.DutyCycle)

	s.Foreground = r.color("foreground-color", s.Foreground)
	s.Background = r.color("background-color", s.Background)
	s.BackgroundLight = r.color("background-light", s.BackgroundLight)

	s.WaitBefore = r.seconds("wait-before", s.WaitBefore)
	s.ActiveDuration = r.seconds("active-duration", s.ActiveDuration)
	s.WaitAfter = r.seconds("wait-after", s.WaitAfter)

	s.RotationSpeed = rotationSpeed(r.float("rotation-speed", 15))

	s.LightHeight = r.float("light-height", s.LightHeight)
	s.PatternRadius = r.float("pattern-radius", s.PatternRadius)
	s.PanelHeight = r.float("panel-height", s.PanelHeight)
	s.PanelThickness = r.float("panel-thickness", s.PanelThickness)
	return s
}

// sectionReader reads typed keys, falling back to a default with a
// warning when a value does not parse.
type sectionReader struct {
	sec *ini.Section
}

func (r sectionReader) warn(key, value string, err error) {
	log.Printf("config: stimulus %q: bad %s %q (%v), using default", r.sec.Name(), key, value, err)
}

func (r sectionReader) float(key string, def float64) float64 {
	if !r.sec.HasKey(key) {
		return def
	}
	k := r.sec.Key(key)
	v, err := k.Float64()
	if err != nil {
		r.warn(key, k.String(), err)
		return def
	}
	return v
}

func (r sectionReader) seconds(key string, def time.Duration) time.Duration {
	if !r.sec.HasKey(key) {
		return def
	}
	k := r.sec.Key(key)
	v, err := k.Float64()
	if err == nil && v < 0 {
		err = errors.New("negative duration")
	}
	if err != nil {
		r.warn(key, k.String(), err)
		return def
	}
	return seconds(v)
}

func (r sectionReader) integer(key string, def int) int {
	if !r.sec.HasKey(key) {
		return def
	}
	k := r.sec.Key(key)
	v, err := k.Int()
	if err != nil {
		r.warn(key, k.String(), err)
		return def
	}
	return v
}

func (r sectionReader) boolean(key string, def bool) bool {
	if !r.sec.HasKey(key) {
		return def
	}
	k := r.sec.Key(key)
	v, err := k.Bool()
	if err != nil {
		r.warn(key, k.String(), err)
		return def
	}
	return v
}

func (r sectionReader) color(key string, def render.Color) render.Color {
	if !r.sec.HasKey(key) {
		return def
	}
	value := r.sec.Key(key).String()
	c, err := ParseColor(value)
	if err != nil {
		r.warn(key, value, err)
		return def
	}
	return c
}

// ParseColor accepts a grey level ("0.5") or a hex-packed RGB value
// ("0xFF8000"). Hex channels are scaled to 0..1.
func ParseColor(s string) (render.Color, error) {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "xX") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return render.Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		return render.Grey(v), nil
	}

	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return render.Color{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return render.Color{
		R: float64((v>>16)&0xFF) / 255.0,
		G: float64((v>>8)&0xFF) / 255.0,
		B: float64(v&0xFF) / 255.0,
	}, nil
}
