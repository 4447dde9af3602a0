package render

import (
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Headless keeps projections and the scene in memory and draws nothing.
// Accessors are safe to call from other goroutines while the render loop
// runs, which the monitor and tests rely on.
type Headless struct {
	// FrameCost simulates the time a frame takes to draw.
	FrameCost time.Duration

	mu          sync.Mutex
	displays    []Display
	projections []mgl64.Mat4
	background  Color
	scene       *Scene
	started     bool
	closed      bool
	frames      int
}

// NewHeadless creates a renderer for the given displays.
func NewHeadless(displays []Display) *Headless {
	ds := make([]Display, len(displays))
	copy(ds, displays)
	return &Headless{
		displays:    ds,
		projections: make([]mgl64.Mat4, len(ds)),
		scene:       NewScene(),
	}
}

func (h *Headless) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
	for _, d := range h.displays {
		log.Printf("render: display %d %q %dx%d fullscreen=%v", d.ID, d.Name, d.Width, d.Height, d.Fullscreen)
	}
	return nil
}

func (h *Headless) Displays() []Display {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Display, len(h.displays))
	copy(out, h.displays)
	return out
}

func (h *Headless) SetProjection(display int, m mgl64.Mat4) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkDisplay(h.displays, display); err != nil {
		return err
	}
	h.projections[display] = m
	return nil
}

// Projection returns the last matrix installed on a display.
func (h *Headless) Projection(display int) (mgl64.Mat4, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkDisplay(h.displays, display); err != nil {
		return mgl64.Mat4{}, err
	}
	return h.projections[display], nil
}

func (h *Headless) SetBackground(c Color) {
	h.mu.Lock()
	h.background = c
	h.mu.Unlock()
}

func (h *Headless) Background() Color {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.background
}

func (h *Headless) RenderFrame() error {
	h.mu.Lock()
	if !h.started || h.closed {
		h.mu.Unlock()
		return ErrNotStarted
	}
	h.frames++
	h.mu.Unlock()

	if h.FrameCost > 0 {
		time.Sleep(h.FrameCost)
	}
	return nil
}

// Frames returns how many frames were rendered.
func (h *Headless) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Scene returns the scene graph. The graph itself belongs to the render
// loop.
func (h *Headless) Scene() *Scene {
	return h.scene
}

func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *Headless) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
