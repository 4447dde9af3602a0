package app

import (
	"errors"
	"fmt"
)

var (
	ErrCameraRead      = errors.New("camera read failed")
	ErrMotorIO         = errors.New("motor I/O failed")
	ErrRender          = errors.New("render failed")
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// ErrStimuliDone ends a session normally once every stimulus has been shown.
	ErrStimuliDone = errors.New("all stimuli presented")
)

// LoopError is a fatal failure of one of the rig loops.
type LoopError struct {
	Loop      string
	Iteration int
	Err       error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("%s loop, iteration %d: %v", e.Loop, e.Iteration, e.Err)
}

func (e *LoopError) Unwrap() error { return e.Err }
