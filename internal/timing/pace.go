package timing

import (
	"log"
	"time"
)

// Pacer holds a loop to a target period.
type Pacer struct {
	Name  string
	Sleep func(time.Duration)

	overruns int
}

// NewPacer returns a pacer that sleeps with time.Sleep.
func NewPacer(name string) *Pacer {
	return &Pacer{Name: name, Sleep: time.Sleep}
}

// PaceTo sleeps for target-elapsed. When the iteration already took longer
// than target it logs an overrun, does not sleep, and returns true.
// A zero or negative target disables pacing.
func (p *Pacer) PaceTo(target, elapsed time.Duration) bool {
	if target <= 0 {
		return false
	}
	if elapsed > target {
		p.overruns++
		log.Printf("timing: %s slow iteration (%.4f s > %.4f s)", p.Name, elapsed.Seconds(), target.Seconds())
		return true
	}
	if rest := target - elapsed; rest > 0 {
		p.Sleep(rest)
	}
	return false
}

// Overruns returns how many iterations exceeded the target.
func (p *Pacer) Overruns() int {
	return p.overruns
}
