package devices

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOTrigger drives a digital output line, high while a stimulus is
// active.
type GPIOTrigger struct {
	pin gpio.PinIO
}

// OpenGPIOTrigger initialises periph and drives pin low.
func OpenGPIOTrigger(name string) (*GPIOTrigger, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return NewGPIOTrigger(pin)
}

// NewGPIOTrigger wraps an already resolved pin and drives it low.
func NewGPIOTrigger(pin gpio.PinIO) (*GPIOTrigger, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s: %w", pin.Name(), err)
	}
	log.Printf("trigger: using %s", pin.Name())
	return &GPIOTrigger{pin: pin}, nil
}

func (t *GPIOTrigger) Set(high bool) error {
	level := gpio.Low
	if high {
		level = gpio.High
	}
	if err := t.pin.Out(level); err != nil {
		return fmt.Errorf("gpio %s: %w", t.pin.Name(), err)
	}
	return nil
}

// Close leaves the line low.
func (t *GPIOTrigger) Close() error {
	return t.Set(false)
}
