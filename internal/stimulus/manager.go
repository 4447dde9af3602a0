package stimulus

import (
	"fmt"
	"log"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/orientation"
	"github.com/relabs-tech/flyvr_rig/internal/render"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
)

// Factory creates the stimulus described by one config section.
type Factory func(cfg config.StimulusConfig) (Stimulus, error)

// NewFactory returns a factory building stimuli into scene.
func NewFactory(scene *render.Scene, bg Background, opts ...Option) Factory {
	return func(cfg config.StimulusConfig) (Stimulus, error) {
		switch cfg.Type {
		case "cylinder-bars", "":
			return NewCylinderBars(cfg, scene, bg, opts...), nil
		default:
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownType, cfg.Type, cfg.Name)
		}
	}
}

// Manager presents a list of stimuli one after the other. Each one is
// created when it becomes current and closed as soon as it is done.
type Manager struct {
	configs []config.StimulusConfig
	factory Factory

	index   int
	current Stimulus
	done    bool
}

func NewManager(configs []config.StimulusConfig, factory Factory) *Manager {
	return &Manager{
		configs: configs,
		factory: factory,
		done:    len(configs) == 0,
	}
}

// Update forwards the viewpoint to the current stimulus, starting the next
// one when needed. Once every stimulus is done it does nothing.
func (m *Manager) Update(pose orientation.Pose) error {
	if m.done {
		return nil
	}

	if m.current == nil {
		cfg := m.configs[m.index]
		s, err := m.factory(cfg)
		if err != nil {
			return err
		}
		m.current = s
		log.Printf("stimulus: starting %q (%d/%d)", cfg.Name, m.index+1, len(m.configs))
	}

	if err := m.current.Update(pose); err != nil {
		return err
	}

	if m.current.Done() {
		err := m.current.Close()
		m.current = nil
		m.index++
		if m.index >= len(m.configs) {
			m.done = true
			log.Printf("stimulus: all %d stimuli presented", len(m.configs))
		}
		return err
	}
	return nil
}

// Current returns the stimulus being presented, or nil between stimuli.
func (m *Manager) Current() Stimulus { return m.current }

// Done reports whether every stimulus has been presented.
func (m *Manager) Done() bool { return m.done }

// Presented returns how many stimuli completed.
func (m *Manager) Presented() int { return m.index }

// Status summarises progress for telemetry.
func (m *Manager) Status() telemetry.StimulusStatus {
	st := telemetry.StimulusStatus{
		Index: m.index,
		Total: len(m.configs),
		Done:  m.done,
		State: Done.String(),
	}
	if m.index < len(m.configs) {
		st.Name = m.configs[m.index].Name
		st.State = Init.String()
	}
	if m.current != nil {
		st.State = m.current.State().String()
	}
	return st
}

// Close closes the current stimulus if one is still running.
func (m *Manager) Close() error {
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}
