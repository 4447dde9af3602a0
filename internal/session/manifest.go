// Package session records what happened during one rig run.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/flyvr_rig/internal/timing"
)

// FileName is the manifest file written into the log directory.
const FileName = "session.yaml"

// LoopStats summarises one loop's timing.
type LoopStats struct {
	Iterations int     `yaml:"iterations"`
	MeanMS     float64 `yaml:"mean_ms"`
	MaxMS      float64 `yaml:"max_ms"`
	Overruns   int     `yaml:"overruns,omitempty"`
}

// Manifest is the per-run metadata saved next to the loop logs.
type Manifest struct {
	Started  time.Time `yaml:"started"`
	Finished time.Time `yaml:"finished"`

	ConfigFile   string `yaml:"config_file,omitempty"`
	DisplaysFile string `yaml:"displays_file"`
	StimuliFile  string `yaml:"stimuli_file"`
	MockDevices  bool   `yaml:"mock_devices"`

	Displays         []string `yaml:"displays"`
	Stimuli          []string `yaml:"stimuli"`
	StimuliPresented int      `yaml:"stimuli_presented"`

	BlobsFound  int `yaml:"blobs_found"`
	MovesIssued int `yaml:"moves_issued"`

	Loops map[string]LoopStats `yaml:"loops"`

	Error string `yaml:"error,omitempty"`
}

// New starts a manifest at now.
func New(now time.Time) *Manifest {
	return &Manifest{Started: now, Loops: map[string]LoopStats{}}
}

// RecordLoop stores a loop's timer statistics.
func (m *Manifest) RecordLoop(name string, st timing.Stats, overruns int) {
	if m.Loops == nil {
		m.Loops = map[string]LoopStats{}
	}
	m.Loops[name] = LoopStats{
		Iterations: st.Iterations,
		MeanMS:     float64(st.Mean()) / float64(time.Millisecond),
		MaxMS:      float64(st.Max) / float64(time.Millisecond),
		Overruns:   overruns,
	}
}

// Finish stamps the end time and the terminating error, if any.
func (m *Manifest) Finish(now time.Time, err error) {
	m.Finished = now
	if err != nil {
		m.Error = err.Error()
	}
}

// Duration is how long the run took.
func (m *Manifest) Duration() time.Duration {
	return m.Finished.Sub(m.Started)
}

// Save writes the manifest as dir/session.yaml and returns the path.
func (m *Manifest) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write session: %w", err)
	}
	return path, nil
}

// Load reads a manifest back.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	return m, nil
}
