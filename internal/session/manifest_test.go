package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flyvr_rig/internal/timing"
)

func TestRecordLoop(t *testing.T) {
	m := New(time.Unix(0, 0))
	m.RecordLoop("render", timing.Stats{Iterations: 4, Total: 40 * time.Millisecond, Max: 16 * time.Millisecond}, 2)

	st := m.Loops["render"]
	assert.Equal(t, 4, st.Iterations)
	assert.InDelta(t, 10, st.MeanMS, 1e-9)
	assert.InDelta(t, 16, st.MaxMS, 1e-9)
	assert.Equal(t, 2, st.Overruns)
}

func TestSaveWritesReadableYAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := New(start)
	m.DisplaysFile = "tv.ini"
	m.Stimuli = []string{"slow", "fast"}
	m.StimuliPresented = 1
	m.MovesIssued = 7
	m.RecordLoop("vision", timing.Stats{Iterations: 10}, 0)
	m.Finish(start.Add(90*time.Second), errors.New("camera unplugged"))

	path, err := m.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "error: camera unplugged")
	assert.Contains(t, string(raw), "moves_issued: 7")

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"slow", "fast"}, back.Stimuli)
	assert.Equal(t, 90*time.Second, back.Duration())
	assert.Equal(t, 10, back.Loops["vision"].Iterations)
}

func TestFinishWithoutError(t *testing.T) {
	m := New(time.Unix(0, 0))
	m.Finish(time.Unix(1, 0), nil)
	assert.Empty(t, m.Error)
	assert.Equal(t, time.Second, m.Duration())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.Error(t, err)
}
