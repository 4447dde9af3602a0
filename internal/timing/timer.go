// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timing

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Timer measures one loop iteration at a time and appends a CSV record per
// iteration: unix timestamp, caller fields, elapsed seconds.
//
// A failing log target is reported once and then ignored; timing keeps
// working without it.
type Timer struct {
	// Now is the time source. Tests replace it.
	Now func() time.Time

	name   string
	start  time.Time
	out    *csv.Writer
	closer io.Closer
	failed bool
	stats  Stats
}

// Stats summarises a timer's iterations.
type Stats struct {
	Iterations int           `yaml:"iterations" json:"iterations"`
	Total      time.Duration `yaml:"total" json:"total"`
	Max        time.Duration `yaml:"max" json:"max"`
}

// Mean returns the average iteration time.
func (s Stats) Mean() time.Duration {
	if s.Iterations == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Iterations)
}

// NewTimer creates a timer logging to the CSV file at path. An empty path
// disables logging. If the file cannot be created the failure is logged
// and the timer runs without a log.
func NewTimer(name, path string) *Timer {
	t := &Timer{Now: time.Now, name: name}
	if path == "" {
		return t
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.fail(fmt.Errorf("create log dir: %w", err))
		return t
	}
	f, err := os.Create(path)
	if err != nil {
		t.fail(fmt.Errorf("create log file: %w", err))
		return t
	}
	t.out = csv.NewWriter(f)
	t.closer = f
	return t
}

// NewWriterTimer creates a timer logging to w.
func NewWriterTimer(name string, w io.Writer) *Timer {
	return &Timer{Now: time.Now, name: name, out: csv.NewWriter(w)}
}

// Tick records the start of an iteration.
func (t *Timer) Tick() {
	t.start = t.Now()
}

// Tock returns the time elapsed since Tick and, when logging is enabled,
// appends one record with the given fields.
func (t *Timer) Tock(fields ...string) time.Duration {
	now := t.Now()
	elapsed := now.Sub(t.start)
	if elapsed < 0 {
		elapsed = 0
	}

	t.stats.Iterations++
	t.stats.Total += elapsed
	if elapsed > t.stats.Max {
		t.stats.Max = elapsed
	}

	if t.out == nil || t.failed {
		return elapsed
	}

	record := make([]string, 0, len(fields)+2)
	record = append(record, formatSeconds(float64(now.UnixNano())/1e9))
	record = append(record, fields...)
	record = append(record, formatSeconds(elapsed.Seconds()))

	if err := t.out.Write(record); err != nil {
		t.fail(err)
		return elapsed
	}
	t.out.Flush()
	if err := t.out.Error(); err != nil {
		t.fail(err)
	}
	return elapsed
}

// Stats returns the counters accumulated so far.
func (t *Timer) Stats() Stats {
	return t.stats
}

// Close flushes and closes the log file.
func (t *Timer) Close() error {
	if t.out != nil && !t.failed {
		t.out.Flush()
	}
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}

func (t *Timer) fail(err error) {
	if t.failed {
		return
	}
	t.failed = true
	log.Printf("timing: %s log disabled: %v", t.name, err)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 6, 64)
}
