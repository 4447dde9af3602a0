// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/shared"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
	"github.com/relabs-tech/flyvr_rig/internal/timing"
)

type MotorLoopConfig struct {
	LogPath string
	// Interval paces the loop. Zero leaves it free-running, paced by the
	// device round trips.
	Interval time.Duration
}

// MotorStats counts what the motor loop did.
type MotorStats struct {
	Iterations int
	Moves      int
	// Dropped counts commands taken while the stage was still moving.
	Dropped int
	Timing  timing.Stats
}

// RunMotorLoop polls the stage and forwards motion commands until ctx is
// cancelled. Each iteration reads the status first, publishes it, then takes
// the pending command and applies it only if that status said the stage was
// idle. Any device error ends the loop. The motor is closed on return.
func RunMotorLoop(ctx context.Context, cfg MotorLoopConfig, m motion.Motor, store *shared.Store) (stats MotorStats, err error) {
	timer := timing.NewTimer("motor", cfg.LogPath)
	pacer := timing.NewPacer("motor")
	defer func() {
		stats.Timing = timer.Stats()
		timer.Close()
		if cerr := m.Close(); cerr != nil {
			log.Printf("motor: close: %v", cerr)
		}
		log.Printf("motor: stopped after %d iterations, %d moves", stats.Iterations, stats.Moves)
	}()

	for i := 0; ctx.Err() == nil; i++ {
		timer.Tick()

		st, err := m.ReadStatus()
		if err != nil {
			return stats, &LoopError{Loop: "motor", Iteration: i, Err: fmt.Errorf("%w: read status: %w", ErrMotorIO, err)}
		}
		store.PublishActuator(st)

		cmd := store.TakeMotion()
		if !cmd.IsZero() {
			if st.Moving {
				stats.Dropped++
			} else {
				if err := m.Move(cmd.DX, cmd.DY); err != nil {
					return stats, &LoopError{Loop: "motor", Iteration: i, Err: fmt.Errorf("%w: move: %w", ErrMotorIO, err)}
				}
				stats.Moves++
			}
		}
		stats.Iterations++

		elapsed := timer.Tock(telemetry.CSVFields(st.X, st.Y, cmd.DX, cmd.DY)...)
		pacer.PaceTo(cfg.Interval, elapsed)
	}
	return stats, nil
}
