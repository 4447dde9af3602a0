// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/flyvr_rig/internal/vision"
)

// RunTrackerCheck grabs frames and prints what the detector finds, without
// moving the stage or rendering anything. It stops after count frames, or
// when ctx is cancelled if count is 0.
func RunTrackerCheck(ctx context.Context, cam vision.Camera, det vision.Detector, pixelsPerMM float64, interval time.Duration, count int, w io.Writer) error {
	if pixelsPerMM <= 0 {
		return fmt.Errorf("track: pixels per mm must be positive, got %v", pixelsPerMM)
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; count == 0 || i <= count; i++ {
		frame, err := cam.Capture()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCameraRead, err)
		}

		blob, ok := det.Detect(frame)
		if !ok {
			fmt.Fprintf(w, "%5d  no blob\n", i)
		} else {
			px, py := blob.Offset()
			fmt.Fprintf(w,
				"%5d  x=%7.2fmm  y=%7.2fmm  angle=%6.1f  area=%d\n",
				i, px/pixelsPerMM, py/pixelsPerMM, blob.Angle, blob.Area,
			)
		}

		if count != 0 && i == count {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
