// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/flyvr_rig/internal/calibration"
)

// CalibrateFunc runs one stage calibration, reporting progress as it goes.
type CalibrateFunc func(ctx context.Context, progress func(calibration.Progress)) (calibration.Result, error)

// WebSocket message types
type WSMessage struct {
	Action string `json:"action"` // start, cancel
}

type WSResponse struct {
	Type     string                `json:"type"` // progress, complete, error
	Progress *calibration.Progress `json:"progress,omitempty"`
	Results  *calibration.Result   `json:"results,omitempty"`
	Message  string                `json:"message,omitempty"`
}

// calibrationSession is one browser connection. Only one calibration runs
// at a time per connection.
type calibrationSession struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (s *calibrationSession) send(resp WSResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(resp); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}

func (s *calibrationSession) sendError(msg string) {
	s.send(WSResponse{Type: "error", Message: msg})
}

// handleCalibrationWS runs calibrations on request from the browser.
// "start" begins one, "cancel" aborts it; closing the socket cancels too.
func handleCalibrationWS(ctx context.Context, run CalibrateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("calibration: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		session := &calibrationSession{conn: conn}
		var wg sync.WaitGroup
		defer wg.Wait()
		defer session.stop()

		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				log.Printf("calibration: websocket read error: %v", err)
				return
			}

			switch msg.Action {
			case "start":
				runCtx, ok := session.begin(ctx)
				if !ok {
					session.sendError("calibration already running")
					continue
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer session.stop()
					log.Printf("calibration: started")
					res, err := run(runCtx, func(p calibration.Progress) {
						session.send(WSResponse{Type: "progress", Progress: &p})
					})
					if err != nil {
						log.Printf("calibration: failed: %v", err)
						session.sendError(err.Error())
						return
					}
					log.Printf("calibration: %s (confidence %.2f)", res.ConfigLine(), res.Confidence)
					session.send(WSResponse{Type: "complete", Results: &res})
				}()

			case "cancel":
				log.Printf("calibration: cancelled by user")
				session.stop()

			default:
				session.sendError("unknown action " + msg.Action)
			}
		}
	}
}

func (s *calibrationSession) begin(parent context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx, true
}

func (s *calibrationSession) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
