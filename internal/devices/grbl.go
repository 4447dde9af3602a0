// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package devices holds the hardware adapters: the GRBL stage controller,
// the V4L2 camera and the GPIO stimulus trigger.
package devices

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/flyvr_rig/internal/motion"
)

// maxSkippedLines bounds how many unrelated lines (startup banner, stray
// status reports) are skipped while waiting for a reply.
const maxSkippedLines = 32

var (
	ErrBadStatus = errors.New("grbl: malformed status report")
	ErrNoReply   = errors.New("grbl: no reply")
)

// GRBL drives a GRBL-controlled XY stage over a serial line using relative
// moves. It satisfies motion.Motor.
type GRBL struct {
	port     io.ReadWriteCloser
	reader   *bufio.Reader
	feedRate float64
}

// OpenGRBL opens the serial port. A zero feedRate issues rapid G0 moves;
// otherwise G1 at feedRate mm/min.
func OpenGRBL(portName string, baud int, feedRate float64) (*GRBL, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open grbl port %s: %w", portName, err)
	}
	log.Printf("grbl: serial port opened on %s at %d baud", portName, baud)

	return NewGRBL(port, feedRate), nil
}

// NewGRBL wraps an already open port.
func NewGRBL(port io.ReadWriteCloser, feedRate float64) *GRBL {
	return &GRBL{
		port:     port,
		reader:   bufio.NewReader(port),
		feedRate: feedRate,
	}
}

// ReadStatus sends the real-time status query and parses the reply.
func (g *GRBL) ReadStatus() (motion.Status, error) {
	if _, err := g.port.Write([]byte("?")); err != nil {
		return motion.Status{}, fmt.Errorf("grbl status query: %w", err)
	}
	for i := 0; i < maxSkippedLines; i++ {
		line, err := g.readLine()
		if err != nil {
			return motion.Status{}, fmt.Errorf("grbl status read: %w", err)
		}
		if strings.HasPrefix(line, "<") {
			return parseStatus(line)
		}
	}
	return motion.Status{}, fmt.Errorf("%w to status query", ErrNoReply)
}

// Move issues a relative move and waits for the controller to accept it.
// The move itself completes later; ReadStatus reports Moving until then.
func (g *GRBL) Move(dx, dy float64) error {
	var cmd string
	if g.feedRate > 0 {
		cmd = fmt.Sprintf("G91 G1 X%.3f Y%.3f F%.1f\n", dx, dy, g.feedRate)
	} else {
		cmd = fmt.Sprintf("G91 G0 X%.3f Y%.3f\n", dx, dy)
	}
	if _, err := io.WriteString(g.port, cmd); err != nil {
		return fmt.Errorf("grbl move: %w", err)
	}

	for i := 0; i < maxSkippedLines; i++ {
		line, err := g.readLine()
		if err != nil {
			return fmt.Errorf("grbl move reply: %w", err)
		}
		switch {
		case line == "ok":
			return nil
		case strings.HasPrefix(line, "error"):
			return fmt.Errorf("grbl rejected %q: %s", strings.TrimSpace(cmd), line)
		}
	}
	return fmt.Errorf("%w to move", ErrNoReply)
}

func (g *GRBL) Close() error {
	return g.port.Close()
}

func (g *GRBL) readLine() (string, error) {
	for {
		line, err := g.reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil {
			if line != "" && errors.Is(err, io.EOF) {
				return line, nil
			}
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

// parseStatus parses a GRBL status report. Both the 1.1 form
// "<Idle|MPos:1.000,2.000,0.000|FS:0,0>" and the 0.9 form
// "<Idle,MPos:1.000,2.000,0.000,WPos:...>" are accepted.
func parseStatus(line string) (motion.Status, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") || !strings.HasSuffix(line, ">") {
		return motion.Status{}, fmt.Errorf("%w: %q", ErrBadStatus, line)
	}
	body := line[1 : len(line)-1]

	var state, x, y string
	if strings.Contains(body, "|") {
		fields := strings.Split(body, "|")
		state = fields[0]
		for _, f := range fields[1:] {
			pos, ok := strings.CutPrefix(f, "MPos:")
			if !ok {
				pos, ok = strings.CutPrefix(f, "WPos:")
			}
			if !ok {
				continue
			}
			coords := strings.Split(pos, ",")
			if len(coords) < 2 {
				return motion.Status{}, fmt.Errorf("%w: %q", ErrBadStatus, line)
			}
			x, y = coords[0], coords[1]
			break
		}
	} else {
		fields := strings.Split(body, ",")
		state = fields[0]
		for i, f := range fields {
			if pos, ok := strings.CutPrefix(f, "MPos:"); ok && i+1 < len(fields) {
				x, y = pos, fields[i+1]
				break
			}
		}
	}

	if state == "" || x == "" || y == "" {
		return motion.Status{}, fmt.Errorf("%w: %q", ErrBadStatus, line)
	}

	xv, err := strconv.ParseFloat(x, 64)
	if err != nil {
		return motion.Status{}, fmt.Errorf("%w: x %q", ErrBadStatus, x)
	}
	yv, err := strconv.ParseFloat(y, 64)
	if err != nil {
		return motion.Status{}, fmt.Errorf("%w: y %q", ErrBadStatus, y)
	}

	// Sub-states such as "Hold:0" count by their main state.
	state, _, _ = strings.Cut(state, ":")

	return motion.Status{X: xv, Y: yv, Moving: state != "Idle"}, nil
}
