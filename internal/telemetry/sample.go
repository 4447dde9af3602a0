package telemetry

import (
	"strconv"

	"github.com/relabs-tech/flyvr_rig/internal/orientation"
)

// Sample is one vision loop iteration as published over MQTT and the web
// socket.
type Sample struct {
	Time          string           `json:"time"`      // RFC3339Nano
	Iteration     int              `json:"iteration"` // vision loop counter
	Found         bool             `json:"found"`     // false when no blob was detected
	X             float64          `json:"x"`         // marker offset from frame centre, mm
	Y             float64          `json:"y"`
	ActuatorX     float64          `json:"actuator_x"` // stage position, mm
	ActuatorY     float64          `json:"actuator_y"`
	Angle         float64          `json:"angle"`          // raw marker angle, degrees
	FilteredAngle float64          `json:"filtered_angle"` // moving average, degrees
	Viewpoint     orientation.Pose `json:"viewpoint"`
	LoopSeconds   float64          `json:"loop_s"`
}

// StimulusStatus describes where the stimulus sequence currently is.
type StimulusStatus struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	Name  string `json:"name"`
	State string `json:"state"`
	Done  bool   `json:"done"`
}

// CSVFields formats values with three decimals for the per-loop CSV logs.
func CSVFields(values ...float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatFloat(v, 'f', 3, 64)
	}
	return out
}

// Fields returns the x,y,actuatorX,actuatorY,angle,filteredAngle record for
// the vision loop log. A sample without a blob logs zeros.
func (s Sample) Fields() []string {
	if !s.Found {
		return CSVFields(0, 0, 0, 0, 0, 0)
	}
	return CSVFields(s.X, s.Y, s.ActuatorX, s.ActuatorY, s.Angle, s.FilteredAngle)
}
