package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/relabs-tech/flyvr_rig/internal/config"
)

// RunConsole prints one line per telemetry message to w until ctx is
// cancelled.
func RunConsole(ctx context.Context, cfg *config.Config, w io.Writer) error {
	if cfg.MQTTBroker == "" {
		return errors.New("console: MQTT_BROKER is not set")
	}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMonitor+"-console")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	state := &LiveState{}
	lines := make(chan string, 64)
	onUpdate := func(topic string) {
		select {
		case lines <- consoleLine(cfg, topic, state.Snapshot()):
		default:
			// printer is behind, drop the line
		}
	}
	if err := subscribeLive(client, cfg, state, "console", onUpdate); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("console: shutting down")
			return nil
		case l := <-lines:
			if l != "" {
				fmt.Fprintln(w, l)
			}
		}
	}
}

// consoleLine formats the value that just arrived on topic.
func consoleLine(cfg *config.Config, topic string, snap StateSnapshot) string {
	switch topic {
	case cfg.TopicTracker:
		s := snap.Tracker
		if s == nil {
			return ""
		}
		if !s.Found {
			return fmt.Sprintf("[TRACK] #%-6d no blob", s.Iteration)
		}
		return fmt.Sprintf(
			"[TRACK] #%-6d x=%7.2f y=%7.2f  angle=%6.1f filt=%6.1f  vp=(%.2f, %.2f, %.2f)",
			s.Iteration, s.X, s.Y, s.Angle, s.FilteredAngle,
			s.Viewpoint.X, s.Viewpoint.Y, s.Viewpoint.Z,
		)
	case cfg.TopicActuator:
		a := snap.Actuator
		if a == nil {
			return ""
		}
		return fmt.Sprintf("[STAGE] x=%7.2f y=%7.2f moving=%t", a.X, a.Y, a.Moving)
	case cfg.TopicStimulus:
		st := snap.Stimulus
		if st == nil {
			return ""
		}
		if st.Done {
			return fmt.Sprintf("[STIM ] all %d done", st.Total)
		}
		return fmt.Sprintf("[STIM ] %d/%d %s %s", st.Index+1, st.Total, st.Name, st.State)
	}
	return ""
}
