package app

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/flyvr_rig/internal/config"
	"github.com/relabs-tech/flyvr_rig/internal/motion"
	"github.com/relabs-tech/flyvr_rig/internal/telemetry"
)

// LiveState holds the latest telemetry received over MQTT. The web server,
// status display, console and monitor all read from one of these.
type LiveState struct {
	mu sync.RWMutex

	tracker     telemetry.Sample
	haveTracker bool

	actuator     motion.Status
	haveActuator bool

	stimulus     telemetry.StimulusStatus
	haveStimulus bool
}

// StateSnapshot is a copy of LiveState. Missing values are nil.
type StateSnapshot struct {
	Tracker  *telemetry.Sample         `json:"tracker"`
	Actuator *motion.Status            `json:"actuator"`
	Stimulus *telemetry.StimulusStatus `json:"stimulus"`
}

func (s *LiveState) SetTracker(v telemetry.Sample) {
	s.mu.Lock()
	s.tracker, s.haveTracker = v, true
	s.mu.Unlock()
}

func (s *LiveState) SetActuator(v motion.Status) {
	s.mu.Lock()
	s.actuator, s.haveActuator = v, true
	s.mu.Unlock()
}

func (s *LiveState) SetStimulus(v telemetry.StimulusStatus) {
	s.mu.Lock()
	s.stimulus, s.haveStimulus = v, true
	s.mu.Unlock()
}

// Snapshot copies the current values.
func (s *LiveState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap StateSnapshot
	if s.haveTracker {
		v := s.tracker
		snap.Tracker = &v
	}
	if s.haveActuator {
		v := s.actuator
		snap.Actuator = &v
	}
	if s.haveStimulus {
		v := s.stimulus
		snap.Stimulus = &v
	}
	return snap
}

// Empty reports whether nothing has been received yet.
func (snap StateSnapshot) Empty() bool {
	return snap.Tracker == nil && snap.Actuator == nil && snap.Stimulus == nil
}

// Subscriber is the part of mqtt.Client the telemetry readers use.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// liveHandlers maps each telemetry topic to a decoder feeding state. onUpdate,
// if set, runs after every accepted message with the topic it came on.
func liveHandlers(cfg *config.Config, state *LiveState, component string, onUpdate func(topic string)) map[string]mqtt.MessageHandler {
	decode := func(topic string, into any, store func()) mqtt.MessageHandler {
		return func(_ mqtt.Client, msg mqtt.Message) {
			if err := json.Unmarshal(msg.Payload(), into); err != nil {
				log.Printf("%s: %s unmarshal error: %v", component, topic, err)
				return
			}
			store()
			if onUpdate != nil {
				onUpdate(topic)
			}
		}
	}

	return map[string]mqtt.MessageHandler{
		cfg.TopicTracker: func(c mqtt.Client, msg mqtt.Message) {
			var v telemetry.Sample
			decode(cfg.TopicTracker, &v, func() { state.SetTracker(v) })(c, msg)
		},
		cfg.TopicActuator: func(c mqtt.Client, msg mqtt.Message) {
			var v motion.Status
			decode(cfg.TopicActuator, &v, func() { state.SetActuator(v) })(c, msg)
		},
		cfg.TopicStimulus: func(c mqtt.Client, msg mqtt.Message) {
			var v telemetry.StimulusStatus
			decode(cfg.TopicStimulus, &v, func() { state.SetStimulus(v) })(c, msg)
		},
	}
}

// subscribeLive subscribes to the three telemetry topics.
func subscribeLive(client Subscriber, cfg *config.Config, state *LiveState, component string, onUpdate func(topic string)) error {
	for topic, handler := range liveHandlers(cfg, state, component, onUpdate) {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		log.Printf("%s: subscribed to %s", component, topic)
	}
	return nil
}
