package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/flyvr_rig/internal/shared"
)

// Publisher is the part of mqtt.Client the telemetry publisher uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// TelemetryTopics names the MQTT topics the rig publishes on.
type TelemetryTopics struct {
	Tracker  string
	Actuator string
	Stimulus string
}

// ConnectMQTT connects to broker as clientID.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	log.Printf("telemetry: connected to %s as %s", broker, clientID)
	return client, nil
}

// RunTelemetryPublisher publishes the latest tracker sample, stage status and
// stimulus progress every interval until ctx is cancelled. A sample is only
// sent once; stage status is sent every tick. Publish failures are logged.
func RunTelemetryPublisher(ctx context.Context, topics TelemetryTopics, interval time.Duration, client Publisher, store *shared.Store) error {
	if interval <= 0 {
		return fmt.Errorf("telemetry: interval must be positive, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastIteration := -1
	var lastStimulus string

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if s, ok := store.Sample(); ok && s.Iteration != lastIteration {
			lastIteration = s.Iteration
			publishJSON(client, topics.Tracker, false, s)
		}

		publishJSON(client, topics.Actuator, false, store.Actuator())

		if st, ok := store.Stimulus(); ok {
			key := fmt.Sprintf("%d/%s", st.Index, st.State)
			if key != lastStimulus {
				lastStimulus = key
				publishJSON(client, topics.Stimulus, true, st)
			}
		}
	}
}

func publishJSON(client Publisher, topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("telemetry: json marshal error: %v", err)
		return
	}
	token := client.Publish(topic, 0, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("telemetry: publish %s: %v", topic, err)
	}
}
