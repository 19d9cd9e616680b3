package telemetry

import (
	"strings"

	"github.com/mvaldr/crossing-core/internal/infrastructure/mqtt"
)

// Topic leaf names used in merge dispatch and broadcast reason tags.
// The sub-topic names match the sensor pipeline's MQTT hierarchy.
const (
	SubTopicMain         = "main"
	SubTopicLightControl = "traffic_light"
	SubTopicSpeeds       = "speeds"
)

// ingestQoS is at-least-once: duplicate telemetry merges are harmless,
// lost ones leave stale counts until the next publish.
const ingestQoS = 1

// Subscriber is the slice of the MQTT client the ingest binding needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// StartIngest subscribes the merger to the sensor pipeline's topic
// hierarchy: the base topic for full-snapshot messages and the
// single-level wildcard for the seven sub-topics. Handler errors are
// logged by the MQTT client; a bad message never breaks the
// subscription.
func StartIngest(sub Subscriber, topics mqtt.Topics, merger *Merger) error {
	err := sub.Subscribe(topics.VehicleMain(), ingestQoS, func(_ string, payload []byte) error {
		return merger.ApplyMain(payload)
	})
	if err != nil {
		return err
	}

	return sub.Subscribe(topics.AllVehicleSubs(), ingestQoS, func(topic string, payload []byte) error {
		return merger.ApplySub(topicLeaf(topic), payload)
	})
}

// topicLeaf returns the last segment of an MQTT topic.
func topicLeaf(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
