package mqtt

import "fmt"

// Topic prefixes for Crossing Core.
//
// The vehicle-counting pipeline publishes on a configurable base topic
// (default crossing/vehicles) with one sub-topic per message category.
// System topics carry the core's own status.
const (
	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "crossing/system"

	// DefaultVehicleBase is the default base topic of the vehicle pipeline.
	DefaultVehicleBase = "crossing/vehicles"
)

// Vehicle pipeline sub-topic names, one per telemetry message category.
const (
	SubTopicCar          = "car"
	SubTopicTruck        = "truck"
	SubTopicBus          = "bus"
	SubTopicMotorcycle   = "motorcycle"
	SubTopicEmergency    = "emergency"
	SubTopicLightControl = "traffic_light"
	SubTopicSpeeds       = "speeds"
)

// Topics provides builders for Crossing Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct {
	// VehicleBase overrides the vehicle pipeline base topic when non-empty.
	VehicleBase string
}

// base returns the configured or default vehicle base topic.
func (t Topics) base() string {
	if t.VehicleBase != "" {
		return t.VehicleBase
	}
	return DefaultVehicleBase
}

// VehicleMain returns the base topic carrying full telemetry payloads.
//
// Example: crossing/vehicles
func (t Topics) VehicleMain() string {
	return t.base()
}

// VehicleSub returns the topic for one telemetry sub-category.
//
// Example: crossing/vehicles/truck
func (t Topics) VehicleSub(name string) string {
	return fmt.Sprintf("%s/%s", t.base(), name)
}

// AllVehicleSubs returns a pattern matching every vehicle sub-topic.
//
// Pattern: crossing/vehicles/+
func (t Topics) AllVehicleSubs() string {
	return fmt.Sprintf("%s/+", t.base())
}

// SystemStatus returns the system status topic.
//
// Example: crossing/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
