// Package mqtt provides MQTT client connectivity for Crossing Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The vehicle-counting sensor pipeline publishes JSON telemetry on a base
// topic plus one sub-topic per category (car, truck, bus, motorcycle,
// emergency, traffic_light, speeds). Crossing Core subscribes to the whole
// hierarchy and feeds messages to the telemetry merger.
//
//	Sensor Pipeline → MQTT Broker → Crossing Core
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{VehicleBase: cfg.Telemetry.BaseTopic}
//	err = telemetry.StartIngest(client, topics, merger)
package mqtt
