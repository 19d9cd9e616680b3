// Package telemetry merges vehicle telemetry from the sensor pipeline
// into the crossing snapshot.
//
// Messages arrive on a base MQTT topic plus seven sub-topics (car,
// truck, bus, motorcycle, emergency, traffic_light, speeds), or over
// the HTTP push endpoint which carries base-topic semantics. Merge
// rules differ per topic:
//
//   - base topic: field-wise shallow merge, present keys overwrite
//   - traffic_light and speeds: nonzero values replace, zero is treated
//     as absent (the pipeline's long-standing truthy rule)
//   - per-category topics: presence of count decides, zero applies
//
// Malformed payloads are logged and dropped. Each successful merge
// broadcasts a tagged full-state event and exports the merged numbers
// to InfluxDB through the batched non-blocking writer.
package telemetry
