package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Measurement names for crossing telemetry.
const (
	measurementVehicleCounts = "vehicle_counts"
	measurementSpeeds        = "vehicle_speeds"
	measurementFlow          = "traffic_flow"
	measurementSignalPhase   = "signal_phase"
)

// WriteVehicleCounts records per-type vehicle counts for a crossing.
//
// Parameters:
//   - crossingID: Crossing identifier (tag)
//   - counts: Vehicle counts keyed by type (car, truck, bus, motorcycle, emergency)
//   - waiting: Vehicles currently waiting at the crossing
//   - priority: Priority vehicles present
func (c *Client) WriteVehicleCounts(crossingID string, counts map[string]int, waiting, priority int) {
	if !c.enabled {
		return
	}

	fields := map[string]interface{}{
		"vehicles_waiting":  waiting,
		"priority_vehicles": priority,
	}
	for vehicleType, count := range counts {
		fields[vehicleType+"_count"] = count
	}

	point := influxdb2.NewPoint(
		measurementVehicleCounts,
		map[string]string{"crossing": crossingID},
		fields,
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteSpeeds records the rolling speed aggregates for a crossing.
// Speeds are km/h; zero values are still written so gaps are visible.
func (c *Client) WriteSpeeds(crossingID string, bus, car, motorcycle, truck float64) {
	if !c.enabled {
		return
	}

	point := influxdb2.NewPoint(
		measurementSpeeds,
		map[string]string{"crossing": crossingID},
		map[string]interface{}{
			"bus_speed":        bus,
			"car_speed":        car,
			"motorcycle_speed": motorcycle,
			"truck_speed":      truck,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteFlowRate records throughput metrics for a crossing.
func (c *Client) WriteFlowRate(crossingID string, vehiclesPerMinute float64, totalCounted, anomalies int) {
	if !c.enabled {
		return
	}

	point := influxdb2.NewPoint(
		measurementFlow,
		map[string]string{"crossing": crossingID},
		map[string]interface{}{
			"vehicles_per_minute":    vehiclesPerMinute,
			"total_vehicles_counted": totalCounted,
			"anomalies":              anomalies,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteSignalPhase records a signal phase change.
// Phase is stored as a field so Flux queries can window over transitions.
func (c *Client) WriteSignalPhase(crossingID, signalID, phase, reason string) {
	if !c.enabled {
		return
	}

	point := influxdb2.NewPoint(
		measurementSignalPhase,
		map[string]string{
			"crossing": crossingID,
			"signal":   signalID,
		},
		map[string]interface{}{
			"phase":  phase,
			"reason": reason,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}
