package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mvaldr/crossing-core/internal/state"
)

// Logger is the minimal logging interface the merger needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// MetricsRecorder exports merged telemetry to the metrics store.
// Implemented by the InfluxDB client; writes are batched and
// non-blocking, so exporting after every merge is cheap.
type MetricsRecorder interface {
	WriteVehicleCounts(crossingID string, counts map[string]int, waiting, priority int)
	WriteSpeeds(crossingID string, bus, car, motorcycle, truck float64)
	WriteFlowRate(crossingID string, vehiclesPerMinute float64, totalCounted, anomalies int)
}

// Merger applies inbound vehicle telemetry to the state store using
// per-topic merge rules. Malformed payloads are dropped with the prior
// snapshot untouched; every successful merge broadcasts a full-state
// event tagged with the originating topic.
type Merger struct {
	store       *state.Store
	broadcaster state.Broadcaster
	metrics     MetricsRecorder
	logger      Logger
	crossingID  string
}

// NewMerger creates a telemetry merger. metrics may be nil when export
// is disabled.
func NewMerger(store *state.Store, broadcaster state.Broadcaster, metrics MetricsRecorder, logger Logger, crossingID string) *Merger {
	return &Merger{
		store:       store,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		crossingID:  crossingID,
	}
}

// mainPayload is the full-snapshot message on the base topic. Pointer
// fields distinguish absent keys from genuine zero values: only keys
// present in the payload overwrite the snapshot.
type mainPayload struct {
	CarCount        *int `json:"car_count"`
	TruckCount      *int `json:"truck_count"`
	BusCount        *int `json:"bus_count"`
	MotorcycleCount *int `json:"motorcycle_count"`
	EmergencyCount  *int `json:"emergency_count"`

	VehiclesByType map[string]int `json:"vehicles_by_type"`

	BusSpeed        *float64 `json:"bspeed"`
	CarSpeed        *float64 `json:"cspeed"`
	MotorcycleSpeed *float64 `json:"mspeed"`
	TruckSpeed      *float64 `json:"tspeed"`

	VehiclesWaiting      *int     `json:"vehicles_waiting"`
	PriorityVehicles     *int     `json:"priority_vehicles"`
	GreenLightDuration   *int     `json:"green_light_duration"`
	VehiclesPerMinute    *float64 `json:"vehicles_per_minute"`
	Anomalies            []string `json:"anomalies"`
	TotalVehiclesCounted *int     `json:"total_vehicles_counted"`
}

// ApplyMain merges a base-topic message field by field: every key
// present overwrites the snapshot, absent keys keep their prior value.
// The snapshot timestamp is set to now.
func (m *Merger) ApplyMain(payload []byte) error {
	var p mainPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return m.malformed(SubTopicMain, err)
	}

	err := m.store.Update("telemetry:"+SubTopicMain, func(tx *state.Tx) error {
		vd := tx.Vehicles()

		for category, count := range p.VehiclesByType {
			if validCountCategory(category) {
				vd.SetCount(category, count)
			}
		}
		applyCount(vd, state.CategoryCar, p.CarCount)
		applyCount(vd, state.CategoryTruck, p.TruckCount)
		applyCount(vd, state.CategoryBus, p.BusCount)
		applyCount(vd, state.CategoryMotorcycle, p.MotorcycleCount)
		applyCount(vd, state.CategoryEmergency, p.EmergencyCount)

		applySpeed(vd, state.CategoryBus, p.BusSpeed)
		applySpeed(vd, state.CategoryCar, p.CarSpeed)
		applySpeed(vd, state.CategoryMotorcycle, p.MotorcycleSpeed)
		applySpeed(vd, state.CategoryTruck, p.TruckSpeed)

		if p.VehiclesWaiting != nil {
			vd.VehiclesWaiting = *p.VehiclesWaiting
		}
		if p.PriorityVehicles != nil {
			vd.PriorityVehicles = *p.PriorityVehicles
		}
		if p.GreenLightDuration != nil {
			vd.GreenLightDuration = *p.GreenLightDuration
		}
		if p.VehiclesPerMinute != nil {
			vd.VehiclesPerMinute = *p.VehiclesPerMinute
		}
		if p.Anomalies != nil {
			vd.Anomalies = append([]string(nil), p.Anomalies...)
		}
		if p.TotalVehiclesCounted != nil {
			vd.TotalVehiclesCounted = *p.TotalVehiclesCounted
		}

		vd.Timestamp = time.Now()
		return nil
	})
	if err != nil {
		return err
	}

	m.finish(SubTopicMain)
	return nil
}

// lightControlPayload carries the queue metrics from the light-control
// sub-topic. Plain values: a zero is indistinguishable from absent, by
// the truthy-replace rule this feed has always used.
type lightControlPayload struct {
	GreenLightDuration int `json:"green_light_duration"`
	VehiclesWaiting    int `json:"vehicles_waiting"`
	PriorityVehicles   int `json:"priority_vehicles"`
}

// ApplyLightControl merges the three queue fields. Each is replaced
// only when the incoming value is nonzero; a zero or missing value
// keeps the prior one.
func (m *Merger) ApplyLightControl(payload []byte) error {
	var p lightControlPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return m.malformed(SubTopicLightControl, err)
	}

	err := m.store.Update("telemetry:"+SubTopicLightControl, func(tx *state.Tx) error {
		vd := tx.Vehicles()
		if p.GreenLightDuration != 0 {
			vd.GreenLightDuration = p.GreenLightDuration
		}
		if p.VehiclesWaiting != 0 {
			vd.VehiclesWaiting = p.VehiclesWaiting
		}
		if p.PriorityVehicles != 0 {
			vd.PriorityVehicles = p.PriorityVehicles
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.finish(SubTopicLightControl)
	return nil
}

// speedsPayload carries the four speed aggregates, wire-named by the
// sensor pipeline's short aliases.
type speedsPayload struct {
	BusSpeed        float64 `json:"bspeed"`
	CarSpeed        float64 `json:"cspeed"`
	MotorcycleSpeed float64 `json:"mspeed"`
	TruckSpeed      float64 `json:"tspeed"`
}

// ApplySpeeds merges the four speed fields under the same
// nonzero-replace rule as ApplyLightControl.
func (m *Merger) ApplySpeeds(payload []byte) error {
	var p speedsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return m.malformed(SubTopicSpeeds, err)
	}

	err := m.store.Update("telemetry:"+SubTopicSpeeds, func(tx *state.Tx) error {
		vd := tx.Vehicles()
		if p.BusSpeed != 0 {
			vd.SetSpeed(state.CategoryBus, p.BusSpeed)
		}
		if p.CarSpeed != 0 {
			vd.SetSpeed(state.CategoryCar, p.CarSpeed)
		}
		if p.MotorcycleSpeed != 0 {
			vd.SetSpeed(state.CategoryMotorcycle, p.MotorcycleSpeed)
		}
		if p.TruckSpeed != 0 {
			vd.SetSpeed(state.CategoryTruck, p.TruckSpeed)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.finish(SubTopicSpeeds)
	return nil
}

// perTypePayload is a single-category count message.
type perTypePayload struct {
	Count *int `json:"count"`
}

// ApplyPerType merges one category's count. Presence decides: a payload
// carrying count (even zero) applies it to the category map and its
// scalar alias; a payload without count leaves the snapshot untouched
// apart from the timestamp rule below. The timestamp updates only on an
// applied count.
func (m *Merger) ApplyPerType(category string, payload []byte) error {
	if !validCountCategory(category) {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, category)
	}

	var p perTypePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return m.malformed(category, err)
	}
	if p.Count == nil {
		return nil
	}

	err := m.store.Update("telemetry:"+category, func(tx *state.Tx) error {
		vd := tx.Vehicles()
		vd.SetCount(category, *p.Count)
		vd.Timestamp = time.Now()
		return nil
	})
	if err != nil {
		return err
	}

	m.finish(category)
	return nil
}

// ApplySub dispatches a sub-topic message by its topic leaf name.
func (m *Merger) ApplySub(name string, payload []byte) error {
	switch name {
	case SubTopicLightControl:
		return m.ApplyLightControl(payload)
	case SubTopicSpeeds:
		return m.ApplySpeeds(payload)
	case state.CategoryCar, state.CategoryTruck, state.CategoryBus,
		state.CategoryMotorcycle, state.CategoryEmergency:
		return m.ApplyPerType(name, payload)
	}
	return fmt.Errorf("%w: %q", ErrUnknownTopic, name)
}

// finish broadcasts the merge and exports metrics.
func (m *Merger) finish(topic string) {
	m.broadcaster.Broadcast("telemetry:" + topic)

	if m.metrics == nil {
		return
	}
	vd := m.store.Snapshot().VehicleData
	m.metrics.WriteVehicleCounts(m.crossingID, vd.VehiclesByType, vd.VehiclesWaiting, vd.PriorityVehicles)
	m.metrics.WriteSpeeds(m.crossingID, vd.BusSpeed, vd.CarSpeed, vd.MotorcycleSpeed, vd.TruckSpeed)
	m.metrics.WriteFlowRate(m.crossingID, vd.VehiclesPerMinute, vd.TotalVehiclesCounted, len(vd.Anomalies))
}

// malformed logs and wraps an unparsable payload. The snapshot is never
// touched on this path.
func (m *Merger) malformed(topic string, err error) error {
	if m.logger != nil {
		m.logger.Warn("dropping malformed telemetry", "topic", topic, "error", err)
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, topic, err)
}

func applyCount(vd *state.VehicleData, category string, v *int) {
	if v != nil {
		vd.SetCount(category, *v)
	}
}

func applySpeed(vd *state.VehicleData, category string, v *float64) {
	if v != nil {
		vd.SetSpeed(category, *v)
	}
}

func validCountCategory(category string) bool {
	for _, c := range state.CountCategories {
		if c == category {
			return true
		}
	}
	return false
}
