package state

import "time"

// Phase is the displayed colour of one traffic signal.
type Phase string

// Signal phases. No other value is representable through this package's
// mutation paths.
const (
	PhaseRed    Phase = "red"
	PhaseYellow Phase = "yellow"
	PhaseGreen  Phase = "green"
)

// Valid reports whether p is one of the three signal phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseRed, PhaseYellow, PhaseGreen:
		return true
	}
	return false
}

// PairRole identifies which side of the crossing a signal controls.
type PairRole string

// Pair roles.
const (
	RoleA PairRole = "a"
	RoleB PairRole = "b"
)

// SignalState is the live state of one traffic signal. Exactly two
// instances exist for the lifetime of the process, created from
// configuration at startup.
type SignalState struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Phase       Phase     `json:"phase"`
	PairRole    PairRole  `json:"pairRole"`
	LastUpdated time.Time `json:"lastUpdated"`

	// Generation increments on every command that schedules or
	// supersedes a delayed completion for this signal. A completion
	// applies only if the generation still matches the value captured
	// when it was scheduled.
	Generation uint64 `json:"-"`
}

// FlowMode selects how the crossing direction is decided.
type FlowMode string

// Flow modes.
const (
	ModeAutomatic FlowMode = "automatic"
	ModeManual    FlowMode = "manual"
)

// FlowDirection is the currently cleared traffic direction.
type FlowDirection string

// Flow directions.
const (
	DirectionInbound  FlowDirection = "inbound"
	DirectionOutbound FlowDirection = "outbound"
)

// FlowDirective is the singleton traffic-flow record.
type FlowDirective struct {
	Mode             FlowMode      `json:"mode"`
	CurrentDirection FlowDirection `json:"currentDirection"`
	LastChanged      time.Time     `json:"lastChanged"`
}

// Vehicle categories tracked by the telemetry pipeline.
const (
	CategoryCar        = "car"
	CategoryTruck      = "truck"
	CategoryBus        = "bus"
	CategoryMotorcycle = "motorcycle"
	CategoryEmergency  = "emergency"
)

// CountCategories lists the five counted vehicle categories.
var CountCategories = []string{
	CategoryCar, CategoryTruck, CategoryBus, CategoryMotorcycle, CategoryEmergency,
}

// SpeedCategories lists the four categories with speed aggregates.
var SpeedCategories = []string{
	CategoryCar, CategoryTruck, CategoryBus, CategoryMotorcycle,
}

// VehicleData is the merged telemetry snapshot. Field names mirror the
// sensor pipeline's wire format, including the short speed aliases
// (bspeed = bus, cspeed = car, mspeed = motorcycle, tspeed = truck).
// The category maps always contain every category key; merges update
// values but never remove keys.
type VehicleData struct {
	CarCount        int `json:"car_count"`
	TruckCount      int `json:"truck_count"`
	BusCount        int `json:"bus_count"`
	MotorcycleCount int `json:"motorcycle_count"`
	EmergencyCount  int `json:"emergency_count"`

	VehiclesByType map[string]int     `json:"vehicles_by_type"`
	SpeedsByType   map[string]float64 `json:"speeds_by_type"`

	BusSpeed        float64 `json:"bspeed"`
	CarSpeed        float64 `json:"cspeed"`
	MotorcycleSpeed float64 `json:"mspeed"`
	TruckSpeed      float64 `json:"tspeed"`

	VehiclesWaiting      int      `json:"vehicles_waiting"`
	PriorityVehicles     int      `json:"priority_vehicles"`
	GreenLightDuration   int      `json:"green_light_duration"`
	VehiclesPerMinute    float64  `json:"vehicles_per_minute"`
	Anomalies            []string `json:"anomalies"`
	TotalVehiclesCounted int      `json:"total_vehicles_counted"`

	Timestamp time.Time `json:"timestamp"`
}

// NewVehicleData returns a zeroed snapshot with every category key
// present in both maps.
func NewVehicleData() VehicleData {
	vd := VehicleData{
		VehiclesByType: make(map[string]int, len(CountCategories)),
		SpeedsByType:   make(map[string]float64, len(SpeedCategories)),
		Anomalies:      []string{},
	}
	for _, c := range CountCategories {
		vd.VehiclesByType[c] = 0
	}
	for _, c := range SpeedCategories {
		vd.SpeedsByType[c] = 0
	}
	return vd
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (vd VehicleData) Clone() VehicleData {
	out := vd
	out.VehiclesByType = make(map[string]int, len(vd.VehiclesByType))
	for k, v := range vd.VehiclesByType {
		out.VehiclesByType[k] = v
	}
	out.SpeedsByType = make(map[string]float64, len(vd.SpeedsByType))
	for k, v := range vd.SpeedsByType {
		out.SpeedsByType[k] = v
	}
	out.Anomalies = append([]string(nil), vd.Anomalies...)
	return out
}

// SetCount applies a per-category count, keeping the map entry and the
// matching scalar alias in step.
func (vd *VehicleData) SetCount(category string, count int) {
	vd.VehiclesByType[category] = count
	switch category {
	case CategoryCar:
		vd.CarCount = count
	case CategoryTruck:
		vd.TruckCount = count
	case CategoryBus:
		vd.BusCount = count
	case CategoryMotorcycle:
		vd.MotorcycleCount = count
	case CategoryEmergency:
		vd.EmergencyCount = count
	}
}

// SetSpeed applies a per-category speed, keeping the map entry and the
// matching scalar alias in step.
func (vd *VehicleData) SetSpeed(category string, speed float64) {
	vd.SpeedsByType[category] = speed
	switch category {
	case CategoryCar:
		vd.CarSpeed = speed
	case CategoryTruck:
		vd.TruckSpeed = speed
	case CategoryBus:
		vd.BusSpeed = speed
	case CategoryMotorcycle:
		vd.MotorcycleSpeed = speed
	}
}

// Snapshot is a deep copy of the full crossing state, safe to serialize
// and hand to broadcast or persistence without further locking.
type Snapshot struct {
	Lights      map[string]SignalState `json:"lights"`
	TrafficFlow FlowDirective          `json:"trafficFlow"`
	VehicleData VehicleData            `json:"vehicleData"`
}

// Broadcaster fans a full-state event out to all connected observers.
// Implemented by the WebSocket hub; components call it after each
// successful mutation with a reason tag naming the cause.
type Broadcaster interface {
	Broadcast(reason string)
}
