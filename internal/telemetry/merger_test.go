package telemetry

import (
	"errors"
	"testing"

	"github.com/mvaldr/crossing-core/internal/state"
)

type recordingBroadcaster struct {
	reasons []string
}

func (b *recordingBroadcaster) Broadcast(reason string) {
	b.reasons = append(b.reasons, reason)
}

func newTestMerger(t *testing.T) (*Merger, *state.Store, *recordingBroadcaster) {
	t.Helper()

	store, err := state.NewStore([]state.SignalState{
		{ID: "light-a", PairRole: state.RoleA},
		{ID: "light-b", PairRole: state.RoleB},
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	bcast := &recordingBroadcaster{}
	return NewMerger(store, bcast, nil, nil, "crossing-1"), store, bcast
}

func TestApplyMain_FieldwiseMerge(t *testing.T) {
	m, store, bcast := newTestMerger(t)

	// Seed values that the next message must not disturb.
	seed := `{"truck_count": 4, "vehicles_waiting": 9}`
	if err := m.ApplyMain([]byte(seed)); err != nil {
		t.Fatalf("seed ApplyMain failed: %v", err)
	}

	msg := `{
		"car_count": 12,
		"cspeed": 48.5,
		"vehicles_per_minute": 7.2,
		"anomalies": ["wrong-way"],
		"total_vehicles_counted": 120
	}`
	if err := m.ApplyMain([]byte(msg)); err != nil {
		t.Fatalf("ApplyMain failed: %v", err)
	}

	vd := store.Snapshot().VehicleData
	if vd.CarCount != 12 || vd.VehiclesByType["car"] != 12 {
		t.Errorf("car count = %d/%d, want 12", vd.CarCount, vd.VehiclesByType["car"])
	}
	if vd.CarSpeed != 48.5 || vd.SpeedsByType["car"] != 48.5 {
		t.Errorf("car speed = %v/%v, want 48.5", vd.CarSpeed, vd.SpeedsByType["car"])
	}
	if vd.TruckCount != 4 {
		t.Errorf("truck count = %d, want 4 (absent key must keep prior value)", vd.TruckCount)
	}
	if vd.VehiclesWaiting != 9 {
		t.Errorf("vehicles waiting = %d, want 9 (absent key must keep prior value)", vd.VehiclesWaiting)
	}
	if vd.VehiclesPerMinute != 7.2 {
		t.Errorf("vehicles per minute = %v, want 7.2", vd.VehiclesPerMinute)
	}
	if len(vd.Anomalies) != 1 || vd.Anomalies[0] != "wrong-way" {
		t.Errorf("anomalies = %v", vd.Anomalies)
	}
	if vd.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if bcast.reasons[len(bcast.reasons)-1] != "telemetry:main" {
		t.Errorf("broadcast = %q, want telemetry:main", bcast.reasons[len(bcast.reasons)-1])
	}
}

func TestApplyMain_ZeroValuesApply(t *testing.T) {
	m, store, _ := newTestMerger(t)

	if err := m.ApplyMain([]byte(`{"car_count": 5}`)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	// On the base topic presence decides, so an explicit zero applies.
	if err := m.ApplyMain([]byte(`{"car_count": 0}`)); err != nil {
		t.Fatalf("ApplyMain failed: %v", err)
	}

	if got := store.Snapshot().VehicleData.CarCount; got != 0 {
		t.Errorf("car count = %d, want 0", got)
	}
}

func TestApplyMain_VehiclesByTypeMap(t *testing.T) {
	m, store, _ := newTestMerger(t)

	msg := `{"vehicles_by_type": {"bus": 3, "emergency": 1, "unicycle": 9}}`
	if err := m.ApplyMain([]byte(msg)); err != nil {
		t.Fatalf("ApplyMain failed: %v", err)
	}

	vd := store.Snapshot().VehicleData
	if vd.BusCount != 3 || vd.VehiclesByType["bus"] != 3 {
		t.Errorf("bus = %d/%d, want 3", vd.BusCount, vd.VehiclesByType["bus"])
	}
	if vd.EmergencyCount != 1 {
		t.Errorf("emergency = %d, want 1", vd.EmergencyCount)
	}
	if _, ok := vd.VehiclesByType["unicycle"]; ok {
		t.Error("unknown category leaked into the snapshot")
	}
	if len(vd.VehiclesByType) != len(state.CountCategories) {
		t.Errorf("category keys = %d, want %d", len(vd.VehiclesByType), len(state.CountCategories))
	}
}

func TestApplyLightControl_TruthyReplace(t *testing.T) {
	m, store, _ := newTestMerger(t)

	if err := m.ApplyLightControl([]byte(`{"green_light_duration": 30, "vehicles_waiting": 5, "priority_vehicles": 2}`)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Zero and missing both leave prior values.
	if err := m.ApplyLightControl([]byte(`{"vehicles_waiting": 0, "priority_vehicles": 3}`)); err != nil {
		t.Fatalf("ApplyLightControl failed: %v", err)
	}

	vd := store.Snapshot().VehicleData
	if vd.GreenLightDuration != 30 {
		t.Errorf("green duration = %d, want 30 (missing keeps prior)", vd.GreenLightDuration)
	}
	if vd.VehiclesWaiting != 5 {
		t.Errorf("vehicles waiting = %d, want 5 (zero keeps prior)", vd.VehiclesWaiting)
	}
	if vd.PriorityVehicles != 3 {
		t.Errorf("priority = %d, want 3", vd.PriorityVehicles)
	}
}

func TestApplySpeeds_TruthyReplace(t *testing.T) {
	m, store, _ := newTestMerger(t)

	if err := m.ApplySpeeds([]byte(`{"bspeed": 40, "cspeed": 55, "mspeed": 62, "tspeed": 45}`)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := m.ApplySpeeds([]byte(`{"cspeed": 50, "tspeed": 0}`)); err != nil {
		t.Fatalf("ApplySpeeds failed: %v", err)
	}

	vd := store.Snapshot().VehicleData
	if vd.CarSpeed != 50 {
		t.Errorf("cspeed = %v, want 50", vd.CarSpeed)
	}
	if vd.TruckSpeed != 45 {
		t.Errorf("tspeed = %v, want 45 (zero keeps prior)", vd.TruckSpeed)
	}
	if vd.BusSpeed != 40 || vd.MotorcycleSpeed != 62 {
		t.Errorf("untouched speeds changed: bus=%v motorcycle=%v", vd.BusSpeed, vd.MotorcycleSpeed)
	}
	if vd.SpeedsByType["car"] != 50 {
		t.Errorf("speed map not mirrored: %v", vd.SpeedsByType)
	}
}

func TestApplyPerType_TruckIsolation(t *testing.T) {
	m, store, bcast := newTestMerger(t)

	before := store.Snapshot().VehicleData

	if err := m.ApplyPerType("truck", []byte(`{"count": 7}`)); err != nil {
		t.Fatalf("ApplyPerType failed: %v", err)
	}

	vd := store.Snapshot().VehicleData
	if vd.TruckCount != 7 || vd.VehiclesByType["truck"] != 7 {
		t.Errorf("truck = %d/%d, want 7", vd.TruckCount, vd.VehiclesByType["truck"])
	}

	// Everything except the truck fields and timestamp is unchanged.
	if vd.CarCount != before.CarCount || vd.BusCount != before.BusCount ||
		vd.MotorcycleCount != before.MotorcycleCount || vd.EmergencyCount != before.EmergencyCount {
		t.Error("other counts changed by a truck merge")
	}
	if vd.VehiclesWaiting != before.VehiclesWaiting || vd.CarSpeed != before.CarSpeed {
		t.Error("unrelated fields changed by a truck merge")
	}
	if vd.Timestamp.IsZero() {
		t.Error("timestamp not updated")
	}
	if bcast.reasons[len(bcast.reasons)-1] != "telemetry:truck" {
		t.Errorf("broadcast = %q, want telemetry:truck", bcast.reasons[len(bcast.reasons)-1])
	}
}

func TestApplyPerType_ZeroCountApplies(t *testing.T) {
	m, store, _ := newTestMerger(t)

	if err := m.ApplyPerType("car", []byte(`{"count": 4}`)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := m.ApplyPerType("car", []byte(`{"count": 0}`)); err != nil {
		t.Fatalf("ApplyPerType failed: %v", err)
	}

	if got := store.Snapshot().VehicleData.CarCount; got != 0 {
		t.Errorf("car count = %d, want 0 (presence decides on per-type topics)", got)
	}
}

func TestApplyPerType_MissingCountIsNoop(t *testing.T) {
	m, store, bcast := newTestMerger(t)

	if err := m.ApplyPerType("car", []byte(`{"count": 4}`)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	broadcasts := len(bcast.reasons)

	if err := m.ApplyPerType("car", []byte(`{"speed": 50}`)); err != nil {
		t.Fatalf("ApplyPerType failed: %v", err)
	}

	if got := store.Snapshot().VehicleData.CarCount; got != 4 {
		t.Errorf("car count = %d, want 4", got)
	}
	if len(bcast.reasons) != broadcasts {
		t.Error("no-op merge broadcast an event")
	}
}

func TestMalformedPayload_DroppedAndStateRetained(t *testing.T) {
	m, store, bcast := newTestMerger(t)

	if err := m.ApplyMain([]byte(`{"car_count": 3}`)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	broadcasts := len(bcast.reasons)

	apply := map[string]func([]byte) error{
		"main":          m.ApplyMain,
		"light_control": m.ApplyLightControl,
		"speeds":        m.ApplySpeeds,
		"per_type":      func(p []byte) error { return m.ApplyPerType("car", p) },
	}

	for name, fn := range apply {
		t.Run(name, func(t *testing.T) {
			if err := fn([]byte(`{not json`)); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("err = %v, want ErrMalformedPayload", err)
			}
		})
	}

	if got := store.Snapshot().VehicleData.CarCount; got != 3 {
		t.Errorf("car count = %d, want 3 (prior state retained)", got)
	}
	if len(bcast.reasons) != broadcasts {
		t.Error("malformed payloads triggered broadcasts")
	}
}

func TestApplySub_Dispatch(t *testing.T) {
	m, store, _ := newTestMerger(t)

	if err := m.ApplySub("traffic_light", []byte(`{"vehicles_waiting": 6}`)); err != nil {
		t.Fatalf("traffic_light dispatch failed: %v", err)
	}
	if err := m.ApplySub("speeds", []byte(`{"bspeed": 38}`)); err != nil {
		t.Fatalf("speeds dispatch failed: %v", err)
	}
	if err := m.ApplySub("emergency", []byte(`{"count": 2}`)); err != nil {
		t.Fatalf("emergency dispatch failed: %v", err)
	}
	if err := m.ApplySub("pigeons", []byte(`{}`)); !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("unknown sub-topic: err = %v, want ErrUnknownTopic", err)
	}

	vd := store.Snapshot().VehicleData
	if vd.VehiclesWaiting != 6 || vd.BusSpeed != 38 || vd.EmergencyCount != 2 {
		t.Errorf("dispatch results: waiting=%d bspeed=%v emergency=%d",
			vd.VehiclesWaiting, vd.BusSpeed, vd.EmergencyCount)
	}
}

func TestTopicLeaf(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"crossing/vehicles/truck", "truck"},
		{"crossing/vehicles", "vehicles"},
		{"speeds", "speeds"},
	}
	for _, tt := range tests {
		if got := topicLeaf(tt.topic); got != tt.want {
			t.Errorf("topicLeaf(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

type metricsCall struct {
	kind string
}

type recordingMetrics struct {
	calls []metricsCall
}

func (r *recordingMetrics) WriteVehicleCounts(string, map[string]int, int, int) {
	r.calls = append(r.calls, metricsCall{"counts"})
}

func (r *recordingMetrics) WriteSpeeds(string, float64, float64, float64, float64) {
	r.calls = append(r.calls, metricsCall{"speeds"})
}

func (r *recordingMetrics) WriteFlowRate(string, float64, int, int) {
	r.calls = append(r.calls, metricsCall{"flow"})
}

func TestMetricsExportedAfterMerge(t *testing.T) {
	store, err := state.NewStore([]state.SignalState{
		{ID: "light-a", PairRole: state.RoleA},
		{ID: "light-b", PairRole: state.RoleB},
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	metrics := &recordingMetrics{}
	m := NewMerger(store, &recordingBroadcaster{}, metrics, nil, "crossing-1")

	if err := m.ApplyMain([]byte(`{"car_count": 1}`)); err != nil {
		t.Fatalf("ApplyMain failed: %v", err)
	}

	if len(metrics.calls) != 3 {
		t.Errorf("metrics calls = %v, want counts+speeds+flow", metrics.calls)
	}

	// Malformed payloads export nothing.
	metrics.calls = nil
	_ = m.ApplyMain([]byte(`nope`))
	if len(metrics.calls) != 0 {
		t.Errorf("metrics exported for a dropped payload: %v", metrics.calls)
	}
}
