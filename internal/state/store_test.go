package state

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testSignals() []SignalState {
	return []SignalState{
		{ID: "light-a", DisplayName: "Light A", PairRole: RoleA},
		{ID: "light-b", DisplayName: "Light B", PairRole: RoleB},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(testSignals())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestNewStore_Defaults(t *testing.T) {
	s := newTestStore(t)

	snap := s.Snapshot()
	if len(snap.Lights) != 2 {
		t.Fatalf("lights = %d, want 2", len(snap.Lights))
	}
	for id, sig := range snap.Lights {
		if sig.Phase != PhaseRed {
			t.Errorf("signal %s phase = %s, want red", id, sig.Phase)
		}
	}
	if snap.TrafficFlow.Mode != ModeAutomatic {
		t.Errorf("mode = %s, want automatic", snap.TrafficFlow.Mode)
	}
	if snap.TrafficFlow.CurrentDirection != DirectionInbound {
		t.Errorf("direction = %s, want inbound", snap.TrafficFlow.CurrentDirection)
	}
	for _, c := range CountCategories {
		if _, ok := snap.VehicleData.VehiclesByType[c]; !ok {
			t.Errorf("missing count category %s", c)
		}
	}
	for _, c := range SpeedCategories {
		if _, ok := snap.VehicleData.SpeedsByType[c]; !ok {
			t.Errorf("missing speed category %s", c)
		}
	}
}

func TestNewStore_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		signals []SignalState
	}{
		{"too few", testSignals()[:1]},
		{"too many", append(testSignals(), SignalState{ID: "light-c"})},
		{"duplicate id", []SignalState{{ID: "x"}, {ID: "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStore(tt.signals); !errors.Is(err, ErrInvalidSignals) {
				t.Errorf("err = %v, want ErrInvalidSignals", err)
			}
		})
	}
}

func TestUpdate_UnknownSignal(t *testing.T) {
	s := newTestStore(t)

	err := s.Update("test", func(tx *Tx) error {
		_, err := tx.Signal("light-z")
		return err
	})
	if !errors.Is(err, ErrUnknownSignal) {
		t.Errorf("err = %v, want ErrUnknownSignal", err)
	}
}

func TestUpdate_Mutation(t *testing.T) {
	s := newTestStore(t)

	err := s.Update("test", func(tx *Tx) error {
		sig, err := tx.Signal("light-a")
		if err != nil {
			return err
		}
		sig.Phase = PhaseGreen
		sig.LastUpdated = time.Now()
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap := s.Snapshot()
	if snap.Lights["light-a"].Phase != PhaseGreen {
		t.Errorf("phase = %s, want green", snap.Lights["light-a"].Phase)
	}
	if snap.Lights["light-b"].Phase != PhaseRed {
		t.Errorf("paired phase = %s, want red", snap.Lights["light-b"].Phase)
	}
}

func TestTx_Paired(t *testing.T) {
	s := newTestStore(t)

	err := s.Update("test", func(tx *Tx) error {
		pair, err := tx.Paired("light-a")
		if err != nil {
			return err
		}
		if pair.ID != "light-b" {
			t.Errorf("pair of light-a = %s, want light-b", pair.ID)
		}
		if _, err := tx.Paired("light-z"); !errors.Is(err, ErrUnknownSignal) {
			t.Errorf("unknown id: err = %v, want ErrUnknownSignal", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func TestSnapshot_DeepCopy(t *testing.T) {
	s := newTestStore(t)

	snap := s.Snapshot()
	snap.VehicleData.VehiclesByType["car"] = 99
	snap.Lights["light-a"] = SignalState{ID: "light-a", Phase: PhaseGreen}

	fresh := s.Snapshot()
	if fresh.VehicleData.VehiclesByType["car"] != 0 {
		t.Error("mutating a snapshot map leaked into the store")
	}
	if fresh.Lights["light-a"].Phase != PhaseRed {
		t.Error("mutating a snapshot signal leaked into the store")
	}
}

type recordingSaver struct {
	mu      sync.Mutex
	reasons []string
	done    chan struct{}
}

func (r *recordingSaver) Save(reason string, _ Snapshot) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func TestUpdate_InvokesSaver(t *testing.T) {
	s := newTestStore(t)
	saver := &recordingSaver{done: make(chan struct{}, 1)}
	s.SetSaver(saver)

	err := s.Update("set-green:light-a", func(tx *Tx) error { return nil })
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	select {
	case <-saver.done:
	case <-time.After(time.Second):
		t.Fatal("saver was not invoked")
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.reasons) != 1 || saver.reasons[0] != "set-green:light-a" {
		t.Errorf("saver reasons = %v", saver.reasons)
	}
}

func TestUpdate_ErrorSkipsSaver(t *testing.T) {
	s := newTestStore(t)
	saver := &recordingSaver{done: make(chan struct{}, 1)}
	s.SetSaver(saver)

	wantErr := errors.New("boom")
	if err := s.Update("x", func(tx *Tx) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	select {
	case <-saver.done:
		t.Fatal("saver invoked after failed update")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRestore(t *testing.T) {
	s := newTestStore(t)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vd := NewVehicleData()
	vd.SetCount(CategoryCar, 12)
	snap := Snapshot{
		Lights: map[string]SignalState{
			"light-a": {ID: "light-a", Phase: PhaseGreen, LastUpdated: ts},
			"light-x": {ID: "light-x", Phase: PhaseGreen, LastUpdated: ts},
		},
		TrafficFlow: FlowDirective{Mode: ModeManual, CurrentDirection: DirectionOutbound, LastChanged: ts},
		VehicleData: vd,
	}

	s.Restore(snap)

	got := s.Snapshot()
	if got.Lights["light-a"].Phase != PhaseGreen {
		t.Errorf("restored phase = %s, want green", got.Lights["light-a"].Phase)
	}
	if !got.Lights["light-a"].LastUpdated.Equal(ts) {
		t.Errorf("restored lastUpdated = %v, want %v", got.Lights["light-a"].LastUpdated, ts)
	}
	if got.Lights["light-b"].Phase != PhaseRed {
		t.Errorf("untouched signal phase = %s, want red", got.Lights["light-b"].Phase)
	}
	if got.TrafficFlow.Mode != ModeManual || got.TrafficFlow.CurrentDirection != DirectionOutbound {
		t.Errorf("restored flow = %+v", got.TrafficFlow)
	}
	if got.VehicleData.CarCount != 12 || got.VehicleData.VehiclesByType["car"] != 12 {
		t.Errorf("restored car count = %d/%d, want 12/12",
			got.VehicleData.CarCount, got.VehicleData.VehiclesByType["car"])
	}
}

func TestVehicleData_SetCountAndSpeed(t *testing.T) {
	vd := NewVehicleData()

	vd.SetCount(CategoryTruck, 7)
	if vd.TruckCount != 7 || vd.VehiclesByType["truck"] != 7 {
		t.Errorf("truck count = %d/%d, want 7/7", vd.TruckCount, vd.VehiclesByType["truck"])
	}

	vd.SetSpeed(CategoryMotorcycle, 61.5)
	if vd.MotorcycleSpeed != 61.5 || vd.SpeedsByType["motorcycle"] != 61.5 {
		t.Errorf("motorcycle speed = %v/%v, want 61.5",
			vd.MotorcycleSpeed, vd.SpeedsByType["motorcycle"])
	}
}
