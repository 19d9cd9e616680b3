package state

import (
	"fmt"
	"sync"
)

// Saver receives a snapshot after every successful mutation. The store
// invokes it on a detached goroutine so persistence never blocks a
// command path. Implementations log their own failures.
type Saver interface {
	Save(reason string, snap Snapshot)
}

// Store owns the live crossing state: both SignalState records, the
// FlowDirective, and the VehicleData snapshot. One mutex is the single
// cooperative scheduling domain; every mutation runs inside Update and
// every read takes a deep-copied Snapshot. No component holds a pointer
// into the store's records outside an Update callback.
type Store struct {
	mu      sync.Mutex
	signals map[string]*SignalState
	ids     []string // stable iteration order, as configured
	flow    FlowDirective
	vehicle VehicleData
	saver   Saver
}

// NewStore creates a store from the two configured signals. Phases
// default to red, flow to automatic/inbound.
func NewStore(signals []SignalState) (*Store, error) {
	if len(signals) != signalCount {
		return nil, fmt.Errorf("%w: got %d signals, need %d", ErrInvalidSignals, len(signals), signalCount)
	}

	s := &Store{
		signals: make(map[string]*SignalState, signalCount),
		ids:     make([]string, 0, signalCount),
		flow: FlowDirective{
			Mode:             ModeAutomatic,
			CurrentDirection: DirectionInbound,
		},
		vehicle: NewVehicleData(),
	}

	for i := range signals {
		sig := signals[i]
		if _, dup := s.signals[sig.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate signal id %q", ErrInvalidSignals, sig.ID)
		}
		if sig.Phase == "" {
			sig.Phase = PhaseRed
		}
		if !sig.Phase.Valid() {
			return nil, fmt.Errorf("%w: signal %q has invalid phase %q", ErrInvalidSignals, sig.ID, sig.Phase)
		}
		s.signals[sig.ID] = &sig
		s.ids = append(s.ids, sig.ID)
	}

	return s, nil
}

// signalCount is fixed: the crossing pairs exactly two signals.
const signalCount = 2

// SetSaver attaches the persistence hook. Call before the store is
// shared across goroutines.
func (s *Store) SetSaver(saver Saver) {
	s.saver = saver
}

// SignalIDs returns the signal identifiers in configured order.
func (s *Store) SignalIDs() []string {
	return append([]string(nil), s.ids...)
}

// Tx is the mutable view handed to an Update callback. It is only
// valid for the duration of the callback.
type Tx struct {
	store *Store
}

// Signal returns the live record for id.
func (tx *Tx) Signal(id string) (*SignalState, error) {
	sig, ok := tx.store.signals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, id)
	}
	return sig, nil
}

// Paired returns the other signal of the pair.
func (tx *Tx) Paired(id string) (*SignalState, error) {
	if _, ok := tx.store.signals[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, id)
	}
	for _, other := range tx.store.ids {
		if other != id {
			return tx.store.signals[other], nil
		}
	}
	// Unreachable: NewStore guarantees two distinct ids.
	return nil, fmt.Errorf("%w: no pair for %q", ErrUnknownSignal, id)
}

// Signals returns both live records in configured order.
func (tx *Tx) Signals() []*SignalState {
	out := make([]*SignalState, 0, len(tx.store.ids))
	for _, id := range tx.store.ids {
		out = append(out, tx.store.signals[id])
	}
	return out
}

// Flow returns the live flow directive.
func (tx *Tx) Flow() *FlowDirective {
	return &tx.store.flow
}

// Vehicles returns the live telemetry snapshot.
func (tx *Tx) Vehicles() *VehicleData {
	return &tx.store.vehicle
}

// Update runs fn under the store mutex. If fn returns an error the
// mutation is considered not to have happened (fn must not partially
// mutate before failing). On success a snapshot is handed to the saver
// on a detached goroutine, tagged with reason.
func (s *Store) Update(reason string, fn func(tx *Tx) error) error {
	s.mu.Lock()
	err := fn(&Tx{store: s})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshotLocked()
	saver := s.saver
	s.mu.Unlock()

	if saver != nil {
		go saver.Save(reason, snap)
	}
	return nil
}

// Snapshot returns a deep copy of the full crossing state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Lights:      make(map[string]SignalState, len(s.signals)),
		TrafficFlow: s.flow,
		VehicleData: s.vehicle.Clone(),
	}
	for id, sig := range s.signals {
		snap.Lights[id] = *sig
	}
	return snap
}

// Restore applies a persisted snapshot at boot: signal phases and
// timestamps, the flow directive, and the telemetry snapshot. Signals
// present in snap but unknown to the store are ignored, so config
// changes between runs degrade gracefully.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, saved := range snap.Lights {
		sig, ok := s.signals[id]
		if !ok {
			continue
		}
		if saved.Phase.Valid() {
			sig.Phase = saved.Phase
			sig.LastUpdated = saved.LastUpdated
		}
	}
	if snap.TrafficFlow.Mode != "" {
		s.flow = snap.TrafficFlow
	}
	if snap.VehicleData.VehiclesByType != nil {
		restored := snap.VehicleData.Clone()
		for _, c := range CountCategories {
			if _, ok := restored.VehiclesByType[c]; !ok {
				restored.VehiclesByType[c] = 0
			}
		}
		for _, c := range SpeedCategories {
			if _, ok := restored.SpeedsByType[c]; !ok {
				restored.SpeedsByType[c] = 0
			}
		}
		s.vehicle = restored
	}
}
