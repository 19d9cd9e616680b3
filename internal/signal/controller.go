package signal

import (
	"errors"
	"fmt"
	"time"

	"github.com/mvaldr/crossing-core/internal/state"
)

// defaultAmberDelay is the minimum safe transition time between an
// announced phase change and its terminal phase.
const defaultAmberDelay = 1000 * time.Millisecond

// GatePusher mirrors confirmed local transitions to the external gate
// authority. Pushes are fire-and-forget; implementations log their own
// failures and never block the caller.
type GatePusher interface {
	PushState(signalID string, green bool)
}

// Logger is the minimal logging interface the controller needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config contains controller tuning.
type Config struct {
	// AmberDelay is the wait between the yellow announcement and the
	// terminal phase. Zero selects the 1000 ms default.
	AmberDelay time.Duration
}

// Controller encodes the legal transitions for the signal pair.
//
// Every green or red request is routed through an immediate yellow
// announcement followed by a delayed terminal step, giving observers
// two discrete broadcast milestones. Completions are scheduled through
// an injectable timer and carry the target signal's generation captured
// at schedule time; a completion whose generation no longer matches is
// a no-op, so the last command always wins.
type Controller struct {
	store       *state.Store
	broadcaster state.Broadcaster
	gate        GatePusher
	logger      Logger
	amberDelay  time.Duration

	// after schedules a deferred completion. Swapped in tests.
	after func(d time.Duration, fn func())
}

// NewController creates the signal controller. broadcaster is required;
// gate may be nil when external sync is disabled.
func NewController(store *state.Store, broadcaster state.Broadcaster, gate GatePusher, cfg Config, logger Logger) *Controller {
	delay := cfg.AmberDelay
	if delay <= 0 {
		delay = defaultAmberDelay
	}
	return &Controller{
		store:       store,
		broadcaster: broadcaster,
		gate:        gate,
		logger:      logger,
		amberDelay:  delay,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// SetGreen announces yellow on the target signal (and on the paired
// signal if it currently shows green), then after the amber delay
// completes to green with the pair forced to red. A signal already
// green is left untouched.
func (c *Controller) SetGreen(id string) error {
	var (
		gen     uint64
		changed bool
	)

	err := c.store.Update("set-green:"+id, func(tx *state.Tx) error {
		sig, err := tx.Signal(id)
		if err != nil {
			return err
		}
		if sig.Phase == state.PhaseGreen {
			return nil
		}

		now := time.Now()
		sig.Phase = state.PhaseYellow
		sig.LastUpdated = now
		sig.Generation++
		gen = sig.Generation

		pair, err := tx.Paired(id)
		if err != nil {
			return err
		}
		if pair.Phase == state.PhaseGreen {
			pair.Phase = state.PhaseYellow
			pair.LastUpdated = now
			pair.Generation++
		}

		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	c.broadcaster.Broadcast("set-green:" + id)
	c.after(c.amberDelay, func() { c.completeGreen(id, gen) })
	return nil
}

// completeGreen is the delayed terminal step of SetGreen.
func (c *Controller) completeGreen(id string, gen uint64) {
	var pairID string

	err := c.store.Update("green-complete:"+id, func(tx *state.Tx) error {
		sig, err := tx.Signal(id)
		if err != nil {
			return err
		}
		if sig.Generation != gen {
			return errSuperseded
		}

		now := time.Now()
		sig.Phase = state.PhaseGreen
		sig.LastUpdated = now

		pair, err := tx.Paired(id)
		if err != nil {
			return err
		}
		pairID = pair.ID
		if pair.Phase != state.PhaseRed {
			pair.Phase = state.PhaseRed
			pair.LastUpdated = now
		}
		return nil
	})
	if err != nil {
		c.logCompletionSkip("green", id, err)
		return
	}

	c.broadcaster.Broadcast("green-complete:" + id)
	c.pushGate(id, true)
	c.pushGate(pairID, false)
}

// SetRed announces yellow then completes to red after the amber delay.
// A signal already red is left untouched, so repeated red commands do
// not oscillate the phase.
func (c *Controller) SetRed(id string) error {
	var (
		gen     uint64
		changed bool
	)

	err := c.store.Update("set-red:"+id, func(tx *state.Tx) error {
		sig, err := tx.Signal(id)
		if err != nil {
			return err
		}
		if sig.Phase == state.PhaseRed {
			return nil
		}

		sig.Phase = state.PhaseYellow
		sig.LastUpdated = time.Now()
		sig.Generation++
		gen = sig.Generation
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	c.broadcaster.Broadcast("set-red:" + id)
	c.after(c.amberDelay, func() { c.completeRed(id, gen) })
	return nil
}

// completeRed is the delayed terminal step of SetRed.
func (c *Controller) completeRed(id string, gen uint64) {
	err := c.store.Update("red-complete:"+id, func(tx *state.Tx) error {
		sig, err := tx.Signal(id)
		if err != nil {
			return err
		}
		if sig.Generation != gen {
			return errSuperseded
		}
		sig.Phase = state.PhaseRed
		sig.LastUpdated = time.Now()
		return nil
	})
	if err != nil {
		c.logCompletionSkip("red", id, err)
		return
	}

	c.broadcaster.Broadcast("red-complete:" + id)
	c.pushGate(id, false)
}

// SetYellow holds the signal at yellow with no scheduled completion and
// no external push. The generation bump supersedes any pending
// completion, so the signal stays yellow until the next command.
func (c *Controller) SetYellow(id string) error {
	err := c.store.Update("set-yellow:"+id, func(tx *state.Tx) error {
		sig, err := tx.Signal(id)
		if err != nil {
			return err
		}
		sig.Phase = state.PhaseYellow
		sig.LastUpdated = time.Now()
		sig.Generation++
		return nil
	})
	if err != nil {
		return err
	}

	c.broadcaster.Broadcast("set-yellow:" + id)
	return nil
}

// Toggle dispatches on the current phase: green behaves like SetRed,
// red behaves like SetGreen, and yellow drops straight to red with no
// amber delay and an immediate external push.
func (c *Controller) Toggle(id string) error {
	snap := c.store.Snapshot()
	sig, ok := snap.Lights[id]
	if !ok {
		return fmt.Errorf("%w: %q", state.ErrUnknownSignal, id)
	}

	switch sig.Phase {
	case state.PhaseGreen:
		return c.SetRed(id)
	case state.PhaseRed:
		return c.SetGreen(id)
	case state.PhaseYellow:
		return c.toggleFromYellow(id)
	}
	return fmt.Errorf("%w: %q", ErrInvalidPhase, sig.Phase)
}

// toggleFromYellow resolves a held yellow directly to red.
func (c *Controller) toggleFromYellow(id string) error {
	err := c.store.Update("toggle:"+id, func(tx *state.Tx) error {
		sig, err := tx.Signal(id)
		if err != nil {
			return err
		}
		sig.Phase = state.PhaseRed
		sig.LastUpdated = time.Now()
		sig.Generation++
		return nil
	})
	if err != nil {
		return err
	}

	c.broadcaster.Broadcast("toggle:" + id)
	c.pushGate(id, false)
	return nil
}

// SetFlow updates the flow directive. mode and direction are each
// optional; empty means unchanged. A direction change announces yellow
// on both signals, then after the amber delay drives both green at
// once. Simultaneous green is intended here: direction control reflects
// lane-level clearance, not the single-lane exclusivity the per-signal
// commands enforce.
func (c *Controller) SetFlow(mode state.FlowMode, direction state.FlowDirection) error {
	if mode != "" && mode != state.ModeAutomatic && mode != state.ModeManual {
		return fmt.Errorf("%w: mode %q", ErrInvalidFlow, mode)
	}
	if direction != "" && direction != state.DirectionInbound && direction != state.DirectionOutbound {
		return fmt.Errorf("%w: direction %q", ErrInvalidFlow, direction)
	}
	if mode == "" && direction == "" {
		return fmt.Errorf("%w: no mode or direction given", ErrInvalidFlow)
	}

	gens := make(map[string]uint64, 2)

	reason := "flow-mode:" + string(mode)
	if direction != "" {
		reason = "flow-change:" + string(direction)
	}

	err := c.store.Update(reason, func(tx *state.Tx) error {
		flow := tx.Flow()
		if mode != "" {
			flow.Mode = mode
		}
		if direction == "" {
			return nil
		}

		now := time.Now()
		flow.CurrentDirection = direction
		flow.LastChanged = now

		for _, sig := range tx.Signals() {
			sig.Phase = state.PhaseYellow
			sig.LastUpdated = now
			sig.Generation++
			gens[sig.ID] = sig.Generation
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.broadcaster.Broadcast(reason)

	if direction != "" {
		c.after(c.amberDelay, func() { c.completeFlow(direction, gens) })
	}
	return nil
}

// completeFlow drives every signal whose generation still matches to
// green and pushes the gate booleans.
func (c *Controller) completeFlow(direction state.FlowDirection, gens map[string]uint64) {
	var completed []string

	err := c.store.Update("flow-complete:"+string(direction), func(tx *state.Tx) error {
		now := time.Now()
		for _, sig := range tx.Signals() {
			if sig.Generation != gens[sig.ID] {
				continue
			}
			sig.Phase = state.PhaseGreen
			sig.LastUpdated = now
			completed = append(completed, sig.ID)
		}
		if len(completed) == 0 {
			return errSuperseded
		}
		return nil
	})
	if err != nil {
		c.logCompletionSkip("flow", string(direction), err)
		return
	}

	c.broadcaster.Broadcast("flow-complete:" + string(direction))
	for _, id := range completed {
		c.pushGate(id, true)
	}
}

// EmergencyStop unconditionally announces yellow on both signals and,
// after the amber delay, drops both to red. No phase checks; the full
// two-step sequence always runs.
func (c *Controller) EmergencyStop() error {
	gens := make(map[string]uint64, 2)

	err := c.store.Update("emergency-stop", func(tx *state.Tx) error {
		now := time.Now()
		for _, sig := range tx.Signals() {
			sig.Phase = state.PhaseYellow
			sig.LastUpdated = now
			sig.Generation++
			gens[sig.ID] = sig.Generation
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.broadcaster.Broadcast("emergency-stop")
	c.after(c.amberDelay, func() { c.completeEmergencyStop(gens) })
	return nil
}

// completeEmergencyStop drops every signal whose generation still
// matches to red.
func (c *Controller) completeEmergencyStop(gens map[string]uint64) {
	var completed []string

	err := c.store.Update("emergency-stop-complete", func(tx *state.Tx) error {
		now := time.Now()
		for _, sig := range tx.Signals() {
			if sig.Generation != gens[sig.ID] {
				continue
			}
			sig.Phase = state.PhaseRed
			sig.LastUpdated = now
			completed = append(completed, sig.ID)
		}
		if len(completed) == 0 {
			return errSuperseded
		}
		return nil
	})
	if err != nil {
		c.logCompletionSkip("emergency-stop", "", err)
		return
	}

	c.broadcaster.Broadcast("emergency-stop-complete")
	for _, id := range completed {
		c.pushGate(id, false)
	}
}

// pushGate mirrors one boolean to the external authority, if wired.
func (c *Controller) pushGate(id string, green bool) {
	if c.gate == nil || id == "" {
		return
	}
	c.gate.PushState(id, green)
}

// logCompletionSkip records a completion that did not apply. Superseded
// completions are expected under rapid command sequences and logged at
// debug; anything else is a warning.
func (c *Controller) logCompletionSkip(kind, id string, err error) {
	if c.logger == nil {
		return
	}
	if errors.Is(err, errSuperseded) {
		c.logger.Debug("completion superseded", "kind", kind, "signal", id)
		return
	}
	c.logger.Warn("completion failed", "kind", kind, "signal", id, "error", err)
}
