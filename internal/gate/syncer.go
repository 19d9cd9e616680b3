package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mvaldr/crossing-core/internal/state"
)

// defaultPollInterval matches the remote controller's own cycle.
const defaultPollInterval = 5000 * time.Millisecond

// pushTimeout bounds one fire-and-forget patch.
const pushTimeout = 10 * time.Second

// Logger is the minimal logging interface the syncer needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// documentClient is the slice of Client the syncer uses. Narrowed for
// test doubles.
type documentClient interface {
	Fetch(ctx context.Context) (map[string]bool, error)
	Patch(ctx context.Context, field string, value bool) error
}

// Syncer reconciles local signal state with the remote gate authority.
//
// The poll loop maps the document's booleans onto phases (true is
// green, false is red) and assigns differing signals directly, with no
// amber transition: the remote value reflects a change decided by a
// separate physical controller that already completed its own
// transition. PushState mirrors confirmed local transitions back,
// fire-and-forget.
type Syncer struct {
	client      documentClient
	store       *state.Store
	broadcaster state.Broadcaster
	logger      Logger

	// fields maps signal id to the document field carrying its boolean.
	fields   map[string]string
	interval time.Duration

	// mirror is the last known or pushed remote value per signal, used
	// only to suppress redundant patches.
	mirrorMu sync.Mutex
	mirror   map[string]bool
}

// NewSyncer creates the gate syncer. fields maps each signal id to its
// document field name; a zero interval selects the 5 s default.
func NewSyncer(client documentClient, store *state.Store, broadcaster state.Broadcaster, fields map[string]string, interval time.Duration, logger Logger) *Syncer {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Syncer{
		client:      client,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		fields:      fields,
		interval:    interval,
		mirror:      make(map[string]bool, len(fields)),
	}
}

// Run polls once immediately, then on the fixed interval until ctx is
// cancelled. Fetch failures skip the cycle and are retried on the next
// tick; they are never fatal.
func (s *Syncer) Run(ctx context.Context) {
	s.poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Syncer) poll(ctx context.Context) {
	if err := s.PollOnce(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warn("gate poll skipped", "error", err)
		}
	}
}

// PollOnce fetches the document and applies external overrides. Each
// signal whose mapped phase differs from the stored one is assigned
// directly and its generation bumped, superseding any pending amber
// completion. One broadcast tagged external-sync fires if anything
// changed.
func (s *Syncer) PollOnce(ctx context.Context) error {
	values, err := s.client.Fetch(ctx)
	if err != nil {
		return err
	}

	var changed bool
	err = s.store.Update("external-sync", func(tx *state.Tx) error {
		now := time.Now()
		for signalID, field := range s.fields {
			remote, ok := values[field]
			if !ok {
				continue
			}
			sig, err := tx.Signal(signalID)
			if err != nil {
				// Field mapping points at a signal this process does
				// not own; ignore it.
				continue
			}

			want := state.PhaseRed
			if remote {
				want = state.PhaseGreen
			}
			if sig.Phase != want {
				sig.Phase = want
				sig.LastUpdated = now
				sig.Generation++
				changed = true
			}
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		err = nil
	}
	if err != nil {
		return err
	}

	s.mirrorMu.Lock()
	for signalID, field := range s.fields {
		if remote, ok := values[field]; ok {
			s.mirror[signalID] = remote
		}
	}
	s.mirrorMu.Unlock()

	if changed {
		s.broadcaster.Broadcast("external-sync")
	}
	return nil
}

// PushState mirrors one confirmed local transition to the remote
// document. It implements the controller's GatePusher: the patch runs
// detached, failures are logged only, and a value matching the mirror
// is skipped as redundant. The next poll cycle reconciles any miss.
func (s *Syncer) PushState(signalID string, green bool) {
	field, ok := s.fields[signalID]
	if !ok {
		return
	}

	s.mirrorMu.Lock()
	if current, known := s.mirror[signalID]; known && current == green {
		s.mirrorMu.Unlock()
		if s.logger != nil {
			s.logger.Debug("gate push suppressed", "signal", signalID, "green", green)
		}
		return
	}
	s.mirror[signalID] = green
	s.mirrorMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()

		if err := s.client.Patch(ctx, field, green); err != nil {
			if s.logger != nil {
				s.logger.Warn("gate push failed", "signal", signalID, "field", field, "error", err)
			}
		}
	}()
}
