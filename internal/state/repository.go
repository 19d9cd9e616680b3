package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mvaldr/crossing-core/internal/infrastructure/database"
)

// saveTimeout bounds a single snapshot write.
const saveTimeout = 5 * time.Second

// repoLogger is the minimal logging interface the repository needs.
type repoLogger interface {
	Error(msg string, args ...any)
}

// Repository persists the current and most recent snapshot to SQLite.
// Only two rows ever exist, in the 'current' and 'previous' slots; each
// Save shifts current to previous and writes the new current. It
// implements Saver, so Save logs failures instead of returning them.
type Repository struct {
	db         *database.DB
	crossingID string
	logger     repoLogger

	// Serializes writes so detached Save goroutines cannot interleave
	// the slot shift.
	mu sync.Mutex
}

// NewRepository creates a snapshot repository for one crossing.
func NewRepository(db *database.DB, crossingID string, logger repoLogger) *Repository {
	return &Repository{
		db:         db,
		crossingID: crossingID,
		logger:     logger,
	}
}

// Save implements Saver. Failures are logged and dropped; persistence
// is best-effort and never blocks or fails a command path.
func (r *Repository) Save(reason string, snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := r.SaveSnapshot(ctx, reason, snap); err != nil {
		if r.logger != nil {
			r.logger.Error("persisting snapshot failed", "reason", reason, "error", err)
		}
	}
}

// SaveSnapshot writes snap as the current row, demoting the prior
// current row to the previous slot.
func (r *Repository) SaveSnapshot(ctx context.Context, reason string, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM crossing_snapshots WHERE slot = 'previous'",
	); err != nil {
		return fmt.Errorf("clearing previous slot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE crossing_snapshots SET slot = 'previous' WHERE slot = 'current'",
	); err != nil {
		return fmt.Errorf("demoting current slot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crossing_snapshots (slot, crossing_id, reason, snapshot, recorded_at)
		VALUES ('current', ?, ?, ?, ?)`,
		r.crossingID,
		reason,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// StoredSnapshot is a persisted snapshot row.
type StoredSnapshot struct {
	Reason     string
	Snapshot   Snapshot
	RecordedAt time.Time
}

// LoadCurrent returns the current snapshot row, or ErrNoSnapshot if
// none has been persisted yet.
func (r *Repository) LoadCurrent(ctx context.Context) (*StoredSnapshot, error) {
	return r.loadSlot(ctx, "current")
}

// LoadPrevious returns the most recent snapshot before the current one,
// or ErrNoSnapshot.
func (r *Repository) LoadPrevious(ctx context.Context) (*StoredSnapshot, error) {
	return r.loadSlot(ctx, "previous")
}

func (r *Repository) loadSlot(ctx context.Context, slot string) (*StoredSnapshot, error) {
	var (
		reason     string
		payload    string
		recordedAt string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT reason, snapshot, recorded_at
		FROM crossing_snapshots
		WHERE slot = ?`,
		slot,
	).Scan(&reason, &payload, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s snapshot: %w", slot, err)
	}

	stored := &StoredSnapshot{Reason: reason}
	if err := json.Unmarshal([]byte(payload), &stored.Snapshot); err != nil {
		return nil, fmt.Errorf("decoding %s snapshot: %w", slot, err)
	}
	stored.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt) //nolint:errcheck // Format is controlled
	return stored, nil
}
