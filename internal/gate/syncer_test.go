package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mvaldr/crossing-core/internal/state"
)

type patchCall struct {
	field string
	value bool
}

type fakeDocument struct {
	mu       sync.Mutex
	values   map[string]bool
	fetchErr error
	patchErr error
	patches  chan patchCall
}

func newFakeDocument() *fakeDocument {
	return &fakeDocument{
		values:  make(map[string]bool),
		patches: make(chan patchCall, 8),
	}
}

func (f *fakeDocument) Fetch(context.Context) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[string]bool, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDocument) Patch(_ context.Context, field string, value bool) error {
	f.mu.Lock()
	err := f.patchErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.patches <- patchCall{field: field, value: value}
	return nil
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	reasons []string
}

func (b *recordingBroadcaster) Broadcast(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reasons = append(b.reasons, reason)
}

func (b *recordingBroadcaster) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.reasons...)
}

var testFields = map[string]string{
	"light-a": "light1",
	"light-b": "light2",
}

func newTestSyncer(t *testing.T) (*Syncer, *fakeDocument, *state.Store, *recordingBroadcaster) {
	t.Helper()

	store, err := state.NewStore([]state.SignalState{
		{ID: "light-a", PairRole: state.RoleA},
		{ID: "light-b", PairRole: state.RoleB},
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	doc := newFakeDocument()
	bcast := &recordingBroadcaster{}
	return NewSyncer(doc, store, bcast, testFields, time.Second, nil), doc, store, bcast
}

func TestPollOnce_DirectAssign(t *testing.T) {
	s, doc, store, bcast := newTestSyncer(t)
	doc.values = map[string]bool{"light1": true, "light2": false}

	if err := s.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	snap := store.Snapshot()
	if got := snap.Lights["light-a"].Phase; got != state.PhaseGreen {
		t.Errorf("light-a = %s, want green (direct, no amber)", got)
	}
	if got := snap.Lights["light-b"].Phase; got != state.PhaseRed {
		t.Errorf("light-b = %s, want red", got)
	}
	if snap.Lights["light-a"].LastUpdated.IsZero() {
		t.Error("lastUpdated not touched")
	}

	reasons := bcast.all()
	if len(reasons) != 1 || reasons[0] != "external-sync" {
		t.Errorf("broadcasts = %v, want one external-sync", reasons)
	}
}

func TestPollOnce_NoChangeNoBroadcast(t *testing.T) {
	s, doc, _, bcast := newTestSyncer(t)
	doc.values = map[string]bool{"light1": false, "light2": false}

	if err := s.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	if reasons := bcast.all(); len(reasons) != 0 {
		t.Errorf("broadcasts = %v, want none", reasons)
	}
}

func TestPollOnce_FetchFailureSkipsCycle(t *testing.T) {
	s, doc, store, bcast := newTestSyncer(t)
	doc.fetchErr = ErrRemoteUnavailable

	if err := s.PollOnce(context.Background()); !errors.Is(err, ErrRemoteUnavailable) {
		t.Errorf("err = %v, want ErrRemoteUnavailable", err)
	}

	snap := store.Snapshot()
	if snap.Lights["light-a"].Phase != state.PhaseRed || snap.Lights["light-b"].Phase != state.PhaseRed {
		t.Error("a failed fetch mutated state")
	}
	if reasons := bcast.all(); len(reasons) != 0 {
		t.Errorf("broadcasts after failed fetch: %v", reasons)
	}
}

func TestPollOnce_BumpsGeneration(t *testing.T) {
	s, doc, store, _ := newTestSyncer(t)
	doc.values = map[string]bool{"light1": true}

	before := store.Snapshot().Lights["light-a"].Generation
	if err := s.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	after := store.Snapshot().Lights["light-a"].Generation
	if after != before+1 {
		t.Errorf("generation = %d, want %d (external assign must supersede pending completions)",
			after, before+1)
	}
}

func TestPushState_PatchesRemote(t *testing.T) {
	s, doc, _, _ := newTestSyncer(t)

	s.PushState("light-a", true)

	select {
	case p := <-doc.patches:
		if p.field != "light1" || p.value != true {
			t.Errorf("patch = %+v, want light1=true", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no patch arrived")
	}
}

func TestPushState_SuppressesRedundantWrites(t *testing.T) {
	s, doc, _, _ := newTestSyncer(t)

	s.PushState("light-a", true)
	select {
	case <-doc.patches:
	case <-time.After(time.Second):
		t.Fatal("first patch did not arrive")
	}

	s.PushState("light-a", true)
	select {
	case p := <-doc.patches:
		t.Errorf("redundant push patched remote: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}

	// A changed value goes through again.
	s.PushState("light-a", false)
	select {
	case p := <-doc.patches:
		if p.field != "light1" || p.value != false {
			t.Errorf("patch = %+v, want light1=false", p)
		}
	case <-time.After(time.Second):
		t.Fatal("changed-value patch did not arrive")
	}
}

func TestPushState_MirrorSeededByPoll(t *testing.T) {
	s, doc, _, _ := newTestSyncer(t)
	doc.values = map[string]bool{"light1": true, "light2": false}

	if err := s.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	// The poll recorded light1=true, so pushing true again is redundant.
	s.PushState("light-a", true)
	select {
	case p := <-doc.patches:
		t.Errorf("push after matching poll patched remote: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushState_UnknownSignalIgnored(t *testing.T) {
	s, doc, _, _ := newTestSyncer(t)

	s.PushState("light-z", true)
	select {
	case p := <-doc.patches:
		t.Errorf("unknown signal patched remote: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushState_FailureIsSilent(t *testing.T) {
	s, doc, _, _ := newTestSyncer(t)
	doc.patchErr = ErrRemoteUnavailable

	// Must not panic or block the caller.
	s.PushState("light-a", true)
	time.Sleep(20 * time.Millisecond)
}

func TestRun_PollsImmediately(t *testing.T) {
	s, doc, store, _ := newTestSyncer(t)
	doc.values = map[string]bool{"light1": true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if store.Snapshot().Lights["light-a"].Phase == state.PhaseGreen {
			break
		}
		select {
		case <-deadline:
			t.Fatal("startup poll did not apply")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
