package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avelis/readthis/internal/queue"
	"github.com/avelis/readthis/internal/remote"
)

// fakeStore is a scriptable in-memory remote. By default every upsert
// applies; individual targets can be made to conflict or fail.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]remote.Status
	conflicts map[string]bool  // upsert reports conflict, update path works
	failWith  map[string]error // upsert fails with this error
	updates   map[string]error // update fails with this error
	block     bool             // block every call until ctx is done
	onUpsert  func(target string)
	upserts   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:      make(map[string]remote.Status),
		conflicts: make(map[string]bool),
		failWith:  make(map[string]error),
		updates:   make(map[string]error),
	}
}

func (s *fakeStore) Upsert(ctx context.Context, link remote.NewLink) (remote.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.block {
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		return 0, fmt.Errorf("%w: %w", remote.ErrUnavailable, ctx.Err())
	}

	s.upserts = append(s.upserts, link.Target)
	if s.onUpsert != nil {
		s.onUpsert(link.Target)
	}
	if err := s.failWith[link.Target]; err != nil {
		return 0, err
	}
	if s.conflicts[link.Target] {
		return remote.UpsertConflict, nil
	}
	s.rows[link.Target] = link.Status
	return remote.UpsertApplied, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, target string, status remote.Status) (remote.UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updates[target]; err != nil {
		return 0, err
	}
	if _, ok := s.rows[target]; !ok && s.conflicts[target] {
		// Conflicting rows exist remotely by definition.
		s.rows[target] = status
		return remote.UpdateApplied, nil
	}
	if _, ok := s.rows[target]; !ok {
		return remote.UpdateNotFound, nil
	}
	s.rows[target] = status
	return remote.UpdateApplied, nil
}

func (s *fakeStore) Query(ctx context.Context, q remote.Query) ([]remote.Link, error) {
	return nil, nil
}

func openTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.Open(":memory:")
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func enqueue(t *testing.T, q *queue.Queue, target string, desired remote.Status) {
	t.Helper()
	if _, err := q.Enqueue(target, desired, "test"); err != nil {
		t.Fatalf("Enqueue(%s): %v", target, err)
	}
}

// TestDrainToEmpty: with a reachable store, every queued intent is applied
// and removed.
func TestDrainToEmpty(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	rec := &Reconciler{Store: store}

	targets := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	for _, tgt := range targets {
		enqueue(t, q, tgt, remote.StatusUnread)
	}

	res := rec.Drain(context.Background(), q, time.Second)

	if len(res.Applied) != 3 || len(res.Failed) != 0 || res.TimedOut {
		t.Fatalf("Result = %+v", res)
	}
	if n, _ := q.Size(); n != 0 {
		t.Errorf("queue size = %d, want 0", n)
	}
	// Capture order preserved within the drain.
	for i, tgt := range targets {
		if store.upserts[i] != tgt {
			t.Errorf("upserts[%d] = %s, want %s", i, store.upserts[i], tgt)
		}
	}
}

// TestLastWriteWinsScenario: save then mark read on the same target leaves
// one intent, and draining lands status read remotely.
func TestLastWriteWinsScenario(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	rec := &Reconciler{Store: store}

	enqueue(t, q, "https://a.example/x", remote.StatusUnread)
	enqueue(t, q, "https://a.example/x", remote.StatusRead)

	if n, _ := q.Size(); n != 1 {
		t.Fatalf("queue size = %d, want 1", n)
	}

	res := rec.Drain(context.Background(), q, time.Second)
	if len(res.Applied) != 1 {
		t.Fatalf("Result = %+v", res)
	}
	if n, _ := q.Size(); n != 0 {
		t.Errorf("queue size = %d, want 0", n)
	}
	if got := store.rows["https://a.example/x"]; got != remote.StatusRead {
		t.Errorf("remote status = %q, want read", got)
	}
}

// TestPartialFailure: one failing target must not block the rest, and only
// it survives in the queue.
func TestPartialFailure(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	store.failWith["https://a.example/2"] = fmt.Errorf("%w: HTTP 503", remote.ErrUnavailable)
	rec := &Reconciler{Store: store}

	for _, tgt := range []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"} {
		enqueue(t, q, tgt, remote.StatusUnread)
	}

	res := rec.Drain(context.Background(), q, time.Second)

	if len(res.Applied) != 2 {
		t.Errorf("Applied = %v, want 2 entries", res.Applied)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "https://a.example/2" {
		t.Errorf("Failed = %v", res.Failed)
	}

	snapshot, err := q.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 1 || snapshot[0].Target != "https://a.example/2" {
		t.Errorf("queue after drain = %+v", snapshot)
	}
	if snapshot[0].LastError == "" {
		t.Error("failed intent has no recorded error")
	}
}

// TestConflictFallsBackToStatusUpdate: a uniqueness conflict is resolved via
// the scoped status update, never surfaced.
func TestConflictFallsBackToStatusUpdate(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	store.conflicts["https://a.example/x"] = true
	rec := &Reconciler{Store: store}

	enqueue(t, q, "https://a.example/x", remote.StatusRead)

	res := rec.Drain(context.Background(), q, time.Second)

	if len(res.Applied) != 1 || len(res.Failed) != 0 {
		t.Fatalf("Result = %+v", res)
	}
	if got := store.rows["https://a.example/x"]; got != remote.StatusRead {
		t.Errorf("remote status = %q, want read", got)
	}
	if n, _ := q.Size(); n != 0 {
		t.Errorf("queue size = %d, want 0", n)
	}
}

// TestBudgetExhaustion: when the budget runs out mid-pass the drain stops,
// reports timedOut, and leaves unprocessed intents untouched.
func TestBudgetExhaustion(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	store.block = true
	rec := &Reconciler{Store: store, CallTimeout: time.Second}

	for _, tgt := range []string{"https://a.example/1", "https://a.example/2"} {
		enqueue(t, q, tgt, remote.StatusUnread)
	}

	res := rec.Drain(context.Background(), q, 50*time.Millisecond)

	if !res.TimedOut {
		t.Errorf("TimedOut = false, want true; result %+v", res)
	}
	if len(res.Applied) != 0 {
		t.Errorf("Applied = %v, want none", res.Applied)
	}
	if n, _ := q.Size(); n != 2 {
		t.Errorf("queue size = %d, want 2 (untouched)", n)
	}
}

// TestExpiredTokenKeepsQueue: a rejection (e.g. expired token) marks intents
// failed but never consumes them.
func TestExpiredTokenKeepsQueue(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	store.failWith["https://a.example/x"] = fmt.Errorf("%w: bearer token expired", remote.ErrRejected)
	rec := &Reconciler{Store: store}

	enqueue(t, q, "https://a.example/x", remote.StatusUnread)

	res := rec.Drain(context.Background(), q, time.Second)
	if len(res.Failed) != 1 || len(res.Applied) != 0 {
		t.Fatalf("Result = %+v", res)
	}
	if n, _ := q.Size(); n != 1 {
		t.Errorf("queue size = %d, want 1", n)
	}
}

// TestDrainTarget: the quick sync applies only the captured target and
// leaves everything else queued.
func TestDrainTarget(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	rec := &Reconciler{Store: store}

	enqueue(t, q, "https://a.example/other", remote.StatusUnread)
	enqueue(t, q, "https://a.example/mine", remote.StatusRead)

	res := rec.DrainTarget(context.Background(), q, "https://a.example/mine", time.Second)

	if len(res.Applied) != 1 || res.Applied[0] != "https://a.example/mine" {
		t.Fatalf("Result = %+v", res)
	}
	snapshot, _ := q.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Target != "https://a.example/other" {
		t.Errorf("queue after quick sync = %+v", snapshot)
	}
}

// TestCaptureDuringDrainSurvives: an intent enqueued for the same target
// while its older entry is being applied must not be consumed with it; the
// newer desired status stays queued for the next pass.
func TestCaptureDuringDrainSurvives(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	store.onUpsert = func(target string) {
		if _, err := q.Enqueue(target, remote.StatusRead, "test"); err != nil {
			t.Errorf("mid-drain Enqueue: %v", err)
		}
	}
	rec := &Reconciler{Store: store}

	enqueue(t, q, "https://a.example/x", remote.StatusUnread)

	res := rec.Drain(context.Background(), q, time.Second)

	if len(res.Applied) != 1 {
		t.Fatalf("Result = %+v", res)
	}
	if got := store.rows["https://a.example/x"]; got != remote.StatusUnread {
		t.Errorf("remote status = %q, want unread (newer intent not yet applied)", got)
	}

	it, err := q.Get("https://a.example/x")
	if err != nil {
		t.Fatalf("mid-drain capture was consumed: %v", err)
	}
	if it.Desired != remote.StatusRead {
		t.Errorf("queued intent desired %q, want read", it.Desired)
	}

	// The next pass lands the newer status and empties the queue.
	store.onUpsert = nil
	rec.Drain(context.Background(), q, time.Second)
	if got := store.rows["https://a.example/x"]; got != remote.StatusRead {
		t.Errorf("remote status after second drain = %q, want read", got)
	}
	if n, _ := q.Size(); n != 0 {
		t.Errorf("queue size = %d, want 0", n)
	}
}

// TestUpsertIdempotence: draining, re-enqueueing the same intent, and
// draining again leaves the remote row in the same state.
func TestUpsertIdempotence(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	rec := &Reconciler{Store: store}

	enqueue(t, q, "https://a.example/x", remote.StatusRead)
	rec.Drain(context.Background(), q, time.Second)
	first := store.rows["https://a.example/x"]

	enqueue(t, q, "https://a.example/x", remote.StatusRead)
	rec.Drain(context.Background(), q, time.Second)

	if got := store.rows["https://a.example/x"]; got != first {
		t.Errorf("row changed across identical upserts: %q -> %q", first, got)
	}
	if len(store.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(store.rows))
	}
}
