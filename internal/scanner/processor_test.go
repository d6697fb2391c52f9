package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/roblox"
)

// fakeProfileAPI serves profile lookups, optionally failing.
type fakeProfileAPI struct {
	mu       sync.Mutex
	infoErr  error
	thumbErr error
	names    map[int64]string
}

func (f *fakeProfileAPI) FetchUserInfo(ctx context.Context, userID int64) (*roblox.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	name := f.names[userID]
	return &roblox.UserInfo{ID: userID, Name: name, DisplayName: name}, nil
}

func (f *fakeProfileAPI) FetchHeadshotURL(ctx context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.thumbErr != nil {
		return "", f.thumbErr
	}
	return "https://cdn.example/headshot.png", nil
}

// fakeReconciler records reconciled holders and can fail selectively.
type fakeReconciler struct {
	mu      sync.Mutex
	synced  []int64
	failFor map[int64]bool
}

func (f *fakeReconciler) Reconcile(ctx context.Context, robloxUserID int64) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[robloxUserID] {
		return nil, errors.New("reconcile failed")
	}
	f.synced = append(f.synced, robloxUserID)
	return &model.Snapshot{ID: "snap", RobloxUserID: robloxUserID}, nil
}

func TestProcessorDrainsQueue(t *testing.T) {
	queue := newOwnerQueue()
	queue.Push(entriesFor(1, 2, 3, 4, 5)...)
	queue.MarkDone()

	api := &fakeProfileAPI{names: map[int64]string{1: "alice", 2: "bob"}}
	rec := &fakeReconciler{}
	store := newFakeStore()
	reg := NewRegistry()
	reg.TryAcquire(555)

	result := processOwners(context.Background(), 555, api, rec, store, queue, reg, testScannerConfig())

	if result.Processed+result.Failed != 5 {
		t.Fatalf("expected processed+failed == 5, got %d+%d", result.Processed, result.Failed)
	}
	if result.Failed != 0 {
		t.Errorf("expected no failures, got %d", result.Failed)
	}
	if result.Stopped {
		t.Error("expected a clean run, not a stop")
	}
	if len(rec.synced) != 5 {
		t.Errorf("expected 5 reconciliations, got %d", len(rec.synced))
	}
}

func TestProcessorWaitsForLateProducer(t *testing.T) {
	queue := newOwnerQueue()
	api := &fakeProfileAPI{names: map[int64]string{}}
	rec := &fakeReconciler{}
	store := newFakeStore()
	reg := NewRegistry()
	reg.TryAcquire(555)

	// Producer pushes after the consumer has already started polling.
	go func() {
		queue.Push(entriesFor(1, 2)...)
		queue.Push(entriesFor(3)...)
		queue.MarkDone()
	}()

	result := processOwners(context.Background(), 555, api, rec, store, queue, reg, testScannerConfig())

	if result.Processed+result.Failed != 3 {
		t.Fatalf("expected all 3 entries handled, got %d+%d", result.Processed, result.Failed)
	}
}

// The done flag must be read before popping: a producer that pushes its
// final entries and marks the queue done between the consumer's empty pop
// and its done check would otherwise strand those entries. Hammer that
// window with a hot-polling consumer and a producer that marks done
// immediately after its last push.
func TestProcessorNeverDropsEntriesAtTermination(t *testing.T) {
	cfg := testScannerConfig()
	cfg.EmptyPollDelay = 0
	cfg.HolderDelay = 0

	api := &fakeProfileAPI{names: map[int64]string{}}

	for trial := 0; trial < 300; trial++ {
		queue := newOwnerQueue()
		rec := &fakeReconciler{}
		store := newFakeStore()
		reg := NewRegistry()
		reg.TryAcquire(555)

		go func() {
			queue.Push(entriesFor(1, 2)...)
			queue.Push(entriesFor(3)...)
			queue.MarkDone()
		}()

		result := processOwners(context.Background(), 555, api, rec, store, queue, reg, cfg)

		if result.Processed+result.Failed != 3 {
			t.Fatalf("trial %d: expected all 3 entries handled, got %d+%d (queue left with %d)",
				trial, result.Processed, result.Failed, queue.Len())
		}
		reg.Release(555)
	}
}

func TestProcessorCountsFailuresAndContinues(t *testing.T) {
	queue := newOwnerQueue()
	queue.Push(entriesFor(1, 2, 3)...)
	queue.MarkDone()

	api := &fakeProfileAPI{names: map[int64]string{}}
	rec := &fakeReconciler{failFor: map[int64]bool{2: true}}
	store := newFakeStore()
	reg := NewRegistry()
	reg.TryAcquire(555)

	result := processOwners(context.Background(), 555, api, rec, store, queue, reg, testScannerConfig())

	if result.Processed != 2 || result.Failed != 1 {
		t.Fatalf("expected 2 processed / 1 failed, got %d/%d", result.Processed, result.Failed)
	}

	progress := reg.Status(555).Progress
	if progress.Processed != 2 || progress.Failed != 1 {
		t.Errorf("registry counters out of sync: %+v", progress)
	}
}

func TestProcessorUsesPlaceholderOnProfileFailure(t *testing.T) {
	queue := newOwnerQueue()
	queue.Push(entriesFor(42)...)
	queue.MarkDone()

	api := &fakeProfileAPI{
		infoErr:  errors.New("profile service down"),
		thumbErr: errors.New("thumbnails down"),
	}
	rec := &fakeReconciler{}
	store := newFakeStore()
	reg := NewRegistry()
	reg.TryAcquire(555)

	result := processOwners(context.Background(), 555, api, rec, store, queue, reg, testScannerConfig())

	if result.Failed != 0 {
		t.Fatalf("profile failure must not count as a holder failure, got %d failed", result.Failed)
	}

	holder, _ := store.GetHolder(context.Background(), 42)
	if holder == nil {
		t.Fatal("expected the holder upserted despite profile failure")
	}
	if holder.Username != model.PlaceholderUsername(42) {
		t.Errorf("expected placeholder username, got %q", holder.Username)
	}
}

func TestProcessorHonorsStopWithoutDraining(t *testing.T) {
	queue := newOwnerQueue()
	queue.Push(entriesFor(1, 2, 3, 4, 5)...)
	queue.MarkDone()

	api := &fakeProfileAPI{names: map[int64]string{}}
	rec := &fakeReconciler{}
	store := newFakeStore()
	reg := NewRegistry()
	reg.TryAcquire(555)
	reg.RequestStop(555)

	result := processOwners(context.Background(), 555, api, rec, store, queue, reg, testScannerConfig())

	if !result.Stopped {
		t.Fatal("expected a stopped result")
	}
	if result.Processed != 0 {
		t.Errorf("expected nothing processed after stop, got %d", result.Processed)
	}
	if queue.Len() != 5 {
		t.Errorf("expected the queue left undrained, got %d remaining", queue.Len())
	}
}

func TestProcessorUpsertFailureCountsAsFailed(t *testing.T) {
	queue := newOwnerQueue()
	queue.Push(entriesFor(1)...)
	queue.MarkDone()

	api := &fakeProfileAPI{names: map[int64]string{}}
	rec := &fakeReconciler{}
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")
	reg := NewRegistry()
	reg.TryAcquire(555)

	result := processOwners(context.Background(), 555, api, rec, store, queue, reg, testScannerConfig())

	if result.Failed != 1 || result.Processed != 0 {
		t.Fatalf("expected 0 processed / 1 failed, got %d/%d", result.Processed, result.Failed)
	}
	if len(rec.synced) != 0 {
		t.Error("expected no reconciliation after a failed upsert")
	}
}
