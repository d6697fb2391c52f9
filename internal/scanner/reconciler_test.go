package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/roblox"
)

// fakeInventoryAPI serves a scripted holdings list per holder.
type fakeInventoryAPI struct {
	holdings map[int64][]roblox.Collectible
	err      error
	calls    int
}

func (f *fakeInventoryAPI) FetchCollectibles(ctx context.Context, userID int64) ([]roblox.Collectible, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.holdings[userID], nil
}

// fakeStore is an in-memory CollectiblesStore for pipeline tests.
type fakeStore struct {
	mu          sync.Mutex
	holders     map[int64]*model.Holder
	items       map[int64]bool
	snapshots   map[int64]*model.Snapshot
	raps        map[int64]int64
	nextSnap    int
	addCalls    int
	removeCalls int
	upsertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		holders:   make(map[int64]*model.Holder),
		items:     make(map[int64]bool),
		snapshots: make(map[int64]*model.Snapshot),
		raps:      make(map[int64]int64),
	}
}

func (s *fakeStore) UpsertHolder(ctx context.Context, holder *model.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	copied := *holder
	s.holders[holder.RobloxUserID] = &copied
	return nil
}

func (s *fakeStore) GetHolder(ctx context.Context, robloxUserID int64) (*model.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders[robloxUserID], nil
}

func (s *fakeStore) GetItem(ctx context.Context, assetID int64) (*model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.items[assetID] {
		return nil, nil
	}
	return &model.Item{AssetID: assetID}, nil
}

func (s *fakeStore) ListItems(ctx context.Context, limit, offset int) ([]model.Item, int64, error) {
	return nil, 0, nil
}

func (s *fakeStore) EnsureItems(ctx context.Context, assetIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range assetIDs {
		s.items[id] = true
	}
	return nil
}

func (s *fakeStore) SetManipulated(ctx context.Context, assetID int64, manipulated bool) error {
	return nil
}

func (s *fakeStore) UpdateItemCatalog(ctx context.Context, assetID int64, name, description, imageURL string) error {
	return nil
}

func (s *fakeStore) RecordRAP(ctx context.Context, points []model.PricePoint) error {
	return nil
}

func (s *fakeStore) LatestRAPs(ctx context.Context, assetIDs []int64) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]int64)
	for _, id := range assetIDs {
		if rap, ok := s.raps[id]; ok {
			out[id] = rap
		}
	}
	return out, nil
}

func (s *fakeStore) PrunePriceHistory(ctx context.Context, threshold time.Duration) (int64, error) {
	return 0, nil
}

func (s *fakeStore) LatestSnapshot(ctx context.Context, robloxUserID int64) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshots[robloxUserID]
	if snap == nil {
		return nil, nil
	}
	copied := *snap
	copied.Instances = append([]model.Instance(nil), snap.Instances...)
	return &copied, nil
}

func (s *fakeStore) CreateSnapshot(ctx context.Context, robloxUserID int64, totals model.SnapshotTotals, instances []model.Instance) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSnap++
	snap := &model.Snapshot{
		ID:           fmt.Sprintf("snap-%d", s.nextSnap),
		RobloxUserID: robloxUserID,
		TotalRAP:     totals.TotalRAP,
		TotalItems:   totals.TotalItems,
		UniqueItems:  totals.UniqueItems,
		Instances:    append([]model.Instance(nil), instances...),
	}
	s.snapshots[robloxUserID] = snap
	return snap, nil
}

func (s *fakeStore) findSnapshot(snapshotID string) *model.Snapshot {
	for _, snap := range s.snapshots {
		if snap.ID == snapshotID {
			return snap
		}
	}
	return nil
}

func (s *fakeStore) AddInstances(ctx context.Context, snapshotID string, instances []model.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	snap := s.findSnapshot(snapshotID)
	if snap == nil {
		return errors.New("snapshot not found")
	}
	snap.Instances = append(snap.Instances, instances...)
	return nil
}

func (s *fakeStore) RemoveInstances(ctx context.Context, snapshotID string, userAssetIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	snap := s.findSnapshot(snapshotID)
	if snap == nil {
		return errors.New("snapshot not found")
	}
	remove := make(map[int64]bool, len(userAssetIDs))
	for _, id := range userAssetIDs {
		remove[id] = true
	}
	kept := snap.Instances[:0]
	for _, inst := range snap.Instances {
		if !remove[inst.UserAssetID] {
			kept = append(kept, inst)
		}
	}
	snap.Instances = kept
	return nil
}

func (s *fakeStore) UpdateSnapshotTotals(ctx context.Context, snapshotID string, totals model.SnapshotTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.findSnapshot(snapshotID)
	if snap == nil {
		return errors.New("snapshot not found")
	}
	snap.TotalRAP = totals.TotalRAP
	snap.TotalItems = totals.TotalItems
	snap.UniqueItems = totals.UniqueItems
	return nil
}

func (s *fakeStore) ItemOwners(ctx context.Context, assetID int64) ([]model.Owner, error) {
	return nil, nil
}

func (s *fakeStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (s *fakeStore) Close() error { return nil }

func instanceIDs(instances []model.Instance) []int64 {
	ids := make([]int64, len(instances))
	for i, inst := range instances {
		ids[i] = inst.UserAssetID
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

func TestReconcileCreatesBaselineSnapshot(t *testing.T) {
	serial := 5
	api := &fakeInventoryAPI{holdings: map[int64][]roblox.Collectible{
		1001: {
			{AssetID: 1, UserAssetID: 11, SerialNumber: &serial},
			{AssetID: 2, UserAssetID: 22, SerialNumber: nil},
			{AssetID: 1, UserAssetID: 33, SerialNumber: nil},
		},
	}}
	store := newFakeStore()
	store.raps[1] = 1000
	store.raps[2] = 500

	rec := NewReconciler(api, store)
	snap, err := rec.Reconcile(context.Background(), 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snap.Instances) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(snap.Instances))
	}
	if snap.TotalItems != 3 || snap.UniqueItems != 2 {
		t.Errorf("expected totals 3/2, got %d/%d", snap.TotalItems, snap.UniqueItems)
	}
	// asset 1 twice at 1000, asset 2 once at 500
	if snap.TotalRAP != 2500 {
		t.Errorf("expected total RAP 2500, got %d", snap.TotalRAP)
	}
	if !store.items[1] || !store.items[2] {
		t.Error("expected placeholder catalog rows for all referenced assets")
	}
	if snap.Instances[1].SerialNumber != nil {
		t.Error("expected nil serial preserved")
	}
}

func TestReconcileUnchangedIsIdempotent(t *testing.T) {
	api := &fakeInventoryAPI{holdings: map[int64][]roblox.Collectible{
		1001: {
			{AssetID: 1, UserAssetID: 11},
			{AssetID: 2, UserAssetID: 22},
		},
	}}
	store := newFakeStore()
	rec := NewReconciler(api, store)

	first, err := rec.Reconcile(context.Background(), 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := rec.Reconcile(context.Background(), 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected same snapshot ID, got %s then %s", first.ID, second.ID)
	}
	if store.addCalls != 0 || store.removeCalls != 0 {
		t.Errorf("expected no mutations, got %d adds %d removes", store.addCalls, store.removeCalls)
	}
}

func TestReconcileAppliesMinimalDiff(t *testing.T) {
	api := &fakeInventoryAPI{holdings: map[int64][]roblox.Collectible{
		1001: {
			{AssetID: 1, UserAssetID: 11}, // A
			{AssetID: 1, UserAssetID: 22}, // B
			{AssetID: 2, UserAssetID: 33}, // C
		},
	}}
	store := newFakeStore()
	rec := NewReconciler(api, store)

	first, err := rec.Reconcile(context.Background(), 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Holdings change: A leaves, D arrives.
	api.holdings[1001] = []roblox.Collectible{
		{AssetID: 1, UserAssetID: 22}, // B
		{AssetID: 2, UserAssetID: 33}, // C
		{AssetID: 3, UserAssetID: 44}, // D
	}

	second, err := rec.Reconcile(context.Background(), 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected the snapshot to be mutated in place, got new ID %s", second.ID)
	}
	if store.addCalls != 1 || store.removeCalls != 1 {
		t.Errorf("expected exactly one add and one remove call, got %d/%d", store.addCalls, store.removeCalls)
	}

	stored, _ := store.LatestSnapshot(context.Background(), 1001)
	got := instanceIDs(stored.Instances)
	want := []int64{22, 33, 44}
	if len(got) != len(want) {
		t.Fatalf("expected instances %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected instances %v, got %v", want, got)
		}
	}
}

func TestReconcileDeduplicatesFetchedInstances(t *testing.T) {
	api := &fakeInventoryAPI{holdings: map[int64][]roblox.Collectible{
		1001: {
			{AssetID: 1, UserAssetID: 11},
			{AssetID: 1, UserAssetID: 11},
		},
	}}
	store := newFakeStore()
	rec := NewReconciler(api, store)

	snap, err := rec.Reconcile(context.Background(), 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Instances) != 1 {
		t.Fatalf("expected duplicates collapsed to 1 instance, got %d", len(snap.Instances))
	}
}

func TestReconcileFetchErrorPropagates(t *testing.T) {
	api := &fakeInventoryAPI{err: errors.New("upstream down")}
	store := newFakeStore()
	rec := NewReconciler(api, store)

	if _, err := rec.Reconcile(context.Background(), 1001); err == nil {
		t.Fatal("expected an error when the holdings fetch fails")
	}
	if store.addCalls != 0 || store.removeCalls != 0 {
		t.Error("expected no snapshot mutation on fetch failure")
	}
}
