package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hoardwatch-api/internal/config"
	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/roblox"
	"hoardwatch-api/internal/scanner"

	"github.com/go-chi/chi/v5"
)

// stubStore is a minimal in-memory CollectiblesStore for handler tests.
type stubStore struct {
	holders map[int64]*model.Holder
	items   map[int64]*model.Item
	raps    map[int64]int64
	owners  map[int64][]model.Owner
	prices  []model.PricePoint
}

func newStubStore() *stubStore {
	return &stubStore{
		holders: make(map[int64]*model.Holder),
		items:   make(map[int64]*model.Item),
		raps:    make(map[int64]int64),
		owners:  make(map[int64][]model.Owner),
	}
}

func (s *stubStore) UpsertHolder(ctx context.Context, holder *model.Holder) error {
	s.holders[holder.RobloxUserID] = holder
	return nil
}

func (s *stubStore) GetHolder(ctx context.Context, id int64) (*model.Holder, error) {
	return s.holders[id], nil
}

func (s *stubStore) GetItem(ctx context.Context, assetID int64) (*model.Item, error) {
	return s.items[assetID], nil
}

func (s *stubStore) ListItems(ctx context.Context, limit, offset int) ([]model.Item, int64, error) {
	var out []model.Item
	for _, item := range s.items {
		out = append(out, *item)
	}
	return out, int64(len(s.items)), nil
}

func (s *stubStore) EnsureItems(ctx context.Context, assetIDs []int64) error {
	for _, id := range assetIDs {
		if _, ok := s.items[id]; !ok {
			s.items[id] = &model.Item{AssetID: id}
		}
	}
	return nil
}

func (s *stubStore) SetManipulated(ctx context.Context, assetID int64, manipulated bool) error {
	item, ok := s.items[assetID]
	if !ok {
		return context.Canceled // any error maps to 404 in the handler
	}
	item.Manipulated = manipulated
	return nil
}

func (s *stubStore) UpdateItemCatalog(ctx context.Context, assetID int64, name, description, imageURL string) error {
	item, ok := s.items[assetID]
	if !ok {
		return context.Canceled
	}
	item.Name = name
	item.Description = description
	item.ImageURL = imageURL
	return nil
}

func (s *stubStore) RecordRAP(ctx context.Context, points []model.PricePoint) error {
	s.prices = append(s.prices, points...)
	return nil
}

func (s *stubStore) LatestRAPs(ctx context.Context, assetIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, id := range assetIDs {
		if rap, ok := s.raps[id]; ok {
			out[id] = rap
		}
	}
	return out, nil
}

func (s *stubStore) PrunePriceHistory(ctx context.Context, threshold time.Duration) (int64, error) {
	return 0, nil
}

func (s *stubStore) LatestSnapshot(ctx context.Context, id int64) (*model.Snapshot, error) {
	return nil, nil
}

func (s *stubStore) CreateSnapshot(ctx context.Context, id int64, totals model.SnapshotTotals, instances []model.Instance) (*model.Snapshot, error) {
	return &model.Snapshot{ID: "snap", RobloxUserID: id}, nil
}

func (s *stubStore) AddInstances(ctx context.Context, snapshotID string, instances []model.Instance) error {
	return nil
}

func (s *stubStore) RemoveInstances(ctx context.Context, snapshotID string, userAssetIDs []int64) error {
	return nil
}

func (s *stubStore) UpdateSnapshotTotals(ctx context.Context, snapshotID string, totals model.SnapshotTotals) error {
	return nil
}

func (s *stubStore) ItemOwners(ctx context.Context, assetID int64) ([]model.Owner, error) {
	return s.owners[assetID], nil
}

func (s *stubStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (s *stubStore) Close() error { return nil }

// stubRobloxAPI satisfies the scanner's client surface with canned data.
type stubRobloxAPI struct{}

func (stubRobloxAPI) FetchOwnersPage(ctx context.Context, assetID int64, cursor string) (*roblox.OwnersPage, error) {
	return &roblox.OwnersPage{Status: roblox.PageOK}, nil
}

func (stubRobloxAPI) FetchUserInfo(ctx context.Context, userID int64) (*roblox.UserInfo, error) {
	return &roblox.UserInfo{ID: userID, Name: "stub"}, nil
}

func (stubRobloxAPI) FetchHeadshotURL(ctx context.Context, userID int64) (string, error) {
	return "", nil
}

type stubReconciler struct{}

func (stubReconciler) Reconcile(ctx context.Context, id int64) (*model.Snapshot, error) {
	return &model.Snapshot{ID: "snap", RobloxUserID: id}, nil
}

func testPipelineConfig() config.ScannerConfig {
	return config.ScannerConfig{
		ColdStartDelay: time.Millisecond,
		PageDelay:      time.Millisecond,
		HolderDelay:    time.Millisecond,
		EmptyPollDelay: time.Millisecond,
		RateLimitFloor: time.Millisecond,
		CleanupGrace:   time.Minute,
		PageLimit:      100,
	}
}

func testScanService(store *stubStore) *scanner.Service {
	cfg := testPipelineConfig()
	return scanner.NewService(stubRobloxAPI{}, stubReconciler{}, store, scanner.NewRegistry(), cfg)
}

func scanRouter(h *ScanHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/items/{asset_id}/scan", h.ManageScan)
	r.Get("/api/v1/items/{asset_id}/scan", h.GetScanStatus)
	return r
}

func postScan(t *testing.T, r http.Handler, assetID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+assetID+"/scan", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestManageScanRequiresKnownAdmin(t *testing.T) {
	store := newStubStore()
	store.holders[7] = &model.Holder{RobloxUserID: 7, Role: model.RoleUser}
	h := NewScanHandler(testScanService(store), store)
	r := scanRouter(h)

	// Unknown requester
	rec := postScan(t, r, "555", ScanRequest{Action: "start", UserID: 99})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown requester, got %d", rec.Code)
	}

	// Known but not admin
	rec = postScan(t, r, "555", ScanRequest{Action: "start", UserID: 7})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin requester, got %d", rec.Code)
	}
}

func TestManageScanStartAndConflict(t *testing.T) {
	store := newStubStore()
	store.holders[1] = &model.Holder{RobloxUserID: 1, Role: model.RoleAdmin}
	store.items[555] = &model.Item{AssetID: 555, Name: "Dominus"}
	store.items[777] = &model.Item{AssetID: 777, Name: "Fedora"}
	svc := testScanService(store)
	h := NewScanHandler(svc, store)
	r := scanRouter(h)

	rec := postScan(t, r, "555", ScanRequest{Action: "start", UserID: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for start, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second start while (possibly) active either conflicts or, if the
	// trivial scan already finished, succeeds. Force the conflict path
	// deterministically through the registry instead.
	reg := scanner.NewRegistry()
	reg.TryAcquire(777)
	h2 := NewScanHandler(scanner.NewService(stubRobloxAPI{}, stubReconciler{}, store, reg, testPipelineConfig()), store)
	r2 := scanRouter(h2)

	rec = postScan(t, r2, "777", ScanRequest{Action: "start", UserID: 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for active scan, got %d", rec.Code)
	}
}

func TestManageScanStartUnknownItem(t *testing.T) {
	store := newStubStore()
	store.holders[1] = &model.Holder{RobloxUserID: 1, Role: model.RoleAdmin}
	h := NewScanHandler(testScanService(store), store)
	r := scanRouter(h)

	rec := postScan(t, r, "555", ScanRequest{Action: "start", UserID: 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown item, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestManageScanValidation(t *testing.T) {
	store := newStubStore()
	store.holders[1] = &model.Holder{RobloxUserID: 1, Role: model.RoleOwner}
	h := NewScanHandler(testScanService(store), store)
	r := scanRouter(h)

	rec := postScan(t, r, "abc", ScanRequest{Action: "start", UserID: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad asset_id, got %d", rec.Code)
	}

	rec = postScan(t, r, "555", ScanRequest{Action: "restart", UserID: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}

	rec = postScan(t, r, "555", ScanRequest{Action: "start"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_id, got %d", rec.Code)
	}
}

func TestScanStatusIsAlwaysPollable(t *testing.T) {
	store := newStubStore()
	h := NewScanHandler(testScanService(store), store)
	r := scanRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/555/scan", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for never-scanned asset, got %d", rec.Code)
	}

	var body struct {
		Success bool             `json:"success"`
		Data    model.ScanStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Scanning || body.Data.StopRequested || body.Data.Progress != nil {
		t.Fatalf("expected empty status, got %+v", body.Data)
	}
}

func TestManageScanStopWithoutActiveScan(t *testing.T) {
	store := newStubStore()
	store.holders[1] = &model.Holder{RobloxUserID: 1, Role: model.RoleAdmin}
	h := NewScanHandler(testScanService(store), store)
	r := scanRouter(h)

	rec := postScan(t, r, "555", ScanRequest{Action: "stop", UserID: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for no-op stop, got %d", rec.Code)
	}

	var body struct {
		Data struct {
			Stopped bool `json:"stopped"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Stopped {
		t.Fatal("expected stopped=false when nothing was running")
	}
}
