package scanner

import (
	"sync"
	"time"

	"hoardwatch-api/internal/model"
)

// Registry holds process-wide scan state: the active-scan set, the
// stop-request set and per-item progress. It is read by the polling
// status endpoint while the pipeline goroutines write to it, so every
// access goes through the mutex.
type Registry struct {
	mu       sync.Mutex
	active   map[int64]bool
	stops    map[int64]bool
	progress map[int64]*model.ScanProgress
}

// NewRegistry creates an empty scan registry.
func NewRegistry() *Registry {
	return &Registry{
		active:   make(map[int64]bool),
		stops:    make(map[int64]bool),
		progress: make(map[int64]*model.ScanProgress),
	}
}

// TryAcquire atomically claims the single-flight lock for an asset and
// initializes its progress record. Returns false when a scan is already
// active for the asset.
func (r *Registry) TryAcquire(assetID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[assetID] {
		return false
	}
	r.active[assetID] = true
	r.progress[assetID] = &model.ScanProgress{
		StartedAt:  time.Now().UTC(),
		EtaSeconds: -1,
	}
	return true
}

// Release clears the active-scan and stop-request entries for an asset.
// The progress record is retained so a final status poll still sees the
// terminal counts; ScheduleCleanup removes it later.
func (r *Registry) Release(assetID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, assetID)
	delete(r.stops, assetID)
}

// RequestStop marks a stop request for an asset. Returns false when no
// scan is active, in which case the request is a no-op.
func (r *Registry) RequestStop(assetID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active[assetID] {
		return false
	}
	r.stops[assetID] = true
	return true
}

// StopRequested reports whether a stop has been requested for an asset.
func (r *Registry) StopRequested(assetID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops[assetID]
}

// AddTotal increments the running owner total for an asset.
func (r *Registry) AddTotal(assetID int64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.progress[assetID]; p != nil {
		p.Total += n
	}
}

// AddPage increments the fetched-page counter for an asset.
func (r *Registry) AddPage(assetID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.progress[assetID]; p != nil {
		p.PagesFound++
	}
}

// MarkProcessed records one successfully processed holder and refreshes
// the current-holder label and the rate-based ETA.
func (r *Registry) MarkProcessed(assetID int64, currentUser string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.progress[assetID]
	if p == nil {
		return
	}
	p.Processed++
	p.CurrentUser = currentUser
	p.EtaSeconds = estimateETA(p)
}

// MarkFailed records one failed holder.
func (r *Registry) MarkFailed(assetID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.progress[assetID]; p != nil {
		p.Failed++
	}
}

// estimateETA projects remaining seconds from the elapsed processing
// rate. Returns -1 until enough has been processed to extrapolate.
// Caller must hold the mutex.
func estimateETA(p *model.ScanProgress) int64 {
	handled := p.Processed + p.Failed
	if handled == 0 || p.Total <= handled {
		return -1
	}
	elapsed := time.Since(p.StartedAt).Seconds()
	if elapsed <= 0 {
		return -1
	}
	rate := float64(handled) / elapsed
	return int64(float64(p.Total-handled) / rate)
}

// Status returns the poll-safe view for an asset. Progress is a copy,
// nil when no scan has run recently.
func (r *Registry) Status(assetID int64) model.ScanStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := model.ScanStatus{
		Scanning:      r.active[assetID],
		StopRequested: r.stops[assetID],
	}
	if p := r.progress[assetID]; p != nil {
		snapshot := *p
		status.Progress = &snapshot
	}
	return status
}

// ScheduleCleanup deletes the progress record after the grace period,
// unless a new scan has claimed the asset in the meantime.
func (r *Registry) ScheduleCleanup(assetID int64, grace time.Duration) {
	time.AfterFunc(grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if !r.active[assetID] {
			delete(r.progress, assetID)
		}
	})
}
