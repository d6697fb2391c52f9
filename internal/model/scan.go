package model

import "time"

// ScanProgress is the live progress record of one owner scan. It lives only
// in the in-process registry: created at scan start, mutated by both pipeline
// stages, and deleted shortly after the scan reaches a terminal state.
type ScanProgress struct {
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	PagesFound  int       `json:"pagesFound"`
	CurrentUser string    `json:"currentUser"`
	StartedAt   time.Time `json:"startedAt"`
	// EtaSeconds is a rate-based estimate of time remaining, -1 while no
	// throughput data exists yet.
	EtaSeconds int64 `json:"etaSeconds"`
}

// ScanStatus is the poll response for one item's scan state. Progress is
// nil when no scan has run recently for the item.
type ScanStatus struct {
	Scanning      bool          `json:"scanning"`
	StopRequested bool          `json:"stopRequested"`
	Progress      *ScanProgress `json:"progress"`
}

// ScanResult carries the final counters out of a finished pipeline.
type ScanResult struct {
	Processed int
	Failed    int
	Stopped   bool
}
