package service

import (
	"context"
	"log"
	"sync"
	"time"

	"hoardwatch-api/internal/repository"
)

// JanitorConfig holds configuration for the price history janitor.
type JanitorConfig struct {
	// Retention is how long RAP observations are kept.
	// Default: 90 days
	Retention time.Duration

	// Interval is how often the pruning runs.
	// Default: 24 hours
	Interval time.Duration
}

// DefaultJanitorConfig returns default janitor configuration.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Retention: 90 * 24 * time.Hour,
		Interval:  24 * time.Hour,
	}
}

// PriceHistoryJanitor periodically prunes old RAP observations so the
// price_history table does not grow without bound.
type PriceHistoryJanitor struct {
	store     repository.CollectiblesStore
	config    JanitorConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewPriceHistoryJanitor creates a new price history janitor.
func NewPriceHistoryJanitor(store repository.CollectiblesStore, config JanitorConfig) *PriceHistoryJanitor {
	if config.Retention == 0 {
		config.Retention = 90 * 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}

	return &PriceHistoryJanitor{
		store:  store,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start begins the pruning loop.
func (j *PriceHistoryJanitor) Start() {
	j.mu.Lock()
	if j.isRunning {
		j.mu.Unlock()
		return
	}
	j.isRunning = true
	j.ticker = time.NewTicker(j.config.Interval)
	j.mu.Unlock()

	log.Printf("[PriceHistoryJanitor] Started - Interval: %v, Retention: %v",
		j.config.Interval, j.config.Retention)

	// Run initial prune after a short delay
	go func() {
		time.Sleep(1 * time.Minute)
		j.runPrune()
	}()

	go j.run()
}

// run is the main pruning loop.
func (j *PriceHistoryJanitor) run() {
	for {
		select {
		case <-j.ticker.C:
			j.runPrune()
		case <-j.stopCh:
			log.Printf("[PriceHistoryJanitor] Stopped")
			return
		}
	}
}

// runPrune performs the actual pruning.
func (j *PriceHistoryJanitor) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := j.store.PrunePriceHistory(ctx, j.config.Retention)
	if err != nil {
		log.Printf("[PriceHistoryJanitor] Error during prune: %v", err)
		return
	}

	if deleted > 0 {
		log.Printf("[PriceHistoryJanitor] Pruned %d price observations", deleted)
	}
}

// Stop stops the janitor.
func (j *PriceHistoryJanitor) Stop() {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		defer j.mu.Unlock()

		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.stopCh)
		j.isRunning = false
	})
}

// RunNow triggers an immediate prune.
func (j *PriceHistoryJanitor) RunNow() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return j.store.PrunePriceHistory(ctx, j.config.Retention)
}
