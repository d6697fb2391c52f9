package scanner

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTryAcquireIsSingleFlight(t *testing.T) {
	reg := NewRegistry()

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.TryAcquire(555) {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := acquired.Load(); got != 1 {
		t.Fatalf("expected exactly one acquisition, got %d", got)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	reg := NewRegistry()

	if !reg.TryAcquire(555) {
		t.Fatal("first acquire should succeed")
	}
	if reg.TryAcquire(555) {
		t.Fatal("second acquire while active should fail")
	}

	reg.Release(555)
	if !reg.TryAcquire(555) {
		t.Fatal("acquire after release should succeed")
	}
}

func TestRequestStopOnInactiveAssetIsNoop(t *testing.T) {
	reg := NewRegistry()

	if reg.RequestStop(555) {
		t.Fatal("stop on inactive asset should report false")
	}
	if reg.StopRequested(555) {
		t.Fatal("no stop should be recorded")
	}
}

func TestReleaseClearsStopButKeepsProgress(t *testing.T) {
	reg := NewRegistry()
	reg.TryAcquire(555)
	reg.AddTotal(555, 10)
	reg.RequestStop(555)

	reg.Release(555)

	status := reg.Status(555)
	if status.Scanning {
		t.Error("expected scanning false after release")
	}
	if status.StopRequested {
		t.Error("expected stop request cleared after release")
	}
	if status.Progress == nil || status.Progress.Total != 10 {
		t.Error("expected progress retained for the grace period")
	}
}

func TestStatusForUnknownAsset(t *testing.T) {
	reg := NewRegistry()

	status := reg.Status(999)
	if status.Scanning || status.StopRequested || status.Progress != nil {
		t.Fatalf("expected empty status, got %+v", status)
	}
}

func TestStatusReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.TryAcquire(555)

	status := reg.Status(555)
	status.Progress.Total = 9999

	if reg.Status(555).Progress.Total != 0 {
		t.Fatal("mutating the returned progress must not affect the registry")
	}
}

func TestScheduleCleanupRemovesProgress(t *testing.T) {
	reg := NewRegistry()
	reg.TryAcquire(555)
	reg.Release(555)
	reg.ScheduleCleanup(555, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reg.Status(555).Progress == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected progress to be cleaned up after the grace period")
}

func TestScheduleCleanupSkipsReacquiredAsset(t *testing.T) {
	reg := NewRegistry()
	reg.TryAcquire(555)
	reg.Release(555)
	reg.ScheduleCleanup(555, 10*time.Millisecond)

	// A new scan claims the asset before the cleanup fires.
	reg.TryAcquire(555)

	time.Sleep(50 * time.Millisecond)
	if reg.Status(555).Progress == nil {
		t.Fatal("cleanup must not delete progress of a newly started scan")
	}
}

func TestProgressCountersAndETA(t *testing.T) {
	reg := NewRegistry()
	reg.TryAcquire(555)
	reg.AddTotal(555, 4)
	reg.AddPage(555)

	status := reg.Status(555)
	if status.Progress.EtaSeconds != -1 {
		t.Errorf("expected ETA -1 before any processing, got %d", status.Progress.EtaSeconds)
	}

	time.Sleep(10 * time.Millisecond)
	reg.MarkProcessed(555, "builderman")
	reg.MarkFailed(555)

	status = reg.Status(555)
	if status.Progress.Processed != 1 || status.Progress.Failed != 1 {
		t.Errorf("unexpected counters: %+v", status.Progress)
	}
	if status.Progress.PagesFound != 1 {
		t.Errorf("expected 1 page, got %d", status.Progress.PagesFound)
	}
	if status.Progress.CurrentUser != "builderman" {
		t.Errorf("expected current user builderman, got %q", status.Progress.CurrentUser)
	}
	if status.Progress.EtaSeconds < 0 {
		t.Errorf("expected a non-negative ETA once throughput exists, got %d", status.Progress.EtaSeconds)
	}
}
