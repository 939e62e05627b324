package metrics

import (
	"errors"
	"sync"
	"testing"
)

func TestStreamMetricsCache(t *testing.T) {
	streamID := "test-stream-1"

	DeleteStreamMetrics(streamID)

	if m := GetStreamMetrics(streamID); m != nil {
		t.Error("expected nil for non-existent stream")
	}

	SetFramesRendered(streamID, 4800)
	RecordReinit(streamID, nil)
	RecordReinit(streamID, errors.New("boom"))
	RecordCoalesced(streamID)

	m := GetStreamMetrics(streamID)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FramesRendered != 4800 {
		t.Errorf("FramesRendered = %v, want 4800", m.FramesRendered)
	}
	if m.Reinits != 2 {
		t.Errorf("Reinits = %v, want 2", m.Reinits)
	}
	if m.Coalesced != 1 {
		t.Errorf("Coalesced = %v, want 1", m.Coalesced)
	}

	// Verify returned copy is independent
	m.FramesRendered = 999
	m2 := GetStreamMetrics(streamID)
	if m2.FramesRendered != 4800 {
		t.Errorf("cache was modified, FramesRendered = %v, want 4800", m2.FramesRendered)
	}

	DeleteStreamMetrics(streamID)
	if m := GetStreamMetrics(streamID); m != nil {
		t.Error("expected nil after delete")
	}
}

func TestGetAllStreamMetrics(t *testing.T) {
	DeleteStreamMetrics("all-a")
	DeleteStreamMetrics("all-b")
	SetFramesRendered("all-a", 1)
	SetFramesRendered("all-b", 2)
	defer DeleteStreamMetrics("all-a")
	defer DeleteStreamMetrics("all-b")

	all := GetAllStreamMetrics()
	if all["all-a"] == nil || all["all-b"] == nil {
		t.Fatalf("missing streams in %v", all)
	}
	if all["all-b"].FramesRendered != 2 {
		t.Errorf("FramesRendered = %v, want 2", all["all-b"].FramesRendered)
	}
}

func TestStreamMetricsConcurrency(_ *testing.T) {
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				SetFramesRendered("concurrent", uint64(i*100+j))
				GetStreamMetrics("concurrent")
			}
		}()
	}
	wg.Wait()
	DeleteStreamMetrics("concurrent")
}
