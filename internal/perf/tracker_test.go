package perf

import (
	"sync"
	"testing"
	"time"
)

func TestGetMetricsNilBeforeFirstSample(t *testing.T) {
	t.Parallel()

	tracker := New(Options{})
	if m := tracker.GetMetrics("codellama:13b"); m != nil {
		t.Fatalf("expected nil metrics, got %+v", m)
	}
}

func TestRecordSampleAggregates(t *testing.T) {
	t.Parallel()

	tracker := New(Options{HistoryLimit: 10})
	tracker.RecordSample("codellama:13b", 2*time.Second, 100)
	tracker.RecordSample("codellama:13b", 4*time.Second, 200)

	agg := waitForMetrics(t, tracker, "codellama:13b", func(m *AggregatedMetrics) bool {
		return m.TotalRequests == 2
	})

	if agg.AvgResponseTime != 3*time.Second {
		t.Fatalf("expected avg 3s, got %s", agg.AvgResponseTime)
	}
	// 300 tokens over 6 seconds of generation time.
	if agg.TokensPerSecond < 49.9 || agg.TokensPerSecond > 50.1 {
		t.Fatalf("expected ~50 tok/s, got %f", agg.TokensPerSecond)
	}
	if agg.LastUsed.IsZero() {
		t.Fatal("expected lastUsed to be set")
	}
}

func TestFIFOEvictionKeepsMostRecent(t *testing.T) {
	t.Parallel()

	tracker := New(Options{HistoryLimit: 100})
	for i := 0; i < 150; i++ {
		tracker.RecordSample("qwen2.5-coder:7b", time.Duration(i+1)*time.Millisecond, 1)
	}

	samples := tracker.samplesSnapshot("qwen2.5-coder:7b")
	if len(samples) != 100 {
		t.Fatalf("expected exactly 100 samples, got %d", len(samples))
	}
	// The survivors must be insertions 51..150, in order.
	if samples[0].ResponseTime != 51*time.Millisecond {
		t.Fatalf("oldest surviving sample should be #51, got %s", samples[0].ResponseTime)
	}
	if samples[99].ResponseTime != 150*time.Millisecond {
		t.Fatalf("newest sample should be #150, got %s", samples[99].ResponseTime)
	}

	agg := waitForMetrics(t, tracker, "qwen2.5-coder:7b", func(m *AggregatedMetrics) bool {
		return m.TotalRequests == 150
	})
	if agg.TotalRequests != 150 {
		t.Fatalf("total request count must survive eviction, got %d", agg.TotalRequests)
	}
}

func TestWindowExcludesOldSamples(t *testing.T) {
	t.Parallel()

	tracker := New(Options{HistoryLimit: 100, Window: time.Hour})
	var mu sync.Mutex
	current := time.Now()
	tracker.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	tracker.RecordSample("m", time.Second, 10)
	mu.Lock()
	current = current.Add(2 * time.Hour)
	mu.Unlock()
	tracker.RecordSample("m", 3*time.Second, 30)

	agg := waitForMetrics(t, tracker, "m", func(m *AggregatedMetrics) bool {
		return m.AvgResponseTime == 3*time.Second
	})
	// Only the in-window sample counts toward the average; the lifetime
	// request counter still reflects both.
	if agg.TotalRequests != 2 {
		t.Fatalf("expected 2 total requests, got %d", agg.TotalRequests)
	}
}

func TestCompareAllDesignations(t *testing.T) {
	t.Parallel()

	tracker := New(Options{})
	tracker.RecordSample("fast", time.Second, 10)
	tracker.RecordSample("efficient", 2*time.Second, 500)
	tracker.RecordSample("busy", 3*time.Second, 5)
	tracker.RecordSample("busy", 3*time.Second, 5)
	tracker.RecordSample("busy", 3*time.Second, 5)

	deadline := time.After(2 * time.Second)
	for {
		cmp := tracker.CompareAll()
		if len(cmp.Models) == 3 && cmp.Models["busy"].TotalRequests == 3 {
			if cmp.Fastest != "fast" {
				t.Fatalf("expected fastest=fast, got %s", cmp.Fastest)
			}
			if cmp.MostEfficient != "efficient" {
				t.Fatalf("expected mostEfficient=efficient, got %s", cmp.MostEfficient)
			}
			if cmp.MostUsed != "busy" {
				t.Fatalf("expected mostUsed=busy, got %s", cmp.MostUsed)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("aggregates never settled: %+v", cmp)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRecordSampleConcurrent(t *testing.T) {
	t.Parallel()

	tracker := New(Options{HistoryLimit: 50})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.RecordSample("shared", time.Millisecond, 1)
				tracker.GetMetrics("shared")
			}
		}()
	}
	wg.Wait()

	if got := len(tracker.samplesSnapshot("shared")); got != 50 {
		t.Fatalf("expected series capped at 50, got %d", got)
	}
}

func waitForMetrics(t *testing.T, tracker *Tracker, model string, ok func(*AggregatedMetrics) bool) *AggregatedMetrics {
	t.Helper()
	timeout := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			t.Fatalf("timed out waiting for %s aggregates", model)
		case <-ticker.C:
			if m := tracker.GetMetrics(model); m != nil && ok(m) {
				return m
			}
		}
	}
}
