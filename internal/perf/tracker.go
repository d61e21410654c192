// Package perf records per-model latency/throughput samples and derives
// comparable aggregate statistics.
package perf

import (
	"sync"
	"time"

	"github.com/helixcode-ai/hx-model-manager/internal/metrics"
)

// Sample is one recorded inference observation.
type Sample struct {
	ResponseTime time.Duration `json:"responseTime"`
	TokenCount   int           `json:"tokenCount"`
	Timestamp    time.Time     `json:"timestamp"`
}

// AggregatedMetrics summarizes the recent-sample window for one model.
type AggregatedMetrics struct {
	ModelName       string        `json:"modelName"`
	AvgResponseTime time.Duration `json:"avgResponseTime"`
	TokensPerSecond float64       `json:"tokensPerSecond"`
	TotalRequests   int64         `json:"totalRequests"`
	LastUsed        time.Time     `json:"lastUsed"`
}

// Comparison ranks all tracked models.
type Comparison struct {
	Models        map[string]AggregatedMetrics `json:"models"`
	Fastest       string                       `json:"fastest,omitempty"`
	MostEfficient string                       `json:"mostEfficient,omitempty"`
	MostUsed      string                       `json:"mostUsed,omitempty"`
}

// series is the bounded FIFO sample history for one model. Each series has
// its own lock so recording for one model never contends with another.
type series struct {
	mu      sync.RWMutex
	samples []Sample
	total   int64
	agg     *AggregatedMetrics
}

// Tracker holds per-model series.
type Tracker struct {
	mu     sync.RWMutex
	series map[string]*series

	cap    int
	window time.Duration
	now    func() time.Time
}

// Options configure the tracker.
type Options struct {
	// HistoryLimit caps each model's sample series (FIFO eviction).
	HistoryLimit int
	// Window bounds how old a sample may be and still count toward
	// aggregates. A sample must satisfy both the window and the cap.
	Window time.Duration
}

// New creates a tracker.
func New(opts Options) *Tracker {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	return &Tracker{
		series: make(map[string]*series),
		cap:    opts.HistoryLimit,
		window: opts.Window,
		now:    time.Now,
	}
}

// RecordSample appends one observation to the model's series and returns
// immediately; aggregate recomputation runs on its own goroutine so the
// request path never waits on it.
func (t *Tracker) RecordSample(modelName string, responseTime time.Duration, tokenCount int) {
	if modelName == "" {
		return
	}
	s := t.seriesFor(modelName)

	sample := Sample{
		ResponseTime: responseTime,
		TokenCount:   tokenCount,
		Timestamp:    t.now(),
	}

	s.mu.Lock()
	s.samples = append(s.samples, sample)
	if len(s.samples) > t.cap {
		// FIFO: drop the oldest, never a newer sample.
		s.samples = s.samples[len(s.samples)-t.cap:]
	}
	s.total++
	s.mu.Unlock()

	metrics.ObserveInference(modelName, responseTime)

	go t.recompute(modelName, s)
}

// GetMetrics returns the model's aggregates, or nil when nothing has been
// recorded yet. Readers may observe aggregates slightly behind the latest
// insert; that staleness is bounded by one recompute pass.
func (t *Tracker) GetMetrics(modelName string) *AggregatedMetrics {
	t.mu.RLock()
	s, ok := t.series[modelName]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.agg == nil {
		return nil
	}
	agg := *s.agg
	return &agg
}

// CompareAll returns every model's aggregates plus derived designations.
func (t *Tracker) CompareAll() Comparison {
	t.mu.RLock()
	names := make([]string, 0, len(t.series))
	for name := range t.series {
		names = append(names, name)
	}
	t.mu.RUnlock()

	cmp := Comparison{Models: make(map[string]AggregatedMetrics, len(names))}
	var (
		bestLatency    time.Duration
		bestThroughput float64
		mostRequests   int64
	)
	for _, name := range names {
		agg := t.GetMetrics(name)
		if agg == nil {
			continue
		}
		cmp.Models[name] = *agg

		if cmp.Fastest == "" || agg.AvgResponseTime < bestLatency {
			cmp.Fastest = name
			bestLatency = agg.AvgResponseTime
		}
		if cmp.MostEfficient == "" || agg.TokensPerSecond > bestThroughput {
			cmp.MostEfficient = name
			bestThroughput = agg.TokensPerSecond
		}
		if cmp.MostUsed == "" || agg.TotalRequests > mostRequests {
			cmp.MostUsed = name
			mostRequests = agg.TotalRequests
		}
	}
	return cmp
}

func (t *Tracker) seriesFor(modelName string) *series {
	t.mu.RLock()
	s, ok := t.series[modelName]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.series[modelName]; ok {
		return s
	}
	s = &series{}
	t.series[modelName] = s
	return s
}

// recompute rebuilds the aggregate from the samples satisfying both the
// count cap and the time window.
func (t *Tracker) recompute(modelName string, s *series) {
	cutoff := t.now().Add(-t.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		count       int
		totalTime   time.Duration
		totalTokens int
		lastUsed    time.Time
	)
	for _, sample := range s.samples {
		if sample.Timestamp.Before(cutoff) {
			continue
		}
		count++
		totalTime += sample.ResponseTime
		totalTokens += sample.TokenCount
		if sample.Timestamp.After(lastUsed) {
			lastUsed = sample.Timestamp
		}
	}
	if count == 0 {
		s.agg = nil
		return
	}

	agg := &AggregatedMetrics{
		ModelName:     modelName,
		TotalRequests: s.total,
		LastUsed:      lastUsed,
	}
	agg.AvgResponseTime = totalTime / time.Duration(count)
	if seconds := totalTime.Seconds(); seconds > 0 {
		agg.TokensPerSecond = float64(totalTokens) / seconds
	}
	s.agg = agg
}

// samplesSnapshot is a test hook returning a copy of the model's series.
func (t *Tracker) samplesSnapshot(modelName string) []Sample {
	t.mu.RLock()
	s, ok := t.series[modelName]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}
