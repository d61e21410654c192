package download

import (
	"sync"
	"time"
)

// State is the lifecycle state of a download job.
type State string

const (
	StateInitializing State = "initializing"
	StateConnecting   State = "connecting"
	StateDownloading  State = "downloading"
	StateVerifying    State = "verifying"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
	StateTimedOut     State = "timed_out"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// Job is a point-in-time snapshot of one model acquisition attempt. All
// coordinator operations take and return Job values; the mutable record
// stays private to the owning worker.
type Job struct {
	ID              string    `json:"id"`
	ModelName       string    `json:"modelName"`
	State           State     `json:"state"`
	BytesDownloaded int64     `json:"bytesDownloaded"`
	TotalBytes      int64     `json:"totalBytes"`
	StartTime       time.Time `json:"startTime"`
	CompletedTime   time.Time `json:"completedTime,omitempty"`

	// Derived on each progress update. EstimatedSecondsRemaining stays
	// zero (and is omitted) while the download speed is unknown.
	SpeedBytesPerSec          float64 `json:"downloadSpeedBytesPerSec,omitempty"`
	EstimatedSecondsRemaining float64 `json:"estimatedTimeRemaining,omitempty"`

	Error string `json:"error,omitempty"`
}

// tracked is the mutable registry record behind a Job. It is mutated only by
// the single worker goroutine that owns it; everyone else reads snapshots.
type tracked struct {
	mu     sync.Mutex
	job    Job
	cancel func()
}

func (t *tracked) snapshot() Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

func (t *tracked) terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.State.Terminal()
}
