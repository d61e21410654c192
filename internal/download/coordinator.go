// Package download owns the lifecycle of model acquisition jobs: creation,
// streaming progress, cooperative cancellation, post-download verification,
// and bounded history retention.
package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helixcode-ai/hx-model-manager/internal/events"
	"github.com/helixcode-ai/hx-model-manager/internal/logutil"
	"github.com/helixcode-ai/hx-model-manager/internal/metrics"
	"github.com/helixcode-ai/hx-model-manager/internal/modelcache"
	"github.com/helixcode-ai/hx-model-manager/internal/ollama"
)

// verifyPrompt is the minimal synthetic inference used to prove a pulled
// model actually loads and answers, not merely that its blobs are on disk.
const verifyPrompt = "Reply with the single word OK."

type runtimeClient interface {
	Pull(ctx context.Context, name string, fn ollama.PullFunc) error
	Generate(ctx context.Context, model, prompt string) (*ollama.GenerateResult, error)
}

type progressReporter interface {
	Publish(ctx context.Context, evt events.Event) error
}

type metadataCache interface {
	Invalidate(key string)
	InvalidatePrefix(prefix string)
}

// Options configures the coordinator.
type Options struct {
	Runtime  runtimeClient
	Cache    metadataCache
	Reporter progressReporter

	// Timeout is the hard per-job deadline (default 30m). It composes
	// with caller cancellation through the job's context.
	Timeout time.Duration

	// HistoryLimit bounds retained terminal jobs (default 50).
	HistoryLimit int
}

// Coordinator tracks all in-flight and recently finished download jobs.
type Coordinator struct {
	runtime  runtimeClient
	cache    metadataCache
	reporter progressReporter
	timeout  time.Duration
	histCap  int

	mu      sync.RWMutex
	active  map[string]*tracked // job id -> record
	byModel map[string]string   // model name -> active job id
	history []Job               // most recent first
}

// New creates a coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Runtime == nil {
		return nil, errors.New("download coordinator requires a runtime client")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Coordinator{
		runtime:  opts.Runtime,
		cache:    opts.Cache,
		reporter: opts.Reporter,
		timeout:  opts.Timeout,
		histCap:  opts.HistoryLimit,
	}, nil
}

// StartDownload begins acquiring the named model (tag optional, e.g. "13b").
// While a job for the same model is active the existing job is returned
// instead of a duplicate.
func (c *Coordinator) StartDownload(modelName, tag string) (Job, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return Job{}, errors.New("model name is required")
	}
	if tag = strings.TrimSpace(tag); tag != "" {
		modelName = modelName + ":" + tag
	}

	c.mu.Lock()
	if c.active == nil {
		c.active = make(map[string]*tracked)
		c.byModel = make(map[string]string)
	}
	if id, ok := c.byModel[modelName]; ok {
		existing := c.active[id]
		c.mu.Unlock()
		return existing.snapshot(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	t := &tracked{
		job: Job{
			ID:        uuid.NewString(),
			ModelName: modelName,
			State:     StateInitializing,
			StartTime: time.Now().UTC(),
		},
		cancel: cancel,
	}
	c.active[t.job.ID] = t
	c.byModel[modelName] = t.job.ID
	c.mu.Unlock()

	metrics.DownloadStarted()
	c.report(t.snapshot())
	go c.run(ctx, t)

	return t.snapshot(), nil
}

// GetProgress returns the job snapshot for id, searching active jobs first
// and history second.
func (c *Coordinator) GetProgress(id string) (Job, bool) {
	c.mu.RLock()
	t, ok := c.active[id]
	c.mu.RUnlock()
	if ok {
		return t.snapshot(), true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, job := range c.history {
		if job.ID == id {
			return job, true
		}
	}
	return Job{}, false
}

// ListActive returns all non-terminal jobs.
func (c *Coordinator) ListActive() []Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Job, 0, len(c.active))
	for _, t := range c.active {
		out = append(out, t.snapshot())
	}
	return out
}

// ListHistory returns up to limit terminal jobs, most recent first.
func (c *Coordinator) ListHistory(limit int) []Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if limit <= 0 || limit > len(c.history) {
		limit = len(c.history)
	}
	out := make([]Job, limit)
	copy(out, c.history[:limit])
	return out
}

// Cancel signals the job's worker to stop. It returns false when the job is
// unknown or already terminal. Cancellation is cooperative: the worker
// observes it between status records, so a terminal state is reached within
// one record-processing cycle.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.RLock()
	t, ok := c.active[id]
	c.mu.RUnlock()
	if !ok || t.terminal() {
		return false
	}

	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Verify issues a minimal synthetic inference against the runtime. A nil
// error means the model is loadable and usable, not just present on disk.
func (c *Coordinator) Verify(ctx context.Context, modelName string) error {
	result, err := c.runtime.Generate(ctx, modelName, verifyPrompt)
	if err != nil {
		return fmt.Errorf("verify %s: %w", modelName, err)
	}
	if strings.TrimSpace(result.Response) == "" {
		return fmt.Errorf("verify %s: runtime returned an empty response", modelName)
	}
	return nil
}

// run is the worker goroutine owning one job.
func (c *Coordinator) run(ctx context.Context, t *tracked) {
	defer func() {
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()

	c.transition(t, StateConnecting)

	var lastReported int64 = -1
	err := c.runtime.Pull(ctx, t.snapshot().ModelName, func(status ollama.PullStatus) {
		c.applyStatus(t, status, &lastReported)
	})

	switch {
	case err == nil:
		c.verifyAndComplete(ctx, t)
	case errors.Is(err, context.DeadlineExceeded):
		c.finalize(t, StateTimedOut, fmt.Sprintf("download exceeded the %s deadline", c.timeout))
	case errors.Is(err, context.Canceled):
		c.finalize(t, StateCancelled, "cancelled by caller")
	default:
		c.finalize(t, StateFailed, err.Error())
	}
}

// applyStatus folds one status record into the job, recomputing the derived
// speed and ETA fields. Records that change nothing observable produce no
// report.
func (c *Coordinator) applyStatus(t *tracked, status ollama.PullStatus, lastReported *int64) {
	t.mu.Lock()
	if t.job.State.Terminal() {
		t.mu.Unlock()
		return
	}

	changed := false
	if t.job.State == StateConnecting {
		t.job.State = StateDownloading
		changed = true
	}

	if status.Total > 0 && status.Completed > 0 && status.Completed >= t.job.BytesDownloaded {
		delta := status.Completed - t.job.BytesDownloaded
		t.job.BytesDownloaded = status.Completed
		t.job.TotalBytes = status.Total
		if t.job.BytesDownloaded > t.job.TotalBytes {
			t.job.BytesDownloaded = t.job.TotalBytes
		}

		elapsed := time.Since(t.job.StartTime).Seconds()
		if elapsed > 0 {
			t.job.SpeedBytesPerSec = float64(t.job.BytesDownloaded) / elapsed
		}
		if t.job.SpeedBytesPerSec > 0 {
			remaining := t.job.TotalBytes - t.job.BytesDownloaded
			t.job.EstimatedSecondsRemaining = float64(remaining) / t.job.SpeedBytesPerSec
		} else {
			t.job.EstimatedSecondsRemaining = 0
		}

		if t.job.BytesDownloaded != *lastReported {
			*lastReported = t.job.BytesDownloaded
			changed = true
		}
		metrics.AddDownloadedBytes(delta)
	}

	snap := t.job
	t.mu.Unlock()

	if changed {
		c.report(snap)
	}
}

func (c *Coordinator) verifyAndComplete(ctx context.Context, t *tracked) {
	c.transition(t, StateVerifying)

	if err := c.Verify(ctx, t.snapshot().ModelName); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			c.finalize(t, StateTimedOut, fmt.Sprintf("download exceeded the %s deadline", c.timeout))
		case errors.Is(err, context.Canceled):
			c.finalize(t, StateCancelled, "cancelled by caller")
		default:
			c.finalize(t, StateFailed, err.Error())
		}
		return
	}

	t.mu.Lock()
	if t.job.TotalBytes > 0 {
		t.job.BytesDownloaded = t.job.TotalBytes
	}
	t.mu.Unlock()

	if c.cache != nil {
		c.cache.Invalidate(modelcache.KeyModelList)
		c.cache.InvalidatePrefix(modelcache.KeyModelInfo)
		c.cache.InvalidatePrefix(modelcache.KeyTaskModel)
	}

	c.finalize(t, StateCompleted, "")
}

// transition moves a non-terminal job to a new non-terminal state and
// reports it.
func (c *Coordinator) transition(t *tracked, state State) {
	t.mu.Lock()
	if t.job.State.Terminal() {
		t.mu.Unlock()
		return
	}
	t.job.State = state
	snap := t.job
	t.mu.Unlock()

	c.report(snap)
}

// finalize applies the terminal state exactly once, reports it, moves the
// job to history, and releases the model's active slot. After this no
// further mutation or report for the job can occur.
func (c *Coordinator) finalize(t *tracked, state State, message string) {
	t.mu.Lock()
	if t.job.State.Terminal() {
		t.mu.Unlock()
		return
	}
	t.job.State = state
	t.job.CompletedTime = time.Now().UTC()
	t.job.Error = message
	snap := t.job
	t.mu.Unlock()

	// Release the registry slot before publishing. The publish can take a
	// network round-trip, and a terminal job must not occupy the model's
	// active slot or show up in ListActive while it does.
	c.mu.Lock()
	delete(c.active, snap.ID)
	delete(c.byModel, snap.ModelName)
	c.history = append([]Job{snap}, c.history...)
	if len(c.history) > c.histCap {
		c.history = c.history[:c.histCap]
	}
	c.mu.Unlock()

	metrics.DownloadFinished()
	metrics.ObserveDownloadCompletion(string(state), snap.CompletedTime.Sub(snap.StartTime))

	c.report(snap)

	if state == StateCompleted {
		logutil.Info("model_download_completed", map[string]interface{}{
			"jobId":    snap.ID,
			"model":    snap.ModelName,
			"bytes":    snap.BytesDownloaded,
			"duration": snap.CompletedTime.Sub(snap.StartTime).String(),
		})
	} else {
		logutil.Info("model_download_finished", map[string]interface{}{
			"jobId":   snap.ID,
			"model":   snap.ModelName,
			"outcome": string(state),
			"error":   message,
		})
	}
}

func (c *Coordinator) report(job Job) {
	if c.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.reporter.Publish(ctx, events.Event{
		ID:        fmt.Sprintf("%s-%d", job.ID, time.Now().UnixNano()),
		Type:      fmt.Sprintf("download.%s", job.State),
		Timestamp: time.Now().UTC(),
		Data:      job,
	}); err != nil {
		logutil.Error("download_progress_publish_failed", err, map[string]interface{}{
			"jobId": job.ID,
		})
	}
}
