package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/helixcode-ai/hx-model-manager/internal/catalog"
	"github.com/helixcode-ai/hx-model-manager/internal/download"
	"github.com/helixcode-ai/hx-model-manager/internal/modelcache"
	"github.com/helixcode-ai/hx-model-manager/internal/ollama"
	"github.com/helixcode-ai/hx-model-manager/internal/perf"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCoordinator struct {
	startResp  download.Job
	startErr   error
	progress   map[string]download.Job
	active     []download.Job
	history    []download.Job
	cancelResp bool
	verifyErr  error

	mu          sync.Mutex
	startCalls  int
	cancelCalls []string
}

func (f *fakeCoordinator) StartDownload(modelName, tag string) (download.Job, error) {
	f.mu.Lock()
	f.startCalls++
	f.mu.Unlock()
	return f.startResp, f.startErr
}

func (f *fakeCoordinator) GetProgress(id string) (download.Job, bool) {
	job, ok := f.progress[id]
	return job, ok
}

func (f *fakeCoordinator) ListActive() []download.Job    { return f.active }
func (f *fakeCoordinator) ListHistory(int) []download.Job { return f.history }

func (f *fakeCoordinator) Cancel(id string) bool {
	f.mu.Lock()
	f.cancelCalls = append(f.cancelCalls, id)
	f.mu.Unlock()
	return f.cancelResp
}

func (f *fakeCoordinator) Verify(context.Context, string) error { return f.verifyErr }

type fakeRuntime struct {
	models      []ollama.Model
	listErr     error
	generate    map[string]string
	generateErr error

	mu        sync.Mutex
	listCalls int
}

func (f *fakeRuntime) List(context.Context) ([]ollama.Model, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.models, f.listErr
}

func (f *fakeRuntime) Show(_ context.Context, name string) (*ollama.ModelDetails, error) {
	return &ollama.ModelDetails{Parameters: "13B"}, nil
}

func (f *fakeRuntime) Delete(context.Context, string) error { return nil }

func (f *fakeRuntime) Generate(_ context.Context, model, prompt string) (*ollama.GenerateResult, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	response := "ok"
	for needle, answer := range f.generate {
		if strings.Contains(prompt, needle) {
			response = answer
		}
	}
	return &ollama.GenerateResult{Model: model, Response: response, Done: true, EvalCount: 7}, nil
}

func newTestHandler(t *testing.T, coordinator *fakeCoordinator, runtime *fakeRuntime) *Handler {
	t.Helper()
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	if err := cat.AddProfile(catalog.Profile{
		Task:            "code-review",
		PreferredModels: []string{"codellama:13b"},
	}); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	return New(coordinator, runtime, modelcache.New(), perf.New(perf.Options{}), cat, nil, Options{Version: "test"})
}

func doRequest(t *testing.T, handler gin.HandlerFunc, method, target, body string, params ...gin.Param) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	handler(c)
	return w
}

func TestListModelsUsesCache(t *testing.T) {
	t.Parallel()

	runtime := &fakeRuntime{models: []ollama.Model{{Name: "codellama:13b", Size: 7_365_960_935}}}
	handler := newTestHandler(t, &fakeCoordinator{}, runtime)

	for i := 0; i < 3; i++ {
		w := doRequest(t, handler.ListModels, http.MethodGet, "/models", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}

	runtime.mu.Lock()
	calls := runtime.listCalls
	runtime.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single runtime list call, got %d", calls)
	}
}

func TestListModelsRuntimeDown(t *testing.T) {
	t.Parallel()

	runtime := &fakeRuntime{listErr: ollama.ErrConnection}
	handler := newTestHandler(t, &fakeCoordinator{}, runtime)

	w := doRequest(t, handler.ListModels, http.MethodGet, "/models", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestStartDownloadAccepted(t *testing.T) {
	t.Parallel()

	coordinator := &fakeCoordinator{
		startResp: download.Job{ID: "job-1", ModelName: "codellama:13b", State: download.StateInitializing},
	}
	handler := newTestHandler(t, coordinator, &fakeRuntime{})

	w := doRequest(t, handler.StartDownload, http.MethodPost, "/models/download", `{"model":"codellama","tag":"13b"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var job download.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if job.ID != "job-1" || job.State != download.StateInitializing {
		t.Fatalf("unexpected job payload: %+v", job)
	}
}

func TestStartDownloadRequiresModel(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, &fakeCoordinator{}, &fakeRuntime{})
	w := doRequest(t, handler.StartDownload, http.MethodPost, "/models/download", `{"tag":"13b"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetDownloadNotFound(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, &fakeCoordinator{progress: map[string]download.Job{}}, &fakeRuntime{})
	w := doRequest(t, handler.GetDownload, http.MethodGet, "/downloads/ghost", "", gin.Param{Key: "id", Value: "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCancelDownloadStatuses(t *testing.T) {
	t.Parallel()

	completed := download.Job{ID: "done", State: download.StateCompleted}
	coordinator := &fakeCoordinator{
		cancelResp: false,
		progress:   map[string]download.Job{"done": completed},
	}
	handler := newTestHandler(t, coordinator, &fakeRuntime{})

	// Known but terminal: conflict.
	w := doRequest(t, handler.CancelDownload, http.MethodPost, "/downloads/done/cancel", "", gin.Param{Key: "id", Value: "done"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	// Unknown: not found.
	w = doRequest(t, handler.CancelDownload, http.MethodPost, "/downloads/ghost/cancel", "", gin.Param{Key: "id", Value: "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	// Active: ok.
	coordinator.cancelResp = true
	w = doRequest(t, handler.CancelDownload, http.MethodPost, "/downloads/active/cancel", "", gin.Param{Key: "id", Value: "active"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestDownloadHistoryRejectsBadLimit(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, &fakeCoordinator{}, &fakeRuntime{})
	w := doRequest(t, handler.DownloadHistory, http.MethodGet, "/downloads/history?limit=banana", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestVerifyModelReportsFailure(t *testing.T) {
	t.Parallel()

	coordinator := &fakeCoordinator{verifyErr: errors.New("runtime returned an empty response")}
	handler := newTestHandler(t, coordinator, &fakeRuntime{})

	w := doRequest(t, handler.VerifyModel, http.MethodPost, "/models/verify", `{"model":"codellama:13b"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Verified bool   `json:"verified"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Verified || body.Error == "" {
		t.Fatalf("unexpected verify payload: %+v", body)
	}
}

func TestModelMetricsNotFoundWithoutSamples(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(t, &fakeCoordinator{}, &fakeRuntime{})
	w := doRequest(t, handler.ModelMetrics, http.MethodGet, "/metrics/models/codellama:13b", "", gin.Param{Key: "name", Value: "codellama:13b"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAnalyzePicksPreferredModelAndRecordsSample(t *testing.T) {
	t.Parallel()

	runtime := &fakeRuntime{
		models: []ollama.Model{
			{Name: "llama3:8b"},
			{Name: "codellama:13b"},
		},
		generate: map[string]string{
			"Identify the programming language": "Go",
		},
	}
	coordinator := &fakeCoordinator{}
	handler := newTestHandler(t, coordinator, runtime)

	w := doRequest(t, handler.Analyze, http.MethodPost, "/analyze", `{"task":"code-review","content":"func main() {}"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Model    string `json:"model"`
		Language string `json:"language"`
		Tokens   int    `json:"tokens"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Model != "codellama:13b" {
		t.Fatalf("expected preferred model, got %s", body.Model)
	}
	if body.Language != "go" {
		t.Fatalf("expected detected language go, got %q", body.Language)
	}

	waitForSample(t, handler, "codellama:13b")
}

func waitForSample(t *testing.T, handler *Handler, model string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			t.Fatal("performance sample never recorded")
		case <-ticker.C:
			if handler.tracker.GetMetrics(model) != nil {
				return
			}
		}
	}
}
