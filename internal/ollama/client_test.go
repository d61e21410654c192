package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPullStreamsStatusRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req pullRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode pull request: %v", err)
		}
		if req.Name != "codellama:13b" || !req.Stream {
			t.Errorf("unexpected pull request: %+v", req)
		}
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `not json at all`)
		fmt.Fprintln(w, `{"status":"downloading","completed":512,"total":2048}`)
		fmt.Fprintln(w, `{"status":"downloading","completed":2048,"total":2048}`)
		fmt.Fprintln(w, `{"status":"success"}`)
		flusher.Flush()
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	var records []PullStatus
	err := client.Pull(context.Background(), "codellama:13b", func(s PullStatus) {
		records = append(records, s)
	})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}

	// The bad line is skipped, not surfaced.
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d: %+v", len(records), records)
	}
	if records[1].Completed != 512 || records[1].Total != 2048 {
		t.Fatalf("unexpected progress record: %+v", records[1])
	}
	if !records[3].Succeeded() {
		t.Fatalf("expected final record to signal success, got %+v", records[3])
	}
}

func TestPullSurfacesStreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Pull(context.Background(), "nope:latest", nil)
	if err == nil {
		t.Fatal("expected error from error record")
	}
}

func TestPullHonorsCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"status":"downloading","completed":1,"total":100}`)
		flusher.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL)

	got := make(chan error, 1)
	go func() {
		got <- client.Pull(ctx, "slow:latest", func(PullStatus) { cancel() })
	}()

	select {
	case err := <-got:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pull did not observe cancellation")
	}
}

func TestPullConnectionError(t *testing.T) {
	t.Parallel()

	client := NewClient("http://127.0.0.1:1")
	err := client.Pull(context.Background(), "any", nil)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestGenerateReturnsResultAndTokens(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(GenerateResult{
			Model:     "codellama:13b",
			Response:  "ok",
			Done:      true,
			EvalCount: 12,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	result, err := client.Generate(context.Background(), "codellama:13b", "Reply with OK")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Response != "ok" || result.EvalCount != 12 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGenerateStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Generate(context.Background(), "ghost", "hi")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", statusErr.Code)
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintln(w, `{"models":[{"name":"codellama:13b","size":7365960935},{"name":"qwen2.5-coder:7b","size":4683087332}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	models, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 2 || models[0].Name != "codellama:13b" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestDeleteModel(t *testing.T) {
	t.Parallel()

	var gotMethod, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		var req nameRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotName = req.Name
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.Delete(context.Background(), "old:latest"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotName != "old:latest" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotName)
	}
}
