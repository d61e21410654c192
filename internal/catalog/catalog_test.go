package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestLoadDirValidProfiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeProfile(t, dir, "review.json", `{
		"task": "code-review",
		"preferredModels": ["codellama:13b", "qwen2.5-coder:7b"],
		"fallbackModel": "llama3:8b"
	}`)
	writeProfile(t, dir, "chat.json", `{
		"task": "chat",
		"preferredModels": ["llama3:8b"]
	}`)

	c := newTestCatalog(t)
	if err := c.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	tasks := c.Tasks()
	if len(tasks) != 2 || tasks[0] != "chat" || tasks[1] != "code-review" {
		t.Fatalf("unexpected tasks: %v", tasks)
	}
}

func TestLoadDirRejectsInvalidProfile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeProfile(t, dir, "broken.json", `{"task": "x", "preferredModels": []}`)

	c := newTestCatalog(t)
	if err := c.LoadDir(dir); err == nil {
		t.Fatal("expected schema validation error for empty preferredModels")
	}
}

func TestLoadDirMissingDirIsEmpty(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	if err := c.LoadDir(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Fatalf("missing dir must not error: %v", err)
	}
	if len(c.Tasks()) != 0 {
		t.Fatal("expected empty catalog")
	}
}

func TestPickModelPreferenceOrder(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	if err := c.AddProfile(Profile{
		Task:            "code-review",
		PreferredModels: []string{"codellama:34b", "codellama:13b"},
		FallbackModel:   "llama3:8b",
	}); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}

	installed := []string{"llama3:8b", "codellama:13b"}
	model, err := c.PickModel("code-review", installed)
	if err != nil {
		t.Fatalf("PickModel: %v", err)
	}
	if model != "codellama:13b" {
		t.Fatalf("expected first installed preference, got %s", model)
	}

	// None of the preferences installed: fall back.
	model, err = c.PickModel("code-review", []string{"llama3:8b"})
	if err != nil {
		t.Fatalf("PickModel: %v", err)
	}
	if model != "llama3:8b" {
		t.Fatalf("expected fallback, got %s", model)
	}

	// Unknown task: first installed model.
	model, err = c.PickModel("summarize", installed)
	if err != nil {
		t.Fatalf("PickModel: %v", err)
	}
	if model != installed[0] {
		t.Fatalf("expected first installed model, got %s", model)
	}

	if _, err := c.PickModel("chat", nil); err == nil {
		t.Fatal("expected error with no installed models")
	}
}

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}
