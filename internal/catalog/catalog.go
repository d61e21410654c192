// Package catalog loads task profiles: which models the product prefers for
// each analysis task, in priority order.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// profileSchema is the JSON schema every task profile must satisfy.
const profileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["task", "preferredModels"],
  "properties": {
    "task": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "preferredModels": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 1
    },
    "fallbackModel": {"type": "string"},
    "promptHint": {"type": "string"}
  },
  "additionalProperties": false
}`

// Profile describes the model preferences for one task.
type Profile struct {
	Task            string   `json:"task"`
	Description     string   `json:"description,omitempty"`
	PreferredModels []string `json:"preferredModels"`
	FallbackModel   string   `json:"fallbackModel,omitempty"`
	PromptHint      string   `json:"promptHint,omitempty"`
}

// Catalog holds the loaded task profiles.
type Catalog struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	schema   *gojsonschema.Schema
}

// New creates an empty catalog.
func New() (*Catalog, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(profileSchema))
	if err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	return &Catalog{
		profiles: make(map[string]Profile),
		schema:   schema,
	}, nil
}

// LoadDir reads every *.json profile under dir, validating each against the
// profile schema. A missing directory is not an error; the catalog simply
// stays empty and PickModel falls back to the installed set.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read task profile dir: %w", err)
	}

	loaded := make(map[string]Profile)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		profile, err := c.loadProfile(path)
		if err != nil {
			return err
		}
		loaded[profile.Task] = *profile
	}

	c.mu.Lock()
	c.profiles = loaded
	c.mu.Unlock()
	return nil
}

// AddProfile validates and registers a single profile.
func (c *Catalog) AddProfile(profile Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	if err := c.validateBytes(data, profile.Task); err != nil {
		return err
	}
	c.mu.Lock()
	c.profiles[profile.Task] = profile
	c.mu.Unlock()
	return nil
}

// Tasks lists the known task names, sorted.
func (c *Catalog) Tasks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.profiles))
	for task := range c.profiles {
		out = append(out, task)
	}
	sort.Strings(out)
	return out
}

// Profile returns the profile for a task.
func (c *Catalog) Profile(task string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[task]
	return p, ok
}

// PickModel selects the best model for a task from the installed set: the
// first preferred model that is installed, else the profile's fallback when
// installed, else the first installed model.
func (c *Catalog) PickModel(task string, installed []string) (string, error) {
	if len(installed) == 0 {
		return "", fmt.Errorf("no models installed")
	}
	have := make(map[string]bool, len(installed))
	for _, name := range installed {
		have[name] = true
	}

	c.mu.RLock()
	profile, ok := c.profiles[task]
	c.mu.RUnlock()
	if ok {
		for _, candidate := range profile.PreferredModels {
			if have[candidate] {
				return candidate, nil
			}
		}
		if profile.FallbackModel != "" && have[profile.FallbackModel] {
			return profile.FallbackModel, nil
		}
	}
	return installed[0], nil
}

func (c *Catalog) loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read task profile %s: %w", path, err)
	}
	if err := c.validateBytes(data, path); err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode task profile %s: %w", path, err)
	}
	return &profile, nil
}

func (c *Catalog) validateBytes(data []byte, subject string) error {
	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate task profile %s: %w", subject, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("task profile %s is invalid: %s", subject, strings.Join(msgs, "; "))
	}
	return nil
}
