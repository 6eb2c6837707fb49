// Package config implements the hot-reloadable RuntimeConfig: process
// period overrides, StatefulProcess buffer limits, and PermissionMatrix
// rule overrides. Watcher re-reads the file when it changes and
// republishes the result; this package does not apply a reloaded config
// to any process tree. Grounded on the teacher's UnifiedBusinessConfig
// New.../Default.../Validate/ApplyDefaults shape
// (engine/config/unified_config.go), paired with fsnotify the way the
// teacher's config/runtime.go hot-reload stub documented but never
// finished.
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/johnwbyrd/aifand/device"
	"github.com/johnwbyrd/aifand/permissions"
)

// ProcessOverride overrides one named Process's tick interval.
type ProcessOverride struct {
	Name       string `yaml:"name"`
	IntervalNs int64  `yaml:"interval_ns"`
}

// StatefulOverride overrides one named StatefulProcess's buffer limits.
type StatefulOverride struct {
	Name             string `yaml:"name"`
	BufferSizeLimit  int    `yaml:"buffer_size_limit"`
	AutoPruneEnabled bool   `yaml:"auto_prune_enabled"`
	MaxAgeNs         int64  `yaml:"max_age_ns"`
}

// RuleOverride is one YAML-serializable PermissionMatrix rule.
type RuleOverride struct {
	Process string `yaml:"process"`
	Device  string `yaml:"device"`
	Allow   bool   `yaml:"allow"`
}

// RuntimeConfig is the hot-reloadable policy document (spec.md §6: "a
// self-describing, JSON-equivalent format"). The Buffer contents and
// transient timing fields never appear here — only the configuration
// surface spec.md §7.4 calls a "configuration error" source.
type RuntimeConfig struct {
	Processes  []ProcessOverride  `yaml:"processes"`
	Stateful   []StatefulOverride `yaml:"stateful"`
	Permission []RuleOverride     `yaml:"permission_matrix"`
}

// New returns an empty RuntimeConfig.
func New() *RuntimeConfig {
	return &RuntimeConfig{}
}

// Load reads and parses a RuntimeConfig from a YAML file, then
// validates it.
func Load(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a RuntimeConfig spec.md §7.4 would call a
// configuration error: non-positive intervals, empty process names,
// undersized buffer limits, or unknown role/device-role names in a
// permission override.
func (c *RuntimeConfig) Validate() error {
	for _, p := range c.Processes {
		if p.Name == "" {
			return fmt.Errorf("config: process override has empty name")
		}
		if p.IntervalNs <= 0 {
			return fmt.Errorf("config: process %q: interval_ns must be > 0", p.Name)
		}
	}
	for _, s := range c.Stateful {
		if s.Name == "" {
			return fmt.Errorf("config: stateful override has empty name")
		}
		if s.BufferSizeLimit < 1 {
			return fmt.Errorf("config: stateful %q: buffer_size_limit must be >= 1", s.Name)
		}
		if s.MaxAgeNs < 0 {
			return fmt.Errorf("config: stateful %q: max_age_ns must be >= 0", s.Name)
		}
	}
	for _, r := range c.Permission {
		if _, err := parseProcessRole(r.Process); err != nil {
			return err
		}
		if _, err := parseDeviceRole(r.Device); err != nil {
			return err
		}
	}
	return nil
}

// ToMatrix converts the permission overrides into a *permissions.Matrix,
// most-specific-first in the order they appear in the document.
func (c *RuntimeConfig) ToMatrix() (*permissions.Matrix, error) {
	rules := make([]permissions.Rule, 0, len(c.Permission))
	for _, r := range c.Permission {
		procRole, err := parseProcessRole(r.Process)
		if err != nil {
			return nil, err
		}
		devRole, err := parseDeviceRole(r.Device)
		if err != nil {
			return nil, err
		}
		rules = append(rules, permissions.Rule{Process: procRole, Device: devRole, Allow: r.Allow})
	}
	return permissions.NewMatrix(rules...), nil
}

// ProcessInterval returns the overridden interval for name, if any.
func (c *RuntimeConfig) ProcessInterval(name string) (int64, bool) {
	for _, p := range c.Processes {
		if p.Name == name {
			return p.IntervalNs, true
		}
	}
	return 0, false
}

func parseProcessRole(s string) (permissions.ProcessRole, error) {
	switch s {
	case "generic":
		return permissions.RoleGeneric, nil
	case "environment":
		return permissions.RoleEnvironment, nil
	case "controller":
		return permissions.RoleController, nil
	default:
		return 0, fmt.Errorf("config: unknown process role %q", s)
	}
}

func parseDeviceRole(s string) (device.Role, error) {
	switch s {
	case "sensor":
		return device.Sensor, nil
	case "actuator":
		return device.Actuator, nil
	default:
		return 0, fmt.Errorf("config: unknown device role %q", s)
	}
}

// Watcher republishes a fresh RuntimeConfig snapshot through an
// atomic.Pointer whenever the underlying file changes, using fsnotify —
// the live-reload pairing the teacher's own config/runtime.go stub
// documented as its intended shape.
type Watcher struct {
	path    string
	current atomic.Pointer[RuntimeConfig]
	watcher *fsnotify.Watcher
	onError func(error)
}

// NewWatcher loads path once and begins watching it for changes.
// onError, if non-nil, is called with every reload or parse failure;
// the previously loaded config remains current until a reload succeeds.
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{path: path, watcher: fw, onError: onError}
	w.current.Store(cfg)
	go w.loop()
	return w, nil
}

// Current returns the most recently successfully loaded RuntimeConfig.
func (w *Watcher) Current() *RuntimeConfig {
	return w.current.Load()
}

// Close stops watching the file.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			w.current.Store(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}
