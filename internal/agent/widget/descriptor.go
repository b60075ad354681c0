package widget

import (
	"embed"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var descriptorFiles embed.FS

// descriptor is one widget type's entry in config/widgets.yaml.
type descriptor struct {
	Enabled       bool `yaml:"enabled"`
	SoftTimeoutMs int  `yaml:"soft_timeout_ms"`
}

// descriptorFile is the top-level shape of config/widgets.yaml.
type descriptorFile struct {
	Widgets map[string]descriptor `yaml:"widgets"`
}

// DescriptorSet gates which widget types the executor runs and, per
// type, overrides the registry-wide soft timeout (spec.md §4.4). A
// widget type absent from the loaded file is treated as enabled with no
// override, so adding a new Widget implementation never silently
// disables it.
type DescriptorSet struct {
	mu      sync.RWMutex
	entries map[string]descriptor
}

// LoadDescriptors reads config/widgets.yaml embedded at build time.
func LoadDescriptors() (*DescriptorSet, error) {
	data, err := descriptorFiles.ReadFile("config/widgets.yaml")
	if err != nil {
		return nil, fmt.Errorf("widget: failed to read descriptor file: %w", err)
	}
	var f descriptorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("widget: failed to parse descriptor file: %w", err)
	}
	return &DescriptorSet{entries: f.Widgets}, nil
}

// Enabled reports whether widgetType may run. Unknown types default to
// enabled.
func (d *DescriptorSet) Enabled(widgetType string) bool {
	if d == nil {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[widgetType]
	if !ok {
		return true
	}
	return e.Enabled
}

// TimeoutFor returns widgetType's configured soft timeout override, or
// fallback if none is set.
func (d *DescriptorSet) TimeoutFor(widgetType string, fallback time.Duration) time.Duration {
	if d == nil {
		return fallback
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[widgetType]
	if !ok || e.SoftTimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(e.SoftTimeoutMs) * time.Millisecond
}
