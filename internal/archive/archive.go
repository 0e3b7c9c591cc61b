// Package archive persists run summaries in the per-user data directory.
package archive

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/quasilyte/gdata/v2"
	"gopkg.in/yaml.v3"
)

const (
	runsObject = "runs"
	indexProp  = "index"
)

// ErrNotFound is returned when a run key has no saved summary.
var ErrNotFound = errors.New("run summary not found")

// RunSummary is what the headless runner keeps of one run.
type RunSummary struct {
	Key           string         `yaml:"key"`
	Map           string         `yaml:"map"`
	Seed          int64          `yaml:"seed"`
	Ticks         int            `yaml:"ticks"`
	Spawned       int            `yaml:"spawned"`
	Arrived       int            `yaml:"arrived"`
	Active        int            `yaml:"active"`
	SpawnFailures int            `yaml:"spawnFailures"`
	GaveUp        int            `yaml:"gaveUp"`
	AvgTrip       float64        `yaml:"avgTrip"`
	Throughput    float64        `yaml:"throughput"`
	States        map[string]int `yaml:"states,omitempty"`
	SavedAt       time.Time      `yaml:"savedAt"`
}

// Archive stores summaries as YAML properties of a gdata object.
type Archive struct {
	m *gdata.Manager
}

// Open opens (creating if needed) the data directory for appName.
func Open(appName string) (*Archive, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	return &Archive{m: m}, nil
}

// Save writes s under s.Key and records the key in the index.
func (a *Archive) Save(s RunSummary) error {
	if s.Key == "" || s.Key == indexProp {
		return fmt.Errorf("invalid run key %q", s.Key)
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := a.m.SaveObjectProp(runsObject, s.Key, data); err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}

	keys, err := a.Keys()
	if err != nil {
		return err
	}
	if slices.Contains(keys, s.Key) {
		return nil
	}
	keys = append(keys, s.Key)
	idx, err := yaml.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal run index: %w", err)
	}
	if err := a.m.SaveObjectProp(runsObject, indexProp, idx); err != nil {
		return fmt.Errorf("failed to save run index: %w", err)
	}
	return nil
}

// Load reads the summary saved under key.
func (a *Archive) Load(key string) (RunSummary, error) {
	if !a.m.ObjectPropExists(runsObject, key) {
		return RunSummary{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	data, err := a.m.LoadObjectProp(runsObject, key)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to load run summary: %w", err)
	}
	var s RunSummary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return RunSummary{}, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}
	return s, nil
}

// Keys lists saved run keys in save order.
func (a *Archive) Keys() ([]string, error) {
	if !a.m.ObjectPropExists(runsObject, indexProp) {
		return nil, nil
	}
	data, err := a.m.LoadObjectProp(runsObject, indexProp)
	if err != nil {
		return nil, fmt.Errorf("failed to load run index: %w", err)
	}
	var keys []string
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run index: %w", err)
	}
	return keys, nil
}
