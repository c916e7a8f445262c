// Package scene implements SceneClassifier (C8): a pure-rule classifier
// over a central, deployment-overridable scene_tier_mapping table.
// File-loading shape (os.ReadFile + yaml.Unmarshal) grounded in
// pkg/prompt/loader.go's FileLoader.Load.
package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Type is the scene's coarse classification.
type Type string

const (
	Simple  Type = "SIMPLE"
	Medium  Type = "MEDIUM"
	Complex Type = "COMPLEX"
)

// MemoryPolicy controls how much HybridRetriever work a scene pulls in.
type MemoryPolicy string

const (
	MemoryNone         MemoryPolicy = "none"
	MemoryFactsSummary MemoryPolicy = "facts_summary"
	MemoryFull         MemoryPolicy = "full"
)

// Request is the input SceneClassifier.Classify inspects.
type Request struct {
	Source    string // e.g. "PASSIVE_TRIGGER", "CHAT_INPUT", "TOOL_RESULT", ...
	EventType string
	Payload   map[string]any
}

// Classification is SceneClassifier's output.
type Classification struct {
	SceneID          string
	Type             Type
	DefaultTier      int
	MemoryPolicy     MemoryPolicy
	TimeoutMS        int
}

// Override lets a deployment's scene_tier_mapping table redirect one
// scene's default tier (e.g. a game electing tier 3 on a streak) without
// changing the classifier's rule order.
type Override struct {
	SceneID     string `yaml:"scene_id"`
	DefaultTier int    `yaml:"default_tier"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

// Table is the scene_tier_mapping single source of truth: per-scene
// overrides keyed by scene id.
type Table struct {
	Overrides map[string]Override `yaml:"overrides"`
}

// LoadTable reads and parses a scene_tier_mapping YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: read table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("scene: parse table: %w", err)
	}
	if t.Overrides == nil {
		t.Overrides = make(map[string]Override)
	}
	return &t, nil
}

var simpleEvents = map[string]bool{"click": true, "drag": true, "hover": true, "release": true}
var mediumEvents = map[string]bool{
	"hourly_chime": true, "system_warning": true, "feed_response": true,
	"game_result": true, "weather_update": true,
}

// Classifier is the C8 SceneClassifier. It looks up, never dictates: a
// loaded Table may override any rule's default_tier but never the rule
// order itself.
type Classifier struct {
	table *Table
}

// NewClassifier builds a Classifier over an optional override table
// (nil is valid: every scene uses its rule-determined default).
func NewClassifier(table *Table) *Classifier {
	if table == nil {
		table = &Table{Overrides: make(map[string]Override)}
	}
	return &Classifier{table: table}
}

// Classify applies the spec's ordered rules: first match wins.
func (c *Classifier) Classify(req Request) Classification {
	var result Classification

	switch {
	case req.Source == "PASSIVE_TRIGGER" || simpleEvents[req.EventType]:
		result = Classification{SceneID: sceneID(req), Type: Simple, DefaultTier: 1, MemoryPolicy: MemoryNone, TimeoutMS: 50}
	case mediumEvents[req.EventType]:
		result = Classification{SceneID: sceneID(req), Type: Medium, DefaultTier: 2, MemoryPolicy: MemoryFactsSummary, TimeoutMS: 100}
	default:
		result = Classification{SceneID: sceneID(req), Type: Complex, DefaultTier: 3, MemoryPolicy: MemoryFull, TimeoutMS: 3000}
	}

	if ov, ok := c.table.Overrides[result.SceneID]; ok {
		if ov.DefaultTier != 0 {
			result.DefaultTier = ov.DefaultTier
		}
		if ov.TimeoutMS != 0 {
			result.TimeoutMS = ov.TimeoutMS
		}
	}
	return result
}

func sceneID(req Request) string {
	if req.EventType != "" {
		return req.EventType
	}
	return req.Source
}
