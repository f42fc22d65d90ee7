// Package schema holds the per-action-type field lists used by the batch serializer.
// CRC: crc-SchemaRegistry.md
// Spec: protocol.md
package schema

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind selects how a property value is coerced on output.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindAmount Kind = "amount" // decimal currency value, emitted as a JSON number
	KindList   Kind = "list"
	KindObject Kind = "object"
	KindAny    Kind = "any"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindAmount, KindList, KindObject, KindAny:
		return true
	}
	return false
}

// FieldSpec declares one serializable property of an action type.
type FieldSpec struct {
	Name      string `yaml:"name"`
	Kind      Kind   `yaml:"kind"`
	OmitEmpty bool   `yaml:"omit_empty"`
}

// File is the YAML layout of a schema file.
type File struct {
	Actions map[string][]FieldSpec `yaml:"actions"`
}

// Registry maps action types to their field lists.
// Safe for concurrent use so a hot loader can replace entries.
type Registry struct {
	types map[string][]FieldSpec
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string][]FieldSpec)}
}

// Register sets the field list for an action type.
// An empty Kind defaults to any.
func (r *Registry) Register(actionType string, fields ...FieldSpec) {
	specs := make([]FieldSpec, len(fields))
	for i, f := range fields {
		if f.Kind == "" {
			f.Kind = KindAny
		}
		specs[i] = f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[actionType] = specs
}

// Fields returns the field list for an action type.
func (r *Registry) Fields(actionType string) ([]FieldSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs, ok := r.types[actionType]
	return specs, ok
}

// Types returns the registered action types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.types))
	for t := range r.types {
		result = append(result, t)
	}
	sort.Strings(result)
	return result
}

// Replace swaps in all entries from other.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	types := make(map[string][]FieldSpec, len(other.types))
	for k, v := range other.types {
		types[k] = v
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.types = types
	r.mu.Unlock()
}

// Parse builds a registry from YAML.
// Fields with an unknown kind are rejected so mistakes surface at load time.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	r := NewRegistry()
	for actionType, fields := range f.Actions {
		seen := make(map[string]bool, len(fields))
		for _, field := range fields {
			if field.Name == "" {
				return nil, fmt.Errorf("action %s: field without name", actionType)
			}
			if seen[field.Name] {
				return nil, fmt.Errorf("action %s: duplicate field %s", actionType, field.Name)
			}
			seen[field.Name] = true
			if field.Kind != "" && !field.Kind.Valid() {
				return nil, fmt.Errorf("action %s: field %s: unknown kind %q", actionType, field.Name, field.Kind)
			}
		}
		r.Register(actionType, fields...)
	}
	return r, nil
}

// LoadFile loads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
