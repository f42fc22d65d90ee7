// Package experiment classifies action types as read-only based on enabled experiments.
// CRC: crc-ReadOnlyClassifier.md
package experiment

import (
	"sync"

	"github.com/zot/actionq/internal/config"
)

// Classifier answers whether an action type is read-only.
// With no enabled experiment every action type mutates state.
type Classifier struct {
	enabled  map[string]bool            // experiment name -> enabled
	readOnly map[string]map[string]bool // experiment name -> action types
	mu       sync.RWMutex
}

// NewClassifier creates a classifier from configured experiments.
func NewClassifier(experiments []config.ReadOnlyExperiment) *Classifier {
	c := &Classifier{
		enabled:  make(map[string]bool),
		readOnly: make(map[string]map[string]bool),
	}
	for _, exp := range experiments {
		types := make(map[string]bool, len(exp.ActionTypes))
		for _, t := range exp.ActionTypes {
			types[t] = true
		}
		c.readOnly[exp.Name] = types
		c.enabled[exp.Name] = exp.Enabled
	}
	return c
}

// IsReadOnly reports whether any enabled experiment marks actionType read-only.
func (c *Classifier) IsReadOnly(actionType string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, types := range c.readOnly {
		if c.enabled[name] && types[actionType] {
			return true
		}
	}
	return false
}

// SetEnabled toggles an experiment, e.g. when the server pushes experiment state.
// Unknown experiments are ignored.
func (c *Classifier) SetEnabled(name string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.readOnly[name]; ok {
		c.enabled[name] = enabled
	}
}

// Active reports whether any experiment is enabled.
func (c *Classifier) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, on := range c.enabled {
		if on {
			return true
		}
	}
	return false
}
