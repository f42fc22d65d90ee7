// Package protocol implements the action batch wire format.
// CRC: crc-ActionBatch.md
// Spec: protocol.md
package protocol

import (
	"fmt"
	"strings"
)

// Priority influences when a batch is flushed, never the order within it.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityImmediate
)

var priorityNames = []string{"none", "low", "normal", "high", "immediate"}

// String returns the lowercase priority name.
func (p Priority) String() string {
	if p < PriorityNone || p > PriorityImmediate {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority parses a priority name (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	return PriorityNone, fmt.Errorf("unknown priority %q", s)
}

// ParsePrioritySuffix extracts priority from an action type suffix.
// Returns base action type and priority.
// Examples: "spin:immediate" -> ("spin", PriorityImmediate)
//
//	"collect_bonus" -> ("collect_bonus", PriorityNormal)
func ParsePrioritySuffix(actionType string) (string, Priority) {
	i := strings.LastIndexByte(actionType, ':')
	if i < 0 {
		return actionType, PriorityNormal
	}
	p, err := ParsePriority(actionType[i+1:])
	if err != nil {
		return actionType, PriorityNormal
	}
	return actionType[:i], p
}

// UnmarshalText lets priorities appear by name in YAML and TOML files.
func (p *Priority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
