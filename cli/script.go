package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zot/actionq/internal/protocol"
)

// Script is a YAML description of what a client does.
type Script struct {
	Client   string `yaml:"client"`
	Sequence int64  `yaml:"sequence"`
	Steps    []Step `yaml:"steps"`
}

// Step is one script entry; exactly one of its verbs is set.
type Step struct {
	// Enqueue is an action type, optionally with a ":priority" suffix.
	Enqueue    string         `yaml:"enqueue"`
	Priority   string         `yaml:"priority"`
	Properties map[string]any `yaml:"properties"`

	Wait          string  `yaml:"wait"`
	FastUpdate    *string `yaml:"fast_update"`
	Communication *bool   `yaml:"communication"`
	Flush         bool    `yaml:"flush"`
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, step := range s.Steps {
		if step.Wait != "" {
			if _, err := time.ParseDuration(step.Wait); err != nil {
				return nil, fmt.Errorf("%s: step %d: %w", path, i+1, err)
			}
		}
		if step.Priority != "" {
			if _, err := protocol.ParsePriority(step.Priority); err != nil {
				return nil, fmt.Errorf("%s: step %d: %w", path, i+1, err)
			}
		}
	}
	return &s, nil
}

// Action builds the step's action and its priority.
// An explicit priority field overrides a type suffix.
func (st Step) Action() (*protocol.Action, protocol.Priority) {
	actionType, p := protocol.ParsePrioritySuffix(st.Enqueue)
	if st.Priority != "" {
		p, _ = protocol.ParsePriority(st.Priority)
	}
	a := protocol.NewAction(actionType)
	names := make([]string, 0, len(st.Properties))
	for name := range st.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.Set(name, st.Properties[name])
	}
	return a, p
}

// WaitDuration returns the step's pause, zero when none.
func (st Step) WaitDuration() time.Duration {
	d, _ := time.ParseDuration(st.Wait)
	return d
}
