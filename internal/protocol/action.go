// CRC: crc-ActionBatch.md
// Spec: protocol.md
package protocol

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties is an insertion-ordered property bag.
type Properties = orderedmap.OrderedMap[string, any]

// Action is one client-to-server state mutation.
// SortOrder is assigned by the queue on enqueue.
type Action struct {
	SortOrder  int64
	Type       string
	Priority   Priority
	Properties *Properties
}

// NewAction creates an action with an empty property bag.
func NewAction(actionType string) *Action {
	return &Action{
		Type:       actionType,
		Properties: orderedmap.New[string, any](),
	}
}

// Set sets a property and returns the action for chaining.
func (a *Action) Set(name string, value any) *Action {
	if a.Properties == nil {
		a.Properties = orderedmap.New[string, any]()
	}
	a.Properties.Set(name, value)
	return a
}

// Get returns a property value.
func (a *Action) Get(name string) (any, bool) {
	if a.Properties == nil {
		return nil, false
	}
	return a.Properties.Get(name)
}

// PropertyNames returns property names in insertion order.
func (a *Action) PropertyNames() []string {
	if a.Properties == nil {
		return nil
	}
	names := make([]string, 0, a.Properties.Len())
	for pair := a.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
