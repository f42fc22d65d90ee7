// CRC: crc-ActionBatch.md
// Spec: protocol.md
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Common fields emitted for every action.
const (
	FieldSortOrder = "sort_order"
	FieldType      = "type"
)

// Batch is the outbound document: {"actions":[...]}.
// Each entry keeps field order: sort_order, type, then schema fields.
type Batch struct {
	Actions []*orderedmap.OrderedMap[string, any] `json:"actions"`
}

// Len returns the number of actions in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Actions)
}

// SortOrders returns the sort_order of each action in batch order.
func (b *Batch) SortOrders() []int64 {
	if b == nil {
		return nil
	}
	result := make([]int64, 0, len(b.Actions))
	for _, a := range b.Actions {
		v, _ := a.Get(FieldSortOrder)
		n, _ := v.(int64)
		result = append(result, n)
	}
	return result
}

// Encode serializes the batch to JSON.
func (b *Batch) Encode() ([]byte, error) {
	if b.Actions == nil {
		return json.Marshal(&Batch{Actions: []*orderedmap.OrderedMap[string, any]{}})
	}
	return json.Marshal(b)
}

// ActionHeader holds the common fields of a received action.
type ActionHeader struct {
	SortOrder int64  `json:"sort_order"`
	Type      string `json:"type"`
}

// ReceivedAction is one action parsed from a batch, with its raw JSON.
type ReceivedAction struct {
	ActionHeader
	Raw json.RawMessage
}

// ParseBatch parses a batch document.
func ParseBatch(data []byte) ([]ReceivedAction, error) {
	var wire struct {
		Actions []json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Actions == nil {
		return nil, errors.New("batch has no actions field")
	}
	result := make([]ReceivedAction, len(wire.Actions))
	for i, raw := range wire.Actions {
		if err := json.Unmarshal(raw, &result[i].ActionHeader); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		result[i].Raw = raw
	}
	return result, nil
}

// Event is an inbound server event.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventBatch is the server's response document: {"events":[...]}.
type EventBatch struct {
	Events []Event `json:"events"`
}

// NewEvent creates an event with the given type and data.
func NewEvent(eventType string, data interface{}) (Event, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
	}
	return Event{Type: eventType, Data: raw}, nil
}

// ParseEvents extracts events from a response body without decoding
// unrelated fields. A body without an events array yields no events.
func ParseEvents(data []byte) ([]Event, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var events []Event
	var inner error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if inner != nil {
			return
		}
		if err != nil {
			inner = err
			return
		}
		if dataType != jsonparser.Object {
			inner = fmt.Errorf("event is %s, not object", dataType)
			return
		}
		eventType, err := jsonparser.GetString(value, "type")
		if err != nil {
			inner = fmt.Errorf("event type: %w", err)
			return
		}
		ev := Event{Type: eventType}
		if raw, dt, _, err := jsonparser.Get(value, "data"); err == nil {
			if dt == jsonparser.String {
				// jsonparser strips the quotes but keeps escapes
				raw = append(append([]byte{'"'}, raw...), '"')
			}
			ev.Data = append(json.RawMessage(nil), raw...)
		}
		events = append(events, ev)
	}, "events")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return events, inner
}
