// CRC: crc-DevServer.md
// Spec: protocol.md
package server

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
	"github.com/zot/actionq/internal/session"
)

// ErrSortOrderRegression rejects a batch whose sort orders go backwards.
var ErrSortOrderRegression = errors.New("sort_order regression")

// Event types the dev server answers with.
const (
	EventSpinResult = "spin_result"
	EventAck        = "ack"
)

// Stats counts what the dev server has seen.
type Stats struct {
	Batches  int64 `json:"batches"`
	Actions  int64 `json:"actions"`
	Rejected int64 `json:"rejected"`
	Sessions int   `json:"sessions"`
}

// Responder checks incoming batches and builds the events to answer with.
// Safe for concurrent use; per-client state lives in the session manager.
type Responder struct {
	config   *config.Config
	sessions *session.Manager
	spinType string
	batches  atomic.Int64
	actions  atomic.Int64
	rejected atomic.Int64
}

// NewResponder creates a responder backed by sessions.
func NewResponder(cfg *config.Config, sessions *session.Manager) *Responder {
	return &Responder{
		config:   cfg,
		sessions: sessions,
		spinType: cfg.Queue.SpinType,
	}
}

// Respond handles one batch document from clientID.
func (r *Responder) Respond(clientID string, data []byte) (*protocol.EventBatch, error) {
	actions, err := protocol.ParseBatch(data)
	if err != nil {
		r.rejected.Add(1)
		return nil, fmt.Errorf("parse batch: %w", err)
	}

	sess := r.sessions.GetOrCreate(clientID)
	orders := make([]int64, len(actions))
	for i, a := range actions {
		orders[i] = a.SortOrder
	}
	if bad, ok := sess.ObserveSortOrders(orders); !ok {
		r.rejected.Add(1)
		r.config.Warn("DevServer: client %s sent sort_order %d after %d", clientID, bad, sess.LastSortOrder())
		return nil, fmt.Errorf("%w: %d after %d", ErrSortOrderRegression, bad, sess.LastSortOrder())
	}

	n := r.batches.Add(1)
	r.actions.Add(int64(len(actions)))
	r.config.Log(2, "DevServer: batch %d from %s, %d actions", n, clientID, len(actions))

	result := &protocol.EventBatch{Events: []protocol.Event{}}
	for _, a := range actions {
		r.config.Log(3, "DevServer:   [%d] %s", a.SortOrder, a.Type)
		if a.Type != r.spinType {
			continue
		}
		ev, err := spinResult(a)
		if err != nil {
			r.config.Warn("DevServer: spin %d: %v", a.SortOrder, err)
			continue
		}
		result.Events = append(result.Events, ev)
	}

	// an empty poll gets no ack; the client flushes again whenever events arrive
	if len(actions) == 0 {
		return result, nil
	}
	ack, err := protocol.NewEvent(EventAck, map[string]any{
		"received":        len(actions),
		"last_sort_order": sess.LastSortOrder(),
	})
	if err != nil {
		return nil, err
	}
	result.Events = append(result.Events, ack)
	return result, nil
}

// Stats returns a snapshot of the counters.
func (r *Responder) Stats() Stats {
	return Stats{
		Batches:  r.batches.Load(),
		Actions:  r.actions.Load(),
		Rejected: r.rejected.Load(),
		Sessions: r.sessions.Count(),
	}
}

// spinResult pays sort_order mod 5 times the wager, so replays are deterministic.
func spinResult(a protocol.ReceivedAction) (protocol.Event, error) {
	wager := decimal.Zero
	if raw, dt, _, err := jsonparser.Get(a.Raw, "wager"); err == nil && dt != jsonparser.Null {
		w, err := decimal.NewFromString(string(raw))
		if err != nil {
			return protocol.Event{}, fmt.Errorf("wager %q: %w", raw, err)
		}
		wager = w
	}
	win := wager.Mul(decimal.NewFromInt(a.SortOrder % 5))
	return protocol.NewEvent(EventSpinResult, map[string]any{
		"sort_order": a.SortOrder,
		"wager":      wager.String(),
		"win":        win.String(),
	})
}
