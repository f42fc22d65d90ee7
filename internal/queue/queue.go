// Package queue accumulates outbound actions and decides when to send them.
// CRC: crc-ActionQueue.md
// Spec: protocol.md
// Sequence: seq-action-flush.md
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
)

var (
	// ErrSpinInFlight rejects a second spin before the first was flushed.
	ErrSpinInFlight = errors.New("spin action already in flight")
	// ErrCommunicationDisabled rejects actions while the session can't talk to the server.
	ErrCommunicationDisabled = errors.New("communication disabled")
	// ErrAwaitingResponse means the previous batch has not been answered yet.
	ErrAwaitingResponse = errors.New("awaiting response to previous batch")
)

// Transport sends batches to the server.
// Send is asynchronous; the response's events land in an inbound queue.
type Transport interface {
	Send(ctx context.Context, batch *protocol.Batch) error
	SendSync(batch *protocol.Batch) error
	IsAwaitingResponse() bool
	HasInboundEvents() bool
}

// ReadOnlyClassifier reports action types that must not advance the sequence.
type ReadOnlyClassifier interface {
	IsReadOnly(actionType string) bool
}

// Gate reports whether the session may talk to the server.
type Gate interface {
	CanCommunicate() bool
}

// Queue holds pending actions between flushes.
// It is not safe for concurrent use: the host runs every call on one executor.
type Queue struct {
	config     *config.Config
	trigger    Trigger
	serializer *protocol.Serializer
	transport  Transport
	classifier ReadOnlyClassifier
	gate       Gate
	now        func() time.Time
	spinType   string

	pending        []*protocol.Action
	lastSequence   int64
	batchPriority  protocol.Priority
	lastBatchTime  time.Time
	lastActionTime time.Time
	spinInFlight   bool
	batchCount     int

	fastUpdate       bool
	fastUpdateStart  time.Time
	fastUpdateWatch  string
	fastUpdateWindow time.Duration
}

// New creates a queue. transport may be nil for offline encoding.
func New(cfg *config.Config, serializer *protocol.Serializer, transport Transport) *Queue {
	q := &Queue{
		config:           cfg,
		trigger:          NewTrigger(cfg.Queue),
		serializer:       serializer,
		transport:        transport,
		now:              time.Now,
		spinType:         cfg.Queue.SpinType,
		fastUpdateWindow: cfg.Queue.FastUpdateWindow.Duration(),
	}
	q.resetTimers()
	return q
}

// SetClock replaces the time source and restarts the timers from it.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
	q.resetTimers()
}

// SetClassifier sets the read-only classifier.
func (q *Queue) SetClassifier(c ReadOnlyClassifier) {
	q.classifier = c
}

// SetGate sets the communication gate.
func (q *Queue) SetGate(g Gate) {
	q.gate = g
}

// SetSequence seeds the sequence counter, e.g. from a login response.
func (q *Queue) SetSequence(n int64) {
	q.lastSequence = n
}

// Enqueue takes ownership of a and schedules it with priority p.
// A rejected action is discarded.
func (q *Queue) Enqueue(a *protocol.Action, p protocol.Priority) error {
	if q.gate != nil && !q.gate.CanCommunicate() {
		q.config.Log(2, "ActionQueue: dropping %s, communication disabled", a.Type)
		return ErrCommunicationDisabled
	}

	if q.spinType != "" && a.Type == q.spinType {
		if q.spinInFlight {
			q.config.Error("ActionQueue: rejecting %s, a spin is already in flight", a.Type)
			return ErrSpinInFlight
		}
		q.spinInFlight = true
	}

	if q.classifier != nil && q.classifier.IsReadOnly(a.Type) {
		a.SortOrder = q.lastSequence
	} else {
		q.lastSequence++
		a.SortOrder = q.lastSequence
	}
	a.Priority = p

	now := q.now()
	switch {
	case p > q.batchPriority:
		q.batchPriority = p
		q.lastBatchTime = now
		q.lastActionTime = time.Time{}
	case p == q.batchPriority:
		q.lastActionTime = now
	}

	q.pending = append(q.pending, a)
	sort.SliceStable(q.pending, func(i, j int) bool {
		return q.pending[i].SortOrder < q.pending[j].SortOrder
	})

	q.config.Log(3, "ActionQueue: queued %s sort_order=%d priority=%s", a.Type, a.SortOrder, p)
	return nil
}

// ShouldFlush reports whether pending actions are due now.
func (q *Queue) ShouldFlush(force, hasInboundEvents bool) bool {
	return q.trigger.Evaluate(q.State(force, hasInboundEvents), q.now())
}

// State returns a snapshot for the trigger.
func (q *Queue) State(force, hasInboundEvents bool) State {
	return State{
		Pending:          len(q.pending),
		BatchPriority:    q.batchPriority,
		LastBatchTime:    q.lastBatchTime,
		LastActionTime:   q.lastActionTime,
		FastUpdate:       q.fastUpdate,
		Force:            force,
		HasInboundEvents: hasInboundEvents,
	}
}

// Flush serializes all pending actions and resets the batch window.
// Serializer problems are logged; the batch is still produced.
func (q *Queue) Flush() (*protocol.Batch, error) {
	if q.transport != nil && q.transport.IsAwaitingResponse() {
		return nil, ErrAwaitingResponse
	}

	batch, warnings := q.serializer.Encode(q.pending)
	for _, w := range warnings {
		q.config.Warn("ActionQueue: %v", w)
	}

	q.batchCount++
	q.config.Log(2, "ActionQueue: BATCH %d actions=%d priority=%s", q.batchCount, batch.Len(), q.batchPriority)

	q.pending = nil
	q.batchPriority = protocol.PriorityNone
	q.spinInFlight = false
	q.resetTimers()
	q.expireFastUpdate()
	return batch, nil
}

// ProcessPendingActions is called once per host tick.
// Batches go out even when empty so the server can answer with events.
func (q *Queue) ProcessPendingActions(ctx context.Context, force bool) error {
	if q.gate != nil && !q.gate.CanCommunicate() {
		if len(q.pending) > 0 || q.spinInFlight {
			q.Drop()
		}
		return nil
	}
	if q.transport == nil || q.transport.IsAwaitingResponse() {
		return nil
	}
	if !q.ShouldFlush(force, q.transport.HasInboundEvents()) {
		return nil
	}

	batch, err := q.Flush()
	if err != nil {
		return err
	}
	if err := q.transport.Send(ctx, batch); err != nil {
		q.config.Error("ActionQueue: send failed, %d actions lost: %v", batch.Len(), err)
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// FlushForExit sends pending actions synchronously at shutdown.
// Best effort: no retry, and nothing is sent while a batch is outstanding.
func (q *Queue) FlushForExit() error {
	if q.transport == nil || len(q.pending) == 0 || q.transport.IsAwaitingResponse() {
		return nil
	}
	if q.gate != nil && !q.gate.CanCommunicate() {
		return nil
	}

	batch, err := q.Flush()
	if err != nil {
		q.config.Error("ActionQueue: exit flush: %v", err)
		return err
	}
	if err := q.transport.SendSync(batch); err != nil {
		q.config.Error("ActionQueue: exit flush, %d actions lost: %v", batch.Len(), err)
		return fmt.Errorf("exit flush: %w", err)
	}
	q.config.Log(1, "ActionQueue: exit flush sent %d actions", batch.Len())
	return nil
}

// Drop silently discards everything pending, including the spin guard.
func (q *Queue) Drop() {
	if n := len(q.pending); n > 0 {
		q.config.Log(2, "ActionQueue: dropped %d pending actions", n)
	}
	q.pending = nil
	q.batchPriority = protocol.PriorityNone
	q.spinInFlight = false
	q.resetTimers()
}

// Pending returns a copy of the pending actions in sort order.
func (q *Queue) Pending() []*protocol.Action {
	result := make([]*protocol.Action, len(q.pending))
	copy(result, q.pending)
	return result
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	return len(q.pending)
}

// BatchPriority returns the highest priority pending since the last flush.
func (q *Queue) BatchPriority() protocol.Priority {
	return q.batchPriority
}

// SpinInFlight reports whether a spin is waiting to be flushed.
func (q *Queue) SpinInFlight() bool {
	return q.spinInFlight
}

// LastSequence returns the most recently assigned mutating sequence number.
func (q *Queue) LastSequence() int64 {
	return q.lastSequence
}

func (q *Queue) resetTimers() {
	now := q.now()
	q.lastBatchTime = now
	q.lastActionTime = now
}
