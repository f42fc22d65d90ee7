// CRC: crc-DispatchTrigger.md
// Spec: protocol.md
package queue

import (
	"time"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
)

// Timeouts are the flush deadlines for one batch priority.
// Action is measured from the last action enqueued at the batch priority,
// Batch from when the batch priority was raised (or the last flush).
type Timeouts struct {
	Action time.Duration
	Batch  time.Duration
}

// Trigger decides when pending actions are due.
type Trigger struct {
	ThresholdActions   int
	Timeouts           [protocol.PriorityImmediate]Timeouts // indexed none..high
	FastUpdateInterval time.Duration
}

// NewTrigger builds a trigger from queue settings.
func NewTrigger(cfg config.QueueConfig) Trigger {
	return Trigger{
		ThresholdActions: cfg.ThresholdActions,
		Timeouts: [protocol.PriorityImmediate]Timeouts{
			protocol.PriorityNone:   {cfg.NoneActionTimeout.Duration(), cfg.NoneBatchTimeout.Duration()},
			protocol.PriorityLow:    {cfg.LowActionTimeout.Duration(), cfg.LowBatchTimeout.Duration()},
			protocol.PriorityNormal: {cfg.NormalActionTimeout.Duration(), cfg.NormalBatchTimeout.Duration()},
			protocol.PriorityHigh:   {cfg.HighActionTimeout.Duration(), cfg.HighBatchTimeout.Duration()},
		},
		FastUpdateInterval: cfg.FastUpdateInterval.Duration(),
	}
}

// State is the part of the queue a trigger looks at.
// A zero LastActionTime means no action has arrived at the current batch
// priority since it was raised, so only the batch deadline applies.
type State struct {
	Pending          int
	BatchPriority    protocol.Priority
	LastBatchTime    time.Time
	LastActionTime   time.Time
	FastUpdate       bool
	Force            bool
	HasInboundEvents bool
}

// Evaluate reports whether a batch should be sent at now.
func (t Trigger) Evaluate(s State, now time.Time) bool {
	if s.Force || s.HasInboundEvents || s.Pending > t.ThresholdActions {
		return true
	}
	if s.FastUpdate && now.Sub(s.LastBatchTime) > t.FastUpdateInterval {
		return true
	}
	if s.BatchPriority >= protocol.PriorityImmediate {
		return true
	}
	p := s.BatchPriority
	if p < protocol.PriorityNone {
		p = protocol.PriorityNone
	}
	to := t.Timeouts[p]
	if !s.LastActionTime.IsZero() && now.Sub(s.LastActionTime) > to.Action {
		return true
	}
	return now.Sub(s.LastBatchTime) > to.Batch
}
