// Package tick drives an action queue from a periodic host loop.
// CRC: crc-TickHost.md
// Sequence: seq-action-flush.md, seq-fast-update.md
package tick

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
	"github.com/zot/actionq/internal/queue"
	"github.com/zot/actionq/internal/transport"
)

// EventHandler runs on the host executor and may use the queue directly.
type EventHandler func(q *queue.Queue, ev protocol.Event)

// Host owns a queue and serializes all access to it on one executor.
// Transports run their own goroutines; their events come back through the inbox.
type Host struct {
	config   *config.Config
	queue    *queue.Queue
	inbox    *transport.EventQueue
	exec     *Executor
	handlers map[string][]EventHandler
	anyEvent []EventHandler
	mu       sync.RWMutex
	once     sync.Once
}

// NewHost starts an executor for q. inbox may be nil when nothing answers.
func NewHost(cfg *config.Config, q *queue.Queue, inbox *transport.EventQueue) *Host {
	return &Host{
		config:   cfg,
		queue:    q,
		inbox:    inbox,
		exec:     NewExecutor(),
		handlers: make(map[string][]EventHandler),
	}
}

// On registers fn for events of eventType; an empty type matches every event.
func (h *Host) On(eventType string, fn EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if eventType == "" {
		h.anyEvent = append(h.anyEvent, fn)
		return
	}
	h.handlers[eventType] = append(h.handlers[eventType], fn)
}

// DoSync runs fn on the executor and waits for it.
// It must not be called from an event handler.
func (h *Host) DoSync(fn func(q *queue.Queue) error) error {
	_, err := SvcSync(h.exec, func() (struct{}, error) {
		return struct{}{}, fn(h.queue)
	})
	return err
}

// Enqueue adds an action from any goroutine.
func (h *Host) Enqueue(a *protocol.Action, p protocol.Priority) error {
	return h.DoSync(func(q *queue.Queue) error {
		return q.Enqueue(a, p)
	})
}

// Tick runs one host iteration: flush if due, then deliver inbound events.
func (h *Host) Tick(ctx context.Context, force bool) error {
	return h.DoSync(func(q *queue.Queue) error {
		return h.tick(ctx, q, force)
	})
}

func (h *Host) tick(ctx context.Context, q *queue.Queue, force bool) error {
	err := q.ProcessPendingActions(ctx, force)
	if h.inbox == nil {
		return err
	}
	for _, ev := range h.inbox.Drain() {
		h.config.Log(3, "Host: event %s", ev.Type)
		q.ObserveEvent(ev.Type)
		h.mu.RLock()
		handlers := append(append([]EventHandler(nil), h.handlers[ev.Type]...), h.anyEvent...)
		h.mu.RUnlock()
		for _, fn := range handlers {
			fn(q, ev)
		}
	}
	return err
}

// Run ticks every TickInterval until ctx is done, then flushes for exit.
// Send errors are logged by the queue and do not stop the loop.
func (h *Host) Run(ctx context.Context) error {
	interval := h.config.Queue.TickInterval.Duration()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.config.Log(1, "Host: ticking every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return h.Shutdown()
		case <-ticker.C:
			if err := h.Tick(ctx, false); errors.Is(err, ErrStopped) {
				return nil
			}
		}
	}
}

// Shutdown flushes pending actions synchronously and stops the executor.
// Later calls do nothing.
func (h *Host) Shutdown() error {
	var err error
	h.once.Do(func() {
		err = h.DoSync(func(q *queue.Queue) error {
			return q.FlushForExit()
		})
		h.exec.Stop()
		h.config.Log(1, "Host: stopped")
	})
	return err
}
