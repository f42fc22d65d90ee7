package tick

import (
	"errors"
	"sync"
)

// ErrStopped means the executor has shut down.
var ErrStopped = errors.New("executor stopped")

// Executor runs queued funcs one at a time on its own goroutine.
type Executor struct {
	cmds chan func()
	done chan struct{}
	once sync.Once
}

// NewExecutor starts an executor. Stop it to release the goroutine.
func NewExecutor() *Executor {
	e := &Executor{
		cmds: make(chan func()),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	for {
		select {
		case cmd := <-e.cmds:
			cmd()
		case <-e.done:
			return
		}
	}
}

// Svc queues code without waiting. It reports false once stopped.
// Funcs from separate Svc calls run one at a time but in no guaranteed order;
// use SvcSync when order matters.
func (e *Executor) Svc(code func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	go func() { // using a goroutine so the caller won't block
		select {
		case e.cmds <- code:
		case <-e.done:
		}
	}()
	return true
}

// Stop ends the run loop. A func already running completes.
func (e *Executor) Stop() {
	e.once.Do(func() { close(e.done) })
}

// Stopped reports whether Stop was called.
func (e *Executor) Stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// SvcSync runs code on e and waits for its result.
func SvcSync[T any](e *Executor, code func() (T, error)) (T, error) {
	result := make(chan struct{})
	var value T
	var err error
	var zero T
	if !e.Svc(func() {
		defer close(result)
		value, err = code()
	}) {
		return zero, ErrStopped
	}
	select {
	case <-result:
		return value, err
	case <-e.done:
		select {
		case <-result:
			return value, err
		default:
			return zero, ErrStopped
		}
	}
}
