package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/buger/jsonparser"
	"golang.org/x/sync/errgroup"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
	"github.com/zot/actionq/internal/queue"
	"github.com/zot/actionq/internal/schema"
	"github.com/zot/actionq/internal/session"
	"github.com/zot/actionq/internal/tick"
	"github.com/zot/actionq/internal/transport"
)

// EventExperiment toggles a read-only experiment: {"name":..., "enabled":...}.
const EventExperiment = "experiment"

// runPlay drives a queue from a script against a live server.
func runPlay(args []string) int {
	cfg, rest, err := config.Load("play", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	defer cfg.Sync()
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: actionq play [options] SCRIPT")
		return 1
	}

	script, err := LoadScript(rest[0])
	if err != nil {
		cfg.Error("%v", err)
		return 1
	}
	registry, stopSchema, err := loadRegistry(cfg)
	if err != nil {
		cfg.Error("%v", err)
		return 1
	}
	defer stopSchema()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Play(ctx, cfg, registry, script, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Error("play: %v", err)
		return 1
	}
	return 0
}

// syncWriter serializes output from the host executor and the script.
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// Play runs script against the configured transport, printing what happens to out.
// Pending actions are flushed for exit when the script ends or ctx is cancelled.
func Play(ctx context.Context, cfg *config.Config, registry *schema.Registry, script *Script, out io.Writer) error {
	w := &syncWriter{w: out}
	sess := session.NewSession(script.Client)
	sess.SetAuthenticated(true)

	inbox := transport.NewEventQueue()
	tr, err := transport.New(ctx, cfg, sess.ID, inbox)
	if err != nil {
		return err
	}
	defer tr.Close()

	q, classifier := newQueue(cfg, registry, tr)
	q.SetGate(sess)
	q.SetSequence(script.Sequence)

	host := tick.NewHost(cfg, q, inbox)
	host.On("", func(_ *queue.Queue, ev protocol.Event) {
		w.printf("event %s %s\n", ev.Type, ev.Data)
	})
	host.On(EventExperiment, func(_ *queue.Queue, ev protocol.Event) {
		name, err := jsonparser.GetString(ev.Data, "name")
		if err != nil {
			cfg.Warn("experiment event without name: %s", ev.Data)
			return
		}
		enabled, _ := jsonparser.GetBoolean(ev.Data, "enabled")
		classifier.SetEnabled(name, enabled)
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return host.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return runSteps(gctx, host, sess, script, w)
	})
	return g.Wait()
}

func runSteps(ctx context.Context, host *tick.Host, sess *session.Session, script *Script, w *syncWriter) error {
	for i, st := range script.Steps {
		n := i + 1
		switch {
		case st.Enqueue != "":
			a, p := st.Action()
			err := host.Enqueue(a, p)
			switch {
			case errors.Is(err, queue.ErrSpinInFlight), errors.Is(err, queue.ErrCommunicationDisabled):
				w.printf("step %d: %s rejected: %v\n", n, a.Type, err)
			case err != nil:
				return fmt.Errorf("step %d: %w", n, err)
			default:
				w.printf("step %d: queued %s sort_order=%d priority=%s\n", n, a.Type, a.SortOrder, p)
			}

		case st.Wait != "":
			timer := time.NewTimer(st.WaitDuration())
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}

		case st.FastUpdate != nil:
			watch := *st.FastUpdate
			if err := host.DoSync(func(q *queue.Queue) error {
				q.SetFastUpdateMode(watch)
				return nil
			}); err != nil {
				return fmt.Errorf("step %d: %w", n, err)
			}
			w.printf("step %d: fast update until %q\n", n, watch)

		case st.Communication != nil:
			sess.SetCommunicationEnabled(*st.Communication)
			w.printf("step %d: communication enabled=%v\n", n, *st.Communication)

		case st.Flush:
			if err := host.Tick(ctx, true); err != nil {
				w.printf("step %d: flush: %v\n", n, err)
			}
		}
	}
	return nil
}
