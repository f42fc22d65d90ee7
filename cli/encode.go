package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/schema"
)

// runEncode prints the batches a script's actions serialize to, one per line.
func runEncode(args []string, out io.Writer) int {
	cfg, rest, err := config.Load("encode", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	defer cfg.Sync()
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: actionq encode [options] SCRIPT")
		return 1
	}
	cfg.Schema.Watch = false

	script, err := LoadScript(rest[0])
	if err != nil {
		cfg.Error("%v", err)
		return 1
	}
	registry, _, err := loadRegistry(cfg)
	if err != nil {
		cfg.Error("%v", err)
		return 1
	}

	batches, err := Encode(cfg, registry, script)
	if err != nil {
		cfg.Error("encode: %v", err)
		return 1
	}
	for _, b := range batches {
		fmt.Fprintf(out, "%s\n", b)
	}
	return 0
}

// Encode runs a script's enqueue and flush steps through an offline queue.
// Waits, fast update and communication steps have no effect offline.
// Rejected actions are logged and skipped. The last batch is included when it
// has actions or when nothing else was produced.
func Encode(cfg *config.Config, registry *schema.Registry, script *Script) ([][]byte, error) {
	q, _ := newQueue(cfg, registry, nil)
	q.SetSequence(script.Sequence)

	var batches [][]byte
	flush := func() error {
		batch, err := q.Flush()
		if err != nil {
			return err
		}
		data, err := batch.Encode()
		if err != nil {
			return err
		}
		batches = append(batches, data)
		return nil
	}

	for i, st := range script.Steps {
		switch {
		case st.Enqueue != "":
			a, p := st.Action()
			if err := q.Enqueue(a, p); err != nil {
				cfg.Warn("step %d: %s: %v", i+1, a.Type, err)
			}
		case st.Flush:
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if q.Len() > 0 || len(batches) == 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return batches, nil
}
