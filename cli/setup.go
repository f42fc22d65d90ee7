package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/experiment"
	"github.com/zot/actionq/internal/protocol"
	"github.com/zot/actionq/internal/queue"
	"github.com/zot/actionq/internal/schema"
)

// loadRegistry reads the configured schema file, starting a hot loader when
// schema.watch is set. A missing file yields an empty registry.
// The returned stop func is never nil.
func loadRegistry(cfg *config.Config) (*schema.Registry, func(), error) {
	registry := schema.NewRegistry()
	noop := func() {}
	if cfg.Schema.Path == "" {
		return registry, noop, nil
	}

	loaded, err := schema.LoadFile(cfg.Schema.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.Warn("Schema %s not found, every action type is unknown", cfg.Schema.Path)
	case err != nil:
		return nil, noop, fmt.Errorf("schema: %w", err)
	default:
		registry.Replace(loaded)
		cfg.Log(1, "Loaded %d action types from %s", len(registry.Types()), cfg.Schema.Path)
	}

	if !cfg.Schema.Watch {
		return registry, noop, nil
	}
	loader, err := schema.NewHotLoader(cfg, cfg.Schema.Path, registry)
	if err != nil {
		return nil, noop, fmt.Errorf("schema watch: %w", err)
	}
	loader.OnReload(func(r *schema.Registry) {
		cfg.Log(0, "Schema reloaded: %d action types", len(r.Types()))
	})
	if err := loader.Start(); err != nil {
		loader.Stop()
		return nil, noop, fmt.Errorf("schema watch: %w", err)
	}
	return registry, func() { loader.Stop() }, nil
}

// newQueue builds a queue over transport (nil for offline use) with the
// configured read-only experiments.
func newQueue(cfg *config.Config, registry *schema.Registry, transport queue.Transport) (*queue.Queue, *experiment.Classifier) {
	q := queue.New(cfg, protocol.NewSerializer(registry), transport)
	classifier := experiment.NewClassifier(cfg.Experiments.ReadOnly)
	q.SetClassifier(classifier)
	return q, classifier
}
