package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/server"
)

// runServe runs the dev action server until interrupted.
func runServe(args []string) int {
	cfg, _, err := config.Load("serve", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	defer cfg.Sync()

	registry, stopSchema, err := loadRegistry(cfg)
	if err != nil {
		cfg.Error("%v", err)
		return 1
	}
	defer stopSchema()

	srv := server.New(cfg, registry)
	base, err := srv.StartHTTP(cfg.Server.Port)
	if err != nil {
		cfg.Error("%v", err)
		return 1
	}
	srv.StartCleanupWorker(time.Minute)
	cfg.Log(0, "Actions: POST %s/actions, websocket %s/ws", base, base)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	cfg.Log(0, "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		cfg.Error("Shutdown: %v", err)
		return 1
	}
	return 0
}
