// Package server is a development action server: it receives batches,
// checks their sort order per client and answers with events.
// CRC: crc-DevServer.md
// Spec: deployment.md
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/schema"
	"github.com/zot/actionq/internal/session"
)

// Server is the dev action server.
type Server struct {
	config     *config.Config
	sessions   *session.Manager
	responder  *Responder
	registry   *schema.Registry
	router     chi.Router
	httpServer *http.Server
	conns      map[*wsConn]struct{}
	mu         sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a server. registry may be nil.
func New(cfg *config.Config, registry *schema.Registry) *Server {
	sessions := session.NewManager(cfg.Server.SessionTimeout.Duration())
	s := &Server{
		config:    cfg,
		sessions:  sessions,
		responder: NewResponder(cfg, sessions),
		registry:  registry,
		conns:     make(map[*wsConn]struct{}),
		stop:      make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(AccessLog(s.config))
	r.Use(middleware.Recoverer)
	r.Use(Compression)

	r.With(Decompression).Post("/actions", s.handleActions)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/stats", s.handleStats)
	r.Get("/schema", s.handleSchema)
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the per-client session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Responder returns the batch responder.
func (s *Server) Responder() *Responder {
	return s.responder
}

// StartHTTP listens on the configured host and port and serves in the background.
// Port 0 picks a free port, written back to the config. It returns the base URL.
func (s *Server) StartHTTP(port int) (string, error) {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if port == 0 {
		_, portStr, _ := net.SplitHostPort(listener.Addr().String())
		s.config.Server.Port, _ = strconv.Atoi(portStr)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		s.config.Log(0, "HTTP server listening on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.config.Error("HTTP server error: %v", err)
		}
	}()

	host := s.config.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(s.config.Server.Port))), nil
}

// StartCleanupWorker periodically drops idle client sessions.
func (s *Server) StartCleanupWorker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if count := s.sessions.CleanupInactiveSessions(); count > 0 {
					s.config.Log(1, "Cleaned up %d inactive sessions", count)
				}
			}
		}
	}()
}

// Shutdown stops the cleanup worker, closes websockets and drains HTTP.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.RLock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.mu.RUnlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
