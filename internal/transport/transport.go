// CRC: crc-HTTPTransport.md, crc-WebSocketTransport.md
package transport

import (
	"context"
	"fmt"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
)

// Client is a transport the queue can flush into.
type Client interface {
	Send(ctx context.Context, batch *protocol.Batch) error
	SendSync(batch *protocol.Batch) error
	IsAwaitingResponse() bool
	HasInboundEvents() bool
	Close() error
}

// New builds the transport selected by cfg.Transport.Kind.
func New(ctx context.Context, cfg *config.Config, clientID string, inbox *EventQueue) (Client, error) {
	switch cfg.Transport.Kind {
	case "", "http":
		return NewHTTP(cfg, clientID, inbox), nil
	case "websocket", "ws":
		ws, err := DialWebSocket(ctx, cfg, clientID, inbox)
		if err != nil {
			return nil, err
		}
		return ws, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}
