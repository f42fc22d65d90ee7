// CRC: crc-WebSocketTransport.md
// Spec: protocol.md
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buger/jsonparser"
	"github.com/gorilla/websocket"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
)

// FieldReply marks a websocket message that answers a batch.
// Messages without it are server pushes.
const FieldReply = "reply"

// ErrClosed means the connection is gone.
var ErrClosed = errors.New("transport: connection closed")

// WebSocket sends each batch as one text message over a persistent connection.
// The server answers every batch with {"reply":n,"events":[...]}.
type WebSocket struct {
	config   *config.Config
	conn     *websocket.Conn
	inbox    *EventQueue
	timeout  time.Duration
	writeMu  sync.Mutex
	awaiting atomic.Bool
	sent     atomic.Int64
	replied  chan struct{}
	done     chan struct{}
	closing  atomic.Bool
	closeErr error
	once     sync.Once
}

// DialWebSocket connects to cfg.Transport.URL and starts reading.
func DialWebSocket(ctx context.Context, cfg *config.Config, clientID string, inbox *EventQueue) (*WebSocket, error) {
	header := http.Header{}
	header.Set(ClientHeader, clientID)
	dialer := websocket.Dialer{
		HandshakeTimeout:  cfg.Transport.Timeout.Duration(),
		EnableCompression: cfg.Transport.Gzip,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.Transport.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Transport.URL, err)
	}
	t := &WebSocket{
		config:  cfg,
		conn:    conn,
		inbox:   inbox,
		timeout: cfg.Transport.Timeout.Duration(),
		replied: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	cfg.Log(1, "WebSocketTransport: connected to %s", cfg.Transport.URL)
	go t.readPump()
	return t, nil
}

// Send writes the batch; the read pump clears the awaiting flag on reply.
func (t *WebSocket) Send(ctx context.Context, batch *protocol.Batch) error {
	if !t.awaiting.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if err := t.write(batch); err != nil {
		t.awaiting.Store(false)
		return err
	}
	return nil
}

// SendSync writes the batch and waits for its reply or the transport timeout.
func (t *WebSocket) SendSync(batch *protocol.Batch) error {
	select {
	case <-t.replied:
	default:
	}
	if err := t.Send(context.Background(), batch); err != nil {
		return err
	}
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case <-t.replied:
		return nil
	case <-t.done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("no reply within %s", t.timeout)
	}
}

// IsAwaitingResponse reports whether a batch is unanswered.
func (t *WebSocket) IsAwaitingResponse() bool {
	return t.awaiting.Load()
}

// HasInboundEvents reports whether events are waiting to be drained.
func (t *WebSocket) HasInboundEvents() bool {
	return !t.inbox.IsEmpty()
}

// Done is closed when the connection ends.
func (t *WebSocket) Done() <-chan struct{} {
	return t.done
}

// Close sends a close frame and shuts the connection.
func (t *WebSocket) Close() error {
	t.closing.Store(true)
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	err := t.conn.Close()
	t.finish(nil)
	return err
}

func (t *WebSocket) write(batch *protocol.Batch) error {
	data, err := batch.Encode()
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	n := t.sent.Add(1)
	t.config.Log(3, "WebSocketTransport: batch %d (%d bytes)", n, len(data))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func (t *WebSocket) readPump() {
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if !t.closing.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.config.Error("WebSocketTransport: %v", err)
			}
			t.finish(err)
			return
		}

		events, err := protocol.ParseEvents(message)
		if err != nil {
			t.config.Warn("WebSocketTransport: bad message: %v", err)
		}
		t.inbox.Enqueue(events...)

		if reply, err := jsonparser.GetInt(message, FieldReply); err == nil {
			t.config.Log(3, "WebSocketTransport: reply %d, %d events", reply, len(events))
			t.awaiting.Store(false)
			select {
			case t.replied <- struct{}{}:
			default:
			}
		}
	}
}

// Err returns why the read loop ended, once Done is closed.
func (t *WebSocket) Err() error {
	<-t.done
	return t.closeErr
}

func (t *WebSocket) finish(err error) {
	t.once.Do(func() {
		t.closeErr = err
		t.awaiting.Store(false)
		close(t.done)
	})
}
