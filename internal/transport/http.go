// CRC: crc-HTTPTransport.md
// Spec: protocol.md
// Sequence: seq-action-flush.md
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
)

// ClientHeader carries the client ID so the server can track sort order per client.
const ClientHeader = "X-Actionq-Client"

// ErrBusy means a batch is already outstanding.
var ErrBusy = errors.New("transport: batch already outstanding")

// HTTP posts each batch as one request and queues the events in the response.
type HTTP struct {
	config   *config.Config
	client   *http.Client
	url      string
	gzip     bool
	clientID string
	inbox    *EventQueue
	awaiting atomic.Bool
	wg       sync.WaitGroup
	onError  func(error)
}

// NewHTTP creates an HTTP transport posting to cfg.Transport.URL.
func NewHTTP(cfg *config.Config, clientID string, inbox *EventQueue) *HTTP {
	return &HTTP{
		config:   cfg,
		client:   &http.Client{Timeout: cfg.Transport.Timeout.Duration()},
		url:      cfg.Transport.URL,
		gzip:     cfg.Transport.Gzip,
		clientID: clientID,
		inbox:    inbox,
	}
}

// OnError sets a callback for failures of asynchronous sends.
func (t *HTTP) OnError(fn func(error)) {
	t.onError = fn
}

// Send posts the batch in the background.
// IsAwaitingResponse stays true until the response has been queued.
// The request outlives ctx's cancellation and is bounded by the transport timeout.
func (t *HTTP) Send(ctx context.Context, batch *protocol.Batch) error {
	if !t.awaiting.CompareAndSwap(false, true) {
		return ErrBusy
	}
	body, err := t.encode(batch)
	if err != nil {
		t.awaiting.Store(false)
		return err
	}
	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.awaiting.Store(false)
		if err := t.post(ctx, body); err != nil {
			t.config.Error("HTTPTransport: %v", err)
			if t.onError != nil {
				t.onError(err)
			}
		}
	}()
	return nil
}

// SendSync posts the batch and waits for the response.
func (t *HTTP) SendSync(batch *protocol.Batch) error {
	if !t.awaiting.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer t.awaiting.Store(false)
	body, err := t.encode(batch)
	if err != nil {
		return err
	}
	return t.post(context.Background(), body)
}

// IsAwaitingResponse reports whether a batch is outstanding.
func (t *HTTP) IsAwaitingResponse() bool {
	return t.awaiting.Load()
}

// HasInboundEvents reports whether events are waiting to be drained.
func (t *HTTP) HasInboundEvents() bool {
	return !t.inbox.IsEmpty()
}

// Wait blocks until background sends finish.
func (t *HTTP) Wait() {
	t.wg.Wait()
}

// Close waits for outstanding sends.
func (t *HTTP) Close() error {
	t.Wait()
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTP) encode(batch *protocol.Batch) ([]byte, error) {
	data, err := batch.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	if !t.gzip {
		return data, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip batch: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *HTTP) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set(ClientHeader, t.clientID)
	if t.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	t.config.Log(3, "HTTPTransport: POST %s (%d bytes)", t.url, len(body))
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip response: %w", err)
		}
		defer zr.Close()
		reader = zr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}

	events, err := protocol.ParseEvents(data)
	if err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	t.inbox.Enqueue(events...)
	t.config.Log(3, "HTTPTransport: received %d events", len(events))
	return nil
}
