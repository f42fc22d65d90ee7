// Test Design: test-DevServer.md
// CRC: crc-DevServer.md
// Spec: protocol.md
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
	"github.com/zot/actionq/internal/schema"
	"github.com/zot/actionq/internal/transport"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SetLogger(zap.NewNop().Sugar())
	r := schema.NewRegistry()
	r.Register("spin", schema.FieldSpec{Name: "wager", Kind: schema.KindAmount})
	return New(cfg, r)
}

func postActions(t *testing.T, s *Server, client, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/actions", strings.NewReader(body))
	req.Header.Set(transport.ClientHeader, client)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeEvents(t *testing.T, data []byte) []protocol.Event {
	t.Helper()
	var batch protocol.EventBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		t.Fatalf("Failed to decode events %s: %v", data, err)
	}
	return batch.Events
}

// TestActionsSpinResult verifies a spin is answered with its result and an ack
func TestActionsSpinResult(t *testing.T) {
	s := testServer(t)

	w := postActions(t, s, "c1", `{"actions":[{"sort_order":3,"type":"spin","wager":2.5},{"sort_order":3,"type":"bonus_peek"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}

	events := decodeEvents(t, w.Body.Bytes())
	if len(events) != 2 {
		t.Fatalf("Expected spin_result and ack, got %d events", len(events))
	}
	if events[0].Type != EventSpinResult {
		t.Errorf("Expected spin_result first, got %s", events[0].Type)
	}
	var result struct {
		SortOrder int64  `json:"sort_order"`
		Win       string `json:"win"`
	}
	json.Unmarshal(events[0].Data, &result)
	if result.SortOrder != 3 || result.Win != "7.5" {
		t.Errorf("Expected sort_order 3 win 7.5, got %+v", result)
	}
	if events[1].Type != EventAck {
		t.Errorf("Expected ack last, got %s", events[1].Type)
	}
}

// TestActionsSortOrderRegression verifies a batch going backwards is rejected per client
func TestActionsSortOrderRegression(t *testing.T) {
	s := testServer(t)

	if w := postActions(t, s, "c1", `{"actions":[{"sort_order":5,"type":"collect"}]}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w := postActions(t, s, "c1", `{"actions":[{"sort_order":5,"type":"peek"},{"sort_order":6,"type":"collect"}]}`); w.Code != http.StatusOK {
		t.Errorf("Repeated sort_order should be accepted, got %d", w.Code)
	}
	if w := postActions(t, s, "c1", `{"actions":[{"sort_order":4,"type":"collect"}]}`); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for regression, got %d", w.Code)
	}
	if w := postActions(t, s, "c2", `{"actions":[{"sort_order":1,"type":"collect"}]}`); w.Code != http.StatusOK {
		t.Errorf("Other clients keep their own order, got %d", w.Code)
	}

	stats := s.Responder().Stats()
	if stats.Batches != 3 || stats.Rejected != 1 || stats.Sessions != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestActionsBadBody(t *testing.T) {
	s := testServer(t)

	if w := postActions(t, s, "c1", `{"nope":true}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without actions, got %d", w.Code)
	}
	if w := postActions(t, s, "c1", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad JSON, got %d", w.Code)
	}
}

// TestActionsEmptyBatch verifies polling batches are answered without an ack
func TestActionsEmptyBatch(t *testing.T) {
	s := testServer(t)

	w := postActions(t, s, "c1", `{"actions":[]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if events := decodeEvents(t, w.Body.Bytes()); len(events) != 0 {
		t.Errorf("Expected no events for an empty poll, got %+v", events)
	}
	if s.Responder().Stats().Batches != 1 {
		t.Error("Empty polls still count as batches")
	}
}

// TestActionsGzip verifies compressed requests and responses
func TestActionsGzip(t *testing.T) {
	s := testServer(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"actions":[{"sort_order":1,"type":"spin","wager":1}]}`))
	zw.Close()

	req := httptest.NewRequest("POST", "/actions", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("Expected gzip response")
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(zr)
	events := decodeEvents(t, data)
	if len(events) != 2 || events[0].Type != EventSpinResult {
		t.Errorf("Unexpected events %s", data)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("GET", "/schema", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"spin"`) {
		t.Errorf("Expected spin in schema types, got %s", w.Body)
	}
}

// TestWebSocketReplies verifies each batch gets a numbered reply and errors are reported inline
func TestWebSocketReplies(t *testing.T) {
	s := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client=ws1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	conn.WriteMessage(websocket.TextMessage, []byte(`{"actions":[{"sort_order":2,"type":"spin","wager":1}]}`))
	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Reply != 1 || len(reply.Events) != 2 {
		t.Errorf("Expected reply 1 with 2 events, got %+v", reply)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"actions":[{"sort_order":1,"type":"spin"}]}`))
	reply = wsReply{}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Reply != 2 || !strings.Contains(reply.Error, "sort_order regression") {
		t.Errorf("Expected regression error in reply 2, got %+v", reply)
	}

	ev, _ := protocol.NewEvent("balance", 100)
	deadline := time.Now().Add(time.Second)
	for s.Push("ws1", ev) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	var pushed protocol.EventBatch
	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatal(err)
	}
	if len(pushed.Events) != 1 || pushed.Events[0].Type != "balance" {
		t.Errorf("Expected pushed balance event, got %+v", pushed)
	}
}

// TestWebSocketTouchesSession verifies socket traffic keeps the session alive even when batches fail to parse
func TestWebSocketTouchesSession(t *testing.T) {
	s := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	start := time.Now()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client=ws2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Error == "" {
		t.Errorf("Expected a parse error, got %+v", reply)
	}

	sess, ok := s.Sessions().GetSession("ws2")
	if !ok {
		t.Fatal("Expected a session for the websocket client")
	}
	if sess.GetLastActivity().Before(start) {
		t.Error("Websocket traffic should refresh the session")
	}
	if sess.Batches() != 0 {
		t.Errorf("Unparsable frames are not batches, got %d", sess.Batches())
	}
}

// TestStartAndShutdown verifies the listener on a free port
func TestStartAndShutdown(t *testing.T) {
	s := testServer(t)
	base, err := s.StartHTTP(0)
	if err != nil {
		t.Fatalf("StartHTTP failed: %v", err)
	}
	s.StartCleanupWorker(time.Minute)

	resp, err := http.Get(base + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
