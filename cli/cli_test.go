package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zot/actionq/internal/config"
	"github.com/zot/actionq/internal/protocol"
	"github.com/zot/actionq/internal/schema"
	"github.com/zot/actionq/internal/server"
)

const testSchema = `
actions:
  spin:
    - {name: wager, kind: amount}
    - {name: lines, kind: int}
  bonus_peek: []
  track_view:
    - {name: screen, kind: string}
`

const testScript = `
client: player-7
sequence: 10
steps:
  - enqueue: spin:immediate
    properties: {wager: "1.25", lines: 20}
  - enqueue: spin
    priority: immediate
  - enqueue: bonus_peek
  - enqueue: track_view:low
    properties: {screen: paytable}
  - flush: true
  - enqueue: track_view:none
    properties: {screen: lobby}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testSetup(t *testing.T) (*config.Config, *schema.Registry) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SetLogger(zap.NewNop().Sugar())
	cfg.Experiments.ReadOnly = []config.ReadOnlyExperiment{
		{Name: "peek", Enabled: true, ActionTypes: []string{"bonus_peek"}},
	}
	r, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	return cfg, r
}

func TestLoadScript(t *testing.T) {
	script, err := LoadScript(writeFile(t, "s.yaml", testScript))
	require.NoError(t, err)
	assert.Equal(t, "player-7", script.Client)
	assert.Equal(t, int64(10), script.Sequence)
	require.Len(t, script.Steps, 6)

	a, p := script.Steps[1].Action()
	assert.Equal(t, "spin", a.Type)
	assert.Equal(t, protocol.PriorityImmediate, p)

	a, p = script.Steps[3].Action()
	assert.Equal(t, "track_view", a.Type)
	assert.Equal(t, protocol.PriorityLow, p)
	v, _ := a.Get("screen")
	assert.Equal(t, "paytable", v)

	_, err = LoadScript(writeFile(t, "bad.yaml", "steps:\n  - wait: soon\n"))
	assert.Error(t, err)
	_, err = LoadScript(writeFile(t, "bad.yaml", "steps:\n  - enqueue: spin\n    priority: urgent\n"))
	assert.Error(t, err)
}

// TestEncodeScript verifies sequencing, the spin guard and read-only reuse offline
func TestEncodeScript(t *testing.T) {
	cfg, r := testSetup(t)
	script, err := LoadScript(writeFile(t, "s.yaml", testScript))
	require.NoError(t, err)

	batches, err := Encode(cfg, r, script)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.JSONEq(t, `{"actions":[
		{"sort_order":11,"type":"spin","wager":1.25,"lines":20},
		{"sort_order":11,"type":"bonus_peek"},
		{"sort_order":12,"type":"track_view","screen":"paytable"}
	]}`, string(batches[0]))
	assert.JSONEq(t, `{"actions":[{"sort_order":13,"type":"track_view","screen":"lobby"}]}`, string(batches[1]))
}

func TestEncodeEmptyScript(t *testing.T) {
	cfg, r := testSetup(t)
	batches, err := Encode(cfg, r, &Script{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, `{"actions":[]}`, string(batches[0]))
}

func TestRunEncodeCommand(t *testing.T) {
	schemaPath := writeFile(t, "schema.yaml", testSchema)
	scriptPath := writeFile(t, "s.yaml", testScript)

	var out bytes.Buffer
	code := runEncode([]string{"-config", filepath.Join(t.TempDir(), "missing.toml"), "-schema", schemaPath, scriptPath}, &out)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"spin"`)

	assert.Equal(t, 1, runEncode([]string{"-config", "none.toml"}, &out))
}

// TestPlayAgainstDevServer runs a script end to end over HTTP
func TestPlayAgainstDevServer(t *testing.T) {
	cfg, r := testSetup(t)
	cfg.Server.Port = 0
	srv := server.New(cfg, r)
	base, err := srv.StartHTTP(0)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	cfg.Transport.URL = base + "/actions"
	cfg.Queue.TickInterval = config.Duration(10 * time.Millisecond)

	script := &Script{
		Client: "player-9",
		Steps: []Step{
			{Enqueue: "spin:immediate", Properties: map[string]any{"wager": "2", "lines": 10}},
			{Wait: "200ms"},
			{Enqueue: "track_view:low", Properties: map[string]any{"screen": "lobby"}},
		},
	}

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Play(ctx, cfg, r, script, &out))

	text := out.String()
	assert.Contains(t, text, "step 1: queued spin sort_order=1 priority=immediate")
	assert.Contains(t, text, "event spin_result")
	assert.Contains(t, text, "step 3: queued track_view sort_order=2 priority=low")

	sess, ok := srv.Sessions().GetSession("player-9")
	require.True(t, ok)
	assert.Equal(t, int64(2), sess.LastSortOrder(), "exit flush should deliver the LOW action")
}

// TestPlayDeliversLastFlush verifies a spin flushed by the final step reaches a slow server
func TestPlayDeliversLastFlush(t *testing.T) {
	cfg, r := testSetup(t)
	dev := server.New(cfg, r)
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(200 * time.Millisecond)
		dev.Handler().ServeHTTP(w, req)
	}))
	defer slow.Close()

	cfg.Transport.URL = slow.URL + "/actions"
	cfg.Queue.TickInterval = config.Duration(time.Hour)

	script := &Script{
		Client: "player-slow",
		Steps: []Step{
			{Enqueue: "spin:immediate", Properties: map[string]any{"wager": "1"}},
			{Flush: true},
		},
	}

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Play(ctx, cfg, r, script, &out))

	sess, ok := dev.Sessions().GetSession("player-slow")
	require.True(t, ok, "the flushed batch never reached the server")
	assert.Equal(t, int64(1), sess.LastSortOrder())
	assert.Equal(t, int64(1), dev.Responder().Stats().Actions)
}

func TestRunDispatch(t *testing.T) {
	assert.Equal(t, 0, Run([]string{"version"}))
	assert.Equal(t, 0, Run([]string{"help"}))
	assert.Equal(t, 1, Run([]string{"frobnicate"}))

	called := false
	hooks := &Hooks{BeforeDispatch: func(command string, args []string) (bool, int) {
		called = command == "custom"
		return called, 7
	}}
	assert.Equal(t, 7, RunWithHooks([]string{"custom"}, hooks))
	assert.True(t, called)
}
