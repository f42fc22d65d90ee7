package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zot/actionq/internal/config"
)

const testSchema = `
actions:
  spin:
    - name: wager
      kind: amount
    - name: lines
      kind: int
    - name: game_key
      kind: string
      omit_empty: true
  accept_credits:
    - name: credits
      kind: amount
    - name: source
`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(testSchema))
	require.NoError(t, err)

	assert.Equal(t, []string{"accept_credits", "spin"}, r.Types())

	fields, ok := r.Fields("spin")
	require.True(t, ok)
	require.Len(t, fields, 3)
	assert.Equal(t, "wager", fields[0].Name)
	assert.Equal(t, KindAmount, fields[0].Kind)
	assert.True(t, fields[2].OmitEmpty)

	fields, _ = r.Fields("accept_credits")
	assert.Equal(t, KindAny, fields[1].Kind, "missing kind defaults to any")

	_, ok = r.Fields("unknown")
	assert.False(t, ok)
}

func TestParseRejectsBadFields(t *testing.T) {
	tests := map[string]string{
		"unknown kind": "actions:\n  spin:\n    - name: wager\n      kind: money\n",
		"no name":      "actions:\n  spin:\n    - kind: int\n",
		"duplicate":    "actions:\n  spin:\n    - name: a\n    - name: a\n",
		"not yaml":     "actions: [",
	}
	for name, data := range tests {
		_, err := Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestReplace(t *testing.T) {
	r := NewRegistry()
	r.Register("old", FieldSpec{Name: "x"})

	next := NewRegistry()
	next.Register("new", FieldSpec{Name: "y", Kind: KindInt})
	r.Replace(next)

	_, ok := r.Fields("old")
	assert.False(t, ok)
	fields, ok := r.Fields("new")
	require.True(t, ok)
	assert.Equal(t, KindInt, fields[0].Kind)
}

func TestHotLoaderReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.SetLogger(zap.NewNop().Sugar())
	h, err := NewHotLoader(cfg, path, r)
	require.NoError(t, err)
	reloaded := make(chan struct{}, 1)
	h.OnReload(func(*Registry) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, h.Start())
	defer h.Stop()

	// Give the watcher a moment before writing
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("actions:\n  collect_bonus:\n    - name: bonus_id\n      kind: int\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("schema was not reloaded")
	}

	_, ok := r.Fields("collect_bonus")
	assert.True(t, ok)
	_, ok = r.Fields("spin")
	assert.False(t, ok)
}

func TestHotLoaderKeepsSchemaOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.SetLogger(zap.NewNop().Sugar())
	h, err := NewHotLoader(cfg, path, r)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("actions: ["), 0o644))
	h.reload()

	_, ok := r.Fields("spin")
	assert.True(t, ok)
}
