package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, config.New(nil).Raw())
	assert.Equal(t, "v", config.New(map[string]any{"k": "v"}).String("k", ""))
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"key exists", map[string]any{"name": "alice"}, "alice"},
		{"key missing", map[string]any{"other": "value"}, "default"},
		{"empty string", map[string]any{"name": ""}, ""},
		{"wrong type", map[string]any{"name": 123}, "default"},
		{"nil map", nil, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String("name", "default"))
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string", "30s", 30 * time.Second},
		{"compound string", "1h30m", 90 * time.Minute},
		{"int seconds", 5, 5 * time.Second},
		{"int64 seconds", int64(2), 2 * time.Second},
		{"float seconds", 0.5, 500 * time.Millisecond},
		{"duration", 3 * time.Millisecond, 3 * time.Millisecond},
		{"invalid string", "soon", time.Minute},
		{"wrong type", true, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"timeout": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("timeout", time.Minute))
		})
	}
}

func TestIntAndFloat(t *testing.T) {
	cfg := config.New(map[string]any{
		"int":      3,
		"int64":    int64(4),
		"whole":    5.0,
		"fraction": 5.5,
		"string":   "6",
		"garbage":  "six",
	})

	assert.Equal(t, 3, cfg.Int("int", 0))
	assert.Equal(t, 4, cfg.Int("int64", 0))
	assert.Equal(t, 5, cfg.Int("whole", 0))
	assert.Equal(t, -1, cfg.Int("fraction", -1))
	assert.Equal(t, 6, cfg.Int("string", -1))
	assert.Equal(t, -1, cfg.Int("garbage", -1))

	assert.Equal(t, 3.0, cfg.Float("int", 0))
	assert.Equal(t, 5.5, cfg.Float("fraction", 0))
	assert.Equal(t, 1.5, cfg.Float("missing", 1.5))
	assert.Equal(t, 6.0, cfg.Float("string", 0))
}

func TestBool(t *testing.T) {
	cfg := config.New(map[string]any{"on": true, "str": "true", "junk": "maybe"})
	assert.True(t, cfg.Bool("on", false))
	assert.True(t, cfg.Bool("str", false))
	assert.False(t, cfg.Bool("junk", false))
	assert.True(t, cfg.Bool("missing", true))
}

func TestStringSlice(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want []string
	}{
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"any slice", []any{"a", "b"}, []string{"a", "b"}},
		{"mixed slice", []any{"a", 1}, []string{"default"}},
		{"comma string", "a, b,,c", []string{"a", "b", "c"}},
		{"wrong type", 7, []string{"default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"tags": tt.val})
			assert.Equal(t, tt.want, cfg.StringSlice("tags", []string{"default"}))
		})
	}
}

func TestSubAndList(t *testing.T) {
	cfg := config.New(map[string]any{
		"router": map[string]any{"queue_size": 8},
		"legacy": map[any]any{"key": "v", 1: "dropped"},
		"items":  []any{map[string]any{"name": "a"}, "skip", map[string]any{"name": "b"}},
		"scalar": 1,
	})

	assert.Equal(t, 8, cfg.Sub("router").Int("queue_size", 0))
	assert.Equal(t, "v", cfg.Sub("legacy").String("key", ""))
	assert.Len(t, cfg.Sub("legacy").Raw(), 1)
	assert.Empty(t, cfg.Sub("scalar").Raw())
	assert.Empty(t, cfg.Sub("missing").Raw())

	items := cfg.List("items")
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].String("name", ""))
	assert.Equal(t, "b", items[1].String("name", ""))
	assert.Nil(t, cfg.List("scalar"))
}

func TestAnyAndHas(t *testing.T) {
	cfg := config.New(map[string]any{"val": nil, "n": 1})
	assert.True(t, cfg.Has("val"))
	assert.False(t, cfg.Has("other"))
	assert.Nil(t, cfg.Any("val", "default"))
	assert.Equal(t, "default", cfg.Any("other", "default"))
	assert.ElementsMatch(t, []string{"val", "n"}, cfg.Keys())
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte("router:\n  queue_size: 32\ntags: [a, b]\n"))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Sub("router").Int("queue_size", 0))
	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))

	_, err = config.FromYAML([]byte("invalid: yaml: content:"))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"loop": {"max_hops": 2}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sub("loop").Int("max_hops", 0))

	_, err = config.FromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "overbot.YML")
	require.NoError(t, os.WriteFile(yamlPath, []byte("run_mode: daemon\n"), 0o644))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "daemon", cfg.String("run_mode", ""))

	txtPath := filepath.Join(dir, "overbot.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))
	_, err = config.FromFile(txtPath)
	assert.ErrorContains(t, err, "unsupported config file extension")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "overbot.yaml")

	written, err := config.WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, written)

	require.NoError(t, os.WriteFile(path, []byte("run_mode: daemon\n"), 0o644))
	written, err = config.WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "run_mode: daemon\n", string(data), "existing file must not be overwritten")
}
