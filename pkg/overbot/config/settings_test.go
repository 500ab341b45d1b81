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

func TestDefaultSettings(t *testing.T) {
	s := config.DefaultSettings()

	assert.Equal(t, 1, s.Loop.MaxHops)
	assert.Equal(t, 64, s.Router.QueueSize)
	assert.Equal(t, 5*time.Second, s.Router.SinkTimeout)
	assert.Equal(t, "!", s.Commands.Prefix)
	assert.Equal(t, 4, s.Commands.Workers)
	assert.False(t, s.Commands.UnknownReply)
	assert.Equal(t, config.RunForeground, s.RunMode)
	assert.Equal(t, config.MetricsNone, s.Metrics.Backend)
	assert.Empty(t, s.Filters.Order)
	assert.NoError(t, s.Validate())
}

func TestDefaultYAMLParsesAndValidates(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.DefaultYAML()))
	require.NoError(t, err)

	s, err := config.ParseSettings(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, []string{"flood"}, s.Filters.Order)
	flood := s.Filters.Definitions["flood"]
	assert.Equal(t, "ratelimit", flood.Type)
	assert.Equal(t, 1, flood.Options.Int("max", 0))
	assert.Equal(t, time.Second, flood.Options.Duration("window", 0))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overbot.yaml")
	content := `
run_mode: daemon
loop:
  max_hops: 2
commands:
  prefix: "."
  unknown_reply: true
router:
  queue_size: 8
  sink_timeout: 250ms
bridges:
  console:
    enabled: false
  nats:
    - name: irc
      url: nats://bus:4222
      inbound: irc.in
      outbound: irc.out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, config.RunDaemon, s.RunMode)
	assert.Equal(t, 2, s.Loop.MaxHops)
	assert.Equal(t, ".", s.Commands.Prefix)
	assert.True(t, s.Commands.UnknownReply)
	assert.Equal(t, 8, s.Router.QueueSize)
	assert.Equal(t, 250*time.Millisecond, s.Router.SinkTimeout)
	assert.False(t, s.Bridges.Console.Enabled)
	require.Len(t, s.Bridges.NATS, 1)
	assert.Equal(t, config.NATSBridge{Name: "irc", URL: "nats://bus:4222", Inbound: "irc.in", Outbound: "irc.out"}, s.Bridges.NATS[0])
}

func TestParseSettingsRequiresBridgeName(t *testing.T) {
	cfg := config.New(map[string]any{
		"bridges": map[string]any{
			"nats": []any{map[string]any{"inbound": "x"}},
		},
	})
	_, err := config.ParseSettings(cfg)
	assert.ErrorContains(t, err, "name is required")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Settings)
		want   string
	}{
		{"unknown filter in order", func(s *config.Settings) { s.Filters.Order = []string{"ghost"} }, `unknown filter "ghost"`},
		{"filter without type", func(s *config.Settings) {
			s.Filters.Order = []string{"f"}
			s.Filters.Definitions["f"] = config.FilterDefinition{}
		}, "type is required"},
		{"zero queue", func(s *config.Settings) { s.Router.QueueSize = 0 }, "router.queue_size"},
		{"negative hops", func(s *config.Settings) { s.Loop.MaxHops = -1 }, "loop.max_hops"},
		{"zero workers", func(s *config.Settings) { s.Commands.Workers = 0 }, "commands.workers"},
		{"zero concurrency", func(s *config.Settings) { s.Router.DeliveryConcurrency = 0 }, "delivery_concurrency"},
		{"bad backend", func(s *config.Settings) { s.Metrics.Backend = "statsd" }, "metrics.backend"},
		{"bad run mode", func(s *config.Settings) { s.RunMode = "tui" }, "run_mode"},
		{"bad log format", func(s *config.Settings) { s.Log.Format = "xml" }, "log.format"},
		{"duplicate bridge", func(s *config.Settings) {
			s.Bridges.NATS = []config.NATSBridge{{Name: "console", Inbound: "x"}}
		}, "duplicate name"},
		{"bridge without subjects", func(s *config.Settings) {
			s.Bridges.NATS = []config.NATSBridge{{Name: "irc"}}
		}, "inbound or outbound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			tt.mutate(&s)
			assert.ErrorContains(t, s.Validate(), tt.want)
		})
	}
}
