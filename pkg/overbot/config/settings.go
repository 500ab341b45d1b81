package config

import (
	"errors"
	"fmt"
	"time"
)

// Run modes.
const (
	RunForeground = "foreground"
	RunDaemon     = "daemon"
)

// Metrics backends.
const (
	MetricsOTel       = "otel"
	MetricsPrometheus = "prometheus"
	MetricsNone       = "none"
)

// Settings is the typed, read-only view of an overbot configuration file.
type Settings struct {
	Filters    FilterSettings
	Loop       LoopSettings
	Commands   CommandSettings
	Router     RouterSettings
	DeadLetter DeadLetterSettings
	Metrics    MetricsSettings
	Log        LogSettings
	RunMode    string
	Bridges    BridgeSettings
}

// FilterSettings lists the filter chain in evaluation order.
type FilterSettings struct {
	Order       []string
	Timeout     time.Duration
	Definitions map[string]FilterDefinition
}

// FilterDefinition names a filter type and its type-specific options.
type FilterDefinition struct {
	Type    string
	Timeout time.Duration
	Options Config
}

// LoopSettings bounds how many times a derived event may re-enter the bus.
type LoopSettings struct {
	MaxHops int
}

// CommandSettings configures the command processor.
type CommandSettings struct {
	Enabled      bool
	Prefix       string
	UnknownReply bool
	Workers      int
	Timeout      time.Duration
}

// RouterSettings configures queueing and fan-out.
type RouterSettings struct {
	QueueSize           int
	SinkTimeout         time.Duration
	DeliveryConcurrency int
}

// DeadLetterSettings selects the delivery-failure store. An empty Path keeps
// failures in memory.
type DeadLetterSettings struct {
	Path    string
	MaxSize int
}

// MetricsSettings selects the metrics backend.
type MetricsSettings struct {
	Backend string
	Listen  string
}

// LogSettings configures the slog handler built by the CLI.
type LogSettings struct {
	Level  string
	Format string
}

// BridgeSettings lists the network bridges to attach.
type BridgeSettings struct {
	Console ConsoleBridge
	NATS    []NATSBridge
}

// ConsoleBridge attaches stdin/stdout in foreground mode.
type ConsoleBridge struct {
	Enabled bool
	Name    string
	Sender  string
	Channel string
	Format  string
}

// NATSBridge bridges a remote network through a pair of NATS subjects.
type NATSBridge struct {
	Name     string
	URL      string
	Inbound  string
	Outbound string
}

// Defaults used when a key is absent.
const (
	DefaultMaxHops             = 1
	DefaultQueueSize           = 64
	DefaultSinkTimeout         = 5 * time.Second
	DefaultFilterTimeout       = time.Second
	DefaultCommandPrefix       = "!"
	DefaultCommandWorkers      = 4
	DefaultCommandTimeout      = 10 * time.Second
	DefaultDeadLetterMaxSize   = 10000
	DefaultDeliveryConcurrency = 16
)

// DefaultSettings returns the settings used for an empty configuration.
func DefaultSettings() Settings {
	s, _ := ParseSettings(New(nil))
	return s
}

// ParseSettings reads Settings from a nested Config, applying defaults for
// absent keys. It does not validate; call Validate for that.
func ParseSettings(c Config) (Settings, error) {
	var s Settings

	filters := c.Sub("filters")
	s.Filters.Order = filters.StringSlice("order", nil)
	s.Filters.Timeout = filters.Duration("timeout", DefaultFilterTimeout)
	defs := filters.Sub("definitions")
	s.Filters.Definitions = make(map[string]FilterDefinition, len(defs.Raw()))
	for _, name := range defs.Keys() {
		d := defs.Sub(name)
		s.Filters.Definitions[name] = FilterDefinition{
			Type:    d.String("type", ""),
			Timeout: d.Duration("timeout", 0),
			Options: d.Sub("options"),
		}
	}

	s.Loop.MaxHops = c.Sub("loop").Int("max_hops", DefaultMaxHops)

	cmds := c.Sub("commands")
	s.Commands = CommandSettings{
		Enabled:      cmds.Bool("enabled", true),
		Prefix:       cmds.String("prefix", DefaultCommandPrefix),
		UnknownReply: cmds.Bool("unknown_reply", false),
		Workers:      cmds.Int("workers", DefaultCommandWorkers),
		Timeout:      cmds.Duration("timeout", DefaultCommandTimeout),
	}

	router := c.Sub("router")
	s.Router = RouterSettings{
		QueueSize:           router.Int("queue_size", DefaultQueueSize),
		SinkTimeout:         router.Duration("sink_timeout", DefaultSinkTimeout),
		DeliveryConcurrency: router.Int("delivery_concurrency", DefaultDeliveryConcurrency),
	}

	dl := c.Sub("deadletter")
	s.DeadLetter = DeadLetterSettings{
		Path:    dl.String("path", ""),
		MaxSize: dl.Int("max_size", DefaultDeadLetterMaxSize),
	}

	m := c.Sub("metrics")
	s.Metrics = MetricsSettings{
		Backend: m.String("backend", MetricsNone),
		Listen:  m.String("listen", ":9090"),
	}

	l := c.Sub("log")
	s.Log = LogSettings{
		Level:  l.String("level", "info"),
		Format: l.String("format", "text"),
	}

	s.RunMode = c.String("run_mode", RunForeground)

	bridges := c.Sub("bridges")
	console := bridges.Sub("console")
	s.Bridges.Console = ConsoleBridge{
		Enabled: console.Bool("enabled", true),
		Name:    console.String("name", "console"),
		Sender:  console.String("sender", "operator"),
		Channel: console.String("channel", "console"),
		Format:  console.String("format", "[${origin}] <${sender}> ${text}"),
	}
	for i, n := range bridges.List("nats") {
		b := NATSBridge{
			Name:     n.String("name", ""),
			URL:      n.String("url", "nats://127.0.0.1:4222"),
			Inbound:  n.String("inbound", ""),
			Outbound: n.String("outbound", ""),
		}
		if b.Name == "" {
			return Settings{}, fmt.Errorf("bridges.nats[%d]: name is required", i)
		}
		s.Bridges.NATS = append(s.Bridges.NATS, b)
	}

	return s, nil
}

// Load reads a configuration file and parses it into Settings.
func Load(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return ParseSettings(c)
}

// Validate reports every problem in s joined into one error.
func (s Settings) Validate() error {
	var errs []error

	for _, name := range s.Filters.Order {
		def, ok := s.Filters.Definitions[name]
		if !ok {
			errs = append(errs, fmt.Errorf("filters.order: unknown filter %q", name))
			continue
		}
		if def.Type == "" {
			errs = append(errs, fmt.Errorf("filters.definitions.%s: type is required", name))
		}
	}
	if s.Filters.Timeout <= 0 {
		errs = append(errs, errors.New("filters.timeout must be positive"))
	}
	if s.Loop.MaxHops < 1 {
		errs = append(errs, errors.New("loop.max_hops must be at least 1"))
	}
	if s.Commands.Workers <= 0 {
		errs = append(errs, errors.New("commands.workers must be positive"))
	}
	if s.Commands.Timeout <= 0 {
		errs = append(errs, errors.New("commands.timeout must be positive"))
	}
	if s.Commands.Enabled && s.Commands.Prefix == "" {
		errs = append(errs, errors.New("commands.prefix must not be empty"))
	}
	if s.Router.QueueSize <= 0 {
		errs = append(errs, errors.New("router.queue_size must be positive"))
	}
	if s.Router.SinkTimeout <= 0 {
		errs = append(errs, errors.New("router.sink_timeout must be positive"))
	}
	if s.Router.DeliveryConcurrency <= 0 {
		errs = append(errs, errors.New("router.delivery_concurrency must be positive"))
	}
	if s.DeadLetter.MaxSize <= 0 {
		errs = append(errs, errors.New("deadletter.max_size must be positive"))
	}
	switch s.Metrics.Backend {
	case MetricsOTel, MetricsPrometheus, MetricsNone:
	default:
		errs = append(errs, fmt.Errorf("metrics.backend: unknown backend %q", s.Metrics.Backend))
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", s.Log.Format))
	}
	switch s.RunMode {
	case RunForeground, RunDaemon:
	default:
		errs = append(errs, fmt.Errorf("run_mode: unknown mode %q", s.RunMode))
	}
	seen := map[string]bool{s.Bridges.Console.Name: s.Bridges.Console.Enabled}
	for _, b := range s.Bridges.NATS {
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("bridges: duplicate name %q", b.Name))
		}
		seen[b.Name] = true
		if b.Inbound == "" && b.Outbound == "" {
			errs = append(errs, fmt.Errorf("bridges.nats.%s: inbound or outbound subject is required", b.Name))
		}
	}

	return errors.Join(errs...)
}

// DefaultYAML returns the configuration file written by `overbot init`.
func DefaultYAML() string {
	return defaultYAML
}

const defaultYAML = `# overbot configuration
run_mode: foreground

log:
  level: info
  format: text

loop:
  max_hops: 1

router:
  queue_size: 64
  sink_timeout: 5s
  delivery_concurrency: 16

filters:
  timeout: 1s
  order: [flood]
  definitions:
    flood:
      type: ratelimit
      options:
        max: 1
        window: 1s
        max_senders: 10000

commands:
  enabled: true
  prefix: "!"
  unknown_reply: false
  workers: 4
  timeout: 10s

deadletter:
  path: ""
  max_size: 10000

metrics:
  backend: none
  listen: ":9090"

bridges:
  console:
    enabled: true
    name: console
    sender: operator
    channel: console
    format: "[${origin}] <${sender}> ${text}"
  nats: []
`
