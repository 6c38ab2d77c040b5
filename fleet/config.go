package fleet

import (
	"os"
	"strings"
	"time"

	"github.com/eluv-io/errors-go"
	elog "github.com/eluv-io/log-go"
	"gopkg.in/yaml.v3"

	"github.com/eluv-io/tsaudit/broadcastproto/transport"
	"github.com/eluv-io/tsaudit/probe"
)

const (
	DefaultWindow        = 10 * time.Second
	DefaultInterval      = 20 * time.Second
	DefaultFaultTTL      = 30 * time.Minute
	DefaultFaultCCErrors = 10
)

// Config is the fleet configuration file.
type Config struct {
	Endpoints   []probe.Endpoint `yaml:"endpoints"`
	Window      time.Duration    `yaml:"window"`
	Interval    time.Duration    `yaml:"interval"`
	Concurrency int              `yaml:"concurrency"`

	Interface  string `yaml:"interface"`
	ReadBuffer int    `yaml:"read_buffer"`

	Thresholds Thresholds    `yaml:"thresholds"`
	FaultTTL   time.Duration `yaml:"fault_ttl"`

	MetricsAddr string    `yaml:"metrics_addr"`
	Log         LogConfig `yaml:"log"`
}

// Thresholds holds the classification thresholds and the continuity error
// count above which a stream is named in a fault description.
type Thresholds struct {
	probe.Thresholds `yaml:",inline"`
	FaultCCErrors    int `yaml:"fault_cc_errors"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Handler string `yaml:"handler"` // text or json
	File    string `yaml:"file"`    // empty logs to the console
}

// DefaultEndpoints returns the seven feeds of the reference deployment.
func DefaultEndpoints() []probe.Endpoint {
	eps := make([]probe.Endpoint, 0, 7)
	for port := 10071; port <= 10077; port++ {
		eps = append(eps, probe.Endpoint{Group: "224.200.200.200", Port: port})
	}
	return eps
}

// DefaultThresholds returns the classification defaults and the default
// fault continuity error count.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Thresholds:    probe.DefaultThresholds(),
		FaultCCErrors: DefaultFaultCCErrors,
	}
}

// DefaultConfig returns a normalized configuration probing DefaultEndpoints.
func DefaultConfig() *Config {
	cfg := &Config{Endpoints: DefaultEndpoints(), Thresholds: DefaultThresholds()}
	cfg.Normalize()
	return cfg
}

// Load reads, normalizes and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	e := errors.Template("fleet.Load", errors.K.Invalid, "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E("fleet.Load", errors.K.IO, err, "path", path)
	}
	// thresholds absent from the file keep their defaults, explicit zeros stay
	cfg := &Config{Thresholds: DefaultThresholds()}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, e(err, "reason", "invalid yaml")
	}
	cfg.Normalize()
	if err = cfg.Validate(); err != nil {
		return nil, e(err)
	}
	return cfg, nil
}

// Normalize fills unset fields with their defaults. Thresholds are left
// alone: zero is a valid threshold.
func (c *Config) Normalize() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = len(c.Endpoints)
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = transport.UDP_READ_BUFFER_SIZE
	}
	if c.FaultTTL <= 0 {
		c.FaultTTL = DefaultFaultTTL
	}
	for i := range c.Endpoints {
		c.Endpoints[i].Proto = strings.ToLower(c.Endpoints[i].Proto)
		if c.Endpoints[i].Proto == "" {
			c.Endpoints[i].Proto = "udp"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Handler == "" {
		c.Log.Handler = "text"
	}
}

// Validate checks the configuration without modifying it.
func (c *Config) Validate() error {
	e := errors.Template("Config.Validate", errors.K.Invalid)

	if len(c.Endpoints) == 0 {
		return e("reason", "no endpoints configured")
	}
	seen := make(map[string]bool)
	for _, ep := range c.Endpoints {
		if ep.Group == "" {
			return e("reason", "endpoint without group", "endpoint", ep.Name)
		}
		if ep.Port < 1 || ep.Port > 65535 {
			return e("reason", "port out of range", "endpoint", ep.ID())
		}
		switch ep.Proto {
		case "", "udp", "rtp", "srt":
		default:
			return e("reason", "unsupported protocol", "endpoint", ep.ID(), "proto", ep.Proto)
		}
		if seen[ep.ID()] {
			return e("reason", "duplicate endpoint", "endpoint", ep.ID())
		}
		seen[ep.ID()] = true
	}
	if c.Window <= 0 {
		return e("reason", "window must be positive", "window", c.Window)
	}
	if c.Interval < 0 {
		return e("reason", "interval must not be negative", "interval", c.Interval)
	}
	if c.Thresholds.MaxErrorRate < 0 || c.Thresholds.MaxErrorRate > 1 {
		return e("reason", "max_cc_error_rate must be within [0, 1]", "max_cc_error_rate", c.Thresholds.MaxErrorRate)
	}
	if c.Thresholds.MinPackets < 0 {
		return e("reason", "min_packets must not be negative", "min_packets", c.Thresholds.MinPackets)
	}
	if c.Thresholds.FaultCCErrors < 0 {
		return e("reason", "fault_cc_errors must not be negative", "fault_cc_errors", c.Thresholds.FaultCCErrors)
	}
	return nil
}

// ProbeConfig returns the configuration shared by the probes of a cycle.
func (c *Config) ProbeConfig() probe.Config {
	return probe.Config{
		Duration:   c.Window,
		Thresholds: c.Thresholds.Thresholds,
		Transport: transport.Options{
			Interface:  c.Interface,
			ReadBuffer: c.ReadBuffer,
		},
	}
}

// LoggerConfig converts the log section to the log-go configuration.
func (c *Config) LoggerConfig() *elog.Config {
	lc := &elog.Config{
		Level:   c.Log.Level,
		Handler: c.Log.Handler,
	}
	if c.Log.File != "" {
		lc.File = &elog.LumberjackConfig{
			Filename:  c.Log.File,
			LocalTime: true,
		}
	}
	return lc
}
