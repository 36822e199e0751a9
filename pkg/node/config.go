package node

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/canlog/pkg/datalog"
)

// SimInterface selects the built-in encoder simulator instead of a CAN
// interface.
const SimInterface = "sim"

// Config defines the node configuration.
type Config struct {
	// NodeID identifies the node in telemetry. Defaults to the machine id.
	NodeID string `yaml:"node_id"`
	// Interface is the SocketCAN interface, or SimInterface.
	Interface string `yaml:"interface"`
	// Dir is where session files are stored.
	Dir string `yaml:"dir"`
	// Mode is the initial operating mode.
	Mode string `yaml:"mode"`
	// AutoStart starts a logging session when the node starts.
	AutoStart bool `yaml:"autostart"`
	// Debug is the initial debug level, 0 (off) to 3 (verbose).
	Debug int `yaml:"debug"`
	// PollInterval is the period of encoder read requests.
	PollInterval time.Duration `yaml:"poll_interval"`
	// DisplayInterval is the period of the measured values report.
	DisplayInterval time.Duration `yaml:"display_interval"`
	// ZeroSpacing separates the zero requests of zeroall.
	ZeroSpacing time.Duration `yaml:"zero_spacing"`
	// MQTTBrokerURL enables telemetry when set.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt_url"`
	// HTTPAddr enables the web API when set.
	HTTPAddr string `yaml:"http_addr"`

	Log datalog.Config `yaml:"log"`
}

var defaultConfig = Config{
	Interface:       "can0",
	Dir:             "/var/lib/canlog",
	Mode:            ModeNormal.String(),
	Debug:           DebugInfo,
	PollInterval:    100 * time.Millisecond,
	DisplayInterval: time.Second,
	ZeroSpacing:     20 * time.Millisecond,
	Log:             datalog.DefaultConfig(),
}

func init() {
	if val := os.Getenv("CANLOG_IFACE"); val != "" {
		defaultConfig.Interface = val
	}
	if val := os.Getenv("CANLOG_DIR"); val != "" {
		defaultConfig.Dir = val
	}
	if val := os.Getenv("CANLOG_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("CANLOG_HTTP"); val != "" {
		defaultConfig.HTTPAddr = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.NodeID, "id", defaultConfig.NodeID, "Node ID, defaults to the machine id")
	flag.StringVar(&defaultConfig.Interface, "iface", defaultConfig.Interface, "CAN interface, or \"sim\" for the encoder simulator")
	flag.StringVar(&defaultConfig.Dir, "dir", defaultConfig.Dir, "Directory of session files")
	flag.StringVar(&defaultConfig.Mode, "mode", defaultConfig.Mode, "Operating mode: normal or sniffer")
	flag.BoolVar(&defaultConfig.AutoStart, "autostart", defaultConfig.AutoStart, "Start logging on startup")
	flag.IntVar(&defaultConfig.Debug, "debug", defaultConfig.Debug, "Debug level 0..3")
	flag.DurationVar(&defaultConfig.PollInterval, "poll", defaultConfig.PollInterval, "Encoder poll interval")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.HTTPAddr, "http", defaultConfig.HTTPAddr, "Web API listen address")
	flag.IntVar(&defaultConfig.Log.BufferSize, "log-buffer", defaultConfig.Log.BufferSize, "Log ring buffer size in bytes")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the values which have no usable fallback.
func (c *Config) Validate() error {
	if _, err := ParseMode(c.Mode); err != nil {
		return err
	}
	if c.Debug < DebugOff || c.Debug > DebugVerbose {
		return fmt.Errorf("debug level %d out of range 0..3", c.Debug)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// ID returns the node id, falling back to the machine id.
func (c *Config) ID() string {
	if c.NodeID != "" {
		return c.NodeID
	}
	id, err := machineid.ProtectedID("canlog")
	if err != nil {
		return "canlog"
	}
	return id
}
