package raftchaos

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Duration lets YAML configs use "500ms" / "2s" notation.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// NodeConfig identifies one cluster member and its two endpoints.
type NodeConfig struct {
	ID         string `yaml:"id"`
	ClientAddr string `yaml:"client_addr"`
	MgmtAddr   string `yaml:"mgmt_addr"`
}

// WorkloadConfig shapes the concurrent client load.
type WorkloadConfig struct {
	Clients        int      `yaml:"clients"`
	Keys           int      `yaml:"keys"`
	RequestTimeout Duration `yaml:"request_timeout"`
	Duration       Duration `yaml:"duration"`
}

// ChaosConfig shapes the fault schedule applied while the workload runs.
type ChaosConfig struct {
	// Interval is the pause between consecutive fault steps.
	Interval Duration `yaml:"interval"`
	// Steps is the number of fault steps in the schedule.
	Steps int `yaml:"steps"`
	// Latency injected by latency steps.
	Latency Duration `yaml:"latency"`
	// PacketLoss probability injected by loss steps, in [0, 1].
	PacketLoss float64 `yaml:"packet_loss"`
	// Reordering enables reordering steps in the schedule.
	Reordering bool `yaml:"reordering"`
	// Seed for the random source. Zero means seed from the clock.
	Seed int64 `yaml:"seed"`
}

// Config is the root configuration of a chaos run.
type Config struct {
	Nodes         []NodeConfig   `yaml:"nodes"`
	Workload      WorkloadConfig `yaml:"workload"`
	Chaos         ChaosConfig    `yaml:"chaos"`
	RecordHistory bool           `yaml:"record_history"`
	RecordPath    string         `yaml:"record_path"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and fills in defaults for optional
// workload settings.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return errors.New("config: no nodes")
	}
	seen := make(map[string]bool)
	for _, n := range c.Nodes {
		if n.ID == "" || n.ClientAddr == "" || n.MgmtAddr == "" {
			return errors.Newf("config: node %+v missing id or endpoint", n)
		}
		if seen[n.ID] {
			return errors.Newf("config: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	if c.Chaos.PacketLoss < 0 || c.Chaos.PacketLoss > 1 {
		return errors.Newf("config: packet_loss %f outside [0, 1]", c.Chaos.PacketLoss)
	}
	if c.Workload.Clients <= 0 {
		c.Workload.Clients = 4
	}
	if c.Workload.Keys <= 0 {
		c.Workload.Keys = 8
	}
	if c.Workload.RequestTimeout <= 0 {
		c.Workload.RequestTimeout = Duration(2 * time.Second)
	}
	if c.Workload.Duration <= 0 {
		c.Workload.Duration = Duration(30 * time.Second)
	}
	if c.Chaos.Interval <= 0 {
		c.Chaos.Interval = Duration(time.Second)
	}
	if c.Chaos.Steps <= 0 {
		c.Chaos.Steps = 10
	}
	return nil
}
