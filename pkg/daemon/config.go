package daemon

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v2"
)

// FileConfig is the on-disk daemon-level settings file shape (the
// minimal config surface this core needs: listen addresses, poll/
// reclaim intervals, log level). CAN gateway jobs themselves are never
// described here — they're installed exclusively through the gRPC
// control plane, not a config file.
type FileConfig struct {
	GRPCAddr      string `yaml:"grpc_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
	ReclaimPeriod string `yaml:"reclaim_period"`
	DevPollPeriod string `yaml:"dev_poll_period"`
	Debug         bool   `yaml:"debug"`
}

// LoadConfig reads and parses a YAML daemon-settings file at path.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("daemon: read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("daemon: parse config %s: %w", path, err)
	}
	return &fc, nil
}

// ApplyTo merges fc's set fields into opts, for every field the caller
// hasn't already overridden with an explicit command-line flag.
func (fc *FileConfig) ApplyTo(opts *Options, explicit map[string]bool) error {
	if fc.GRPCAddr != "" && !explicit["grpc-addr"] {
		opts.GRPCAddr = fc.GRPCAddr
	}
	if fc.MetricsAddr != "" && !explicit["metrics-addr"] {
		opts.MetricsAddr = fc.MetricsAddr
	}
	if fc.ReclaimPeriod != "" && !explicit["reclaim-period"] {
		d, err := time.ParseDuration(fc.ReclaimPeriod)
		if err != nil {
			return fmt.Errorf("daemon: reclaim_period: %w", err)
		}
		opts.ReclaimPeriod = d
	}
	if fc.DevPollPeriod != "" && !explicit["dev-poll-period"] {
		d, err := time.ParseDuration(fc.DevPollPeriod)
		if err != nil {
			return fmt.Errorf("daemon: dev_poll_period: %w", err)
		}
		opts.DevPollPeriod = d
	}
	return nil
}
