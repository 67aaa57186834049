package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GatewayConfig describes one gateway in the config file.
type GatewayConfig struct {
	MAC       string `yaml:"mac"`
	Address   string `yaml:"address"`
	Proxy     string `yaml:"proxy,omitempty"`
	Units     []int  `yaml:"units,omitempty"`
	ClockSync bool   `yaml:"clock_sync,omitempty"`
}

// FileConfig is the YAML configuration file layout.
type FileConfig struct {
	LogLevel  string          `yaml:"log_level,omitempty"`
	TraceFile string          `yaml:"trace_file,omitempty"`
	Gateways  []GatewayConfig `yaml:"gateways"`
}

// loadConfig reads and validates a YAML config file.
func loadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, gw := range cfg.Gateways {
		if gw.MAC == "" {
			return nil, fmt.Errorf("%s: gateway %d has no mac", path, i+1)
		}
		if gw.Address == "" {
			return nil, fmt.Errorf("%s: gateway %s has no address", path, gw.MAC)
		}
	}
	return &cfg, nil
}
