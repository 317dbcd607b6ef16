package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig is the top-level exchange.yaml document.
type ExchangeConfig struct {
	Version  int `yaml:"version"`
	Exchange struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Pattern string `yaml:"pattern"` // "pubsub" or "group"
	} `yaml:"exchange"`
	Transport struct {
		Name      string `yaml:"name"`
		BrokerURL string `yaml:"broker_url"`
	} `yaml:"transport"`
	Farms []struct {
		ID    string `yaml:"id"`
		Label string `yaml:"label"`
	} `yaml:"farms"`
	Network struct {
		UIPort int `yaml:"ui_port"`
	} `yaml:"network"`
	Animation struct {
		HighlightMs        int `yaml:"highlight_ms"`
		InstallSettleMs    int `yaml:"install_settle_ms"`
		RenderSettleMs     int `yaml:"render_settle_ms"`
		WatchdogIntervalMs int `yaml:"watchdog_interval_ms"`
	} `yaml:"animation"`
}

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *ExchangeConfig) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// TransportName returns the configured transport display name, defaulting to
// MQTT.
func (c *ExchangeConfig) TransportName() string {
	if c.Transport.Name == "" {
		return "MQTT"
	}
	return c.Transport.Name
}

func LoadExchangeConfig(path string) (*ExchangeConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ExchangeConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported exchange.yaml version: %d", cfg.Version)
	}

	return &cfg, nil
}
