package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gluster/changelog/internal/xlog"
	"github.com/gluster/changelog/producer"
)

// AgentConfig is the changelog-agent process configuration: logging plus
// the producer engine's own options, a logging-embedded-in-a-process-config
// shape matching controlplane/pkg/yncp.Config.
type AgentConfig struct {
	Logging xlog.Config `yaml:"logging"`

	Producer producer.Config `yaml:"producer"`

	// ConsumerSockets lists the reverse-connect targets (UNIX socket
	// paths) this brick dials at startup (spec.md §4.6/§4.8).
	ConsumerSockets []string `yaml:"consumer-sockets"`
}

func DefaultConfig() *AgentConfig {
	cfg := &AgentConfig{}
	if def := producer.DefaultConfig(); def != nil {
		cfg.Producer = *def
	}
	return cfg
}

func LoadConfig(path string) (*AgentConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("changelog-agent: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("changelog-agent: decode config: %w", err)
	}
	return cfg, nil
}
