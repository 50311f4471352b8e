package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gluster/changelog/internal/xlog"
)

// ConsumerConfig is the changelog-consumer process configuration (spec.md
// §4.7 register() parameters, plus the UNIX socket the reverse-RPC
// endpoint listens on).
type ConsumerConfig struct {
	Logging xlog.Config `yaml:"logging"`

	BrickPath     string `yaml:"brick-path"`
	ScratchDir    string `yaml:"scratch-dir"`
	Socket        string `yaml:"socket"`
	MaxReconnects int    `yaml:"max-reconnects"`
}

func DefaultConfig() *ConsumerConfig {
	return &ConsumerConfig{MaxReconnects: 5}
}

func LoadConfig(path string) (*ConsumerConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("changelog-consumer: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("changelog-consumer: decode config: %w", err)
	}
	if cfg.BrickPath == "" || cfg.ScratchDir == "" || cfg.Socket == "" {
		return nil, fmt.Errorf("changelog-consumer: brick-path, scratch-dir and socket are required")
	}
	return cfg, nil
}
