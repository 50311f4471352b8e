package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesProducerDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("producer:\n  changelog: true\n  changelog-dir: /var/lib/brick1/changelogs\n"), 0o640))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.True(t, cfg.Producer.Enabled)
	require.Equal(t, "/var/lib/brick1/changelogs", cfg.Producer.Dir)
	require.Equal(t, "ascii", cfg.Producer.Encoding.String())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfigConsumerSockets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	body := "producer:\n  changelog: true\n  changelog-dir: /d\n" +
		"consumer-sockets:\n  - /run/a.sock\n  - /run/b.sock\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"/run/a.sock", "/run/b.sock"}, cfg.ConsumerSockets)
}
