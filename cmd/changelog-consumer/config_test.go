package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresCoreFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brick-path: /bricks/b1\n"), 0o640))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigDefaultsMaxReconnects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumer.yaml")
	body := "brick-path: /bricks/b1\nscratch-dir: /var/lib/scratch\nsocket: /run/consumer.sock\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxReconnects)
	require.Equal(t, "/bricks/b1", cfg.BrickPath)
}

func TestLoadConfigOverridesMaxReconnects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumer.yaml")
	body := "brick-path: /bricks/b1\nscratch-dir: /var/lib/scratch\nsocket: /run/consumer.sock\nmax-reconnects: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.MaxReconnects)
}
