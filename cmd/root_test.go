package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiodevice/internal/conf"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, cleanup := newRootCommand("test", "")
	defer func() { assert.NoError(t, cleanup()) }()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "--backend", "null", "--freq", "22050", "config", "show")
	require.NoError(t, err)

	var shown conf.Settings
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "null", shown.Audio.Backend)
	assert.Equal(t, 22050, shown.Audio.Freq)
}

func TestInvalidFlagValueFailsBeforeRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "--format", "s24", "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio.format")
}

func TestDevicesOnNullBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "--backend", "null", "--log-level", "error", "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "playback")
	assert.Contains(t, out, "default")
}

func TestPlayOnNullBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "--backend", "null", "--log-level", "error",
		"play", "--duration", "30ms", "--fade-in", "10ms")
	require.NoError(t, err)
}

func TestVersionFlagSkipsConfig(t *testing.T) {
	out, err := execute(t, "--version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "audiodevice version test (built unknown")
}
