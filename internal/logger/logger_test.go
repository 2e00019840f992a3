package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"trace", "TRACE"},
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelName(parseLogLevel(tt.in)), "level %q", tt.in)
	}
}

func TestModuleLoggerConsoleOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: true, Level: "debug"},
	}, WithConsoleWriter(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	log := cl.Module("audiodev").With(Uint64("device_id", 2))
	log.Debug("Device opened", String("name", "default"), Duration("latency", 10*time.Millisecond))
	log.Trace("filtered out")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "module=audiodev")
	assert.Contains(t, out, "device_id=2")
	assert.Contains(t, out, "name=default")
	assert.Contains(t, out, "latency=10ms")
	assert.NotContains(t, out, "filtered out")
	assert.NotContains(t, out, "time=", "console output should omit timestamps")
}

func TestModuleLevelOverride(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"audiodev.sim": "error"},
	}, WithConsoleWriter(&buf))
	require.NoError(t, err)

	cl.Module("audiodev.sim").Warn("suppressed")
	cl.Module("audiodev").Warn("visible")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "visible")
}

func TestSubModuleNaming(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewTestLogger(&buf, LogLevelInfo)
	log.Module("audiodev").Module("malgo").Info("started")

	assert.Contains(t, buf.String(), "module=audiodev.malgo")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewTestLogger(&buf, LogLevelInfo)

	log.WithContext(context.Background()).Info("no trace")
	log.WithContext(WithTraceID(context.Background(), "abc123")).Info("traced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "trace_id")
	assert.Contains(t, lines[1], "trace_id=abc123")
}

func TestFileOutputJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "audiodevice.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput: &FileOutput{
			Enabled: true,
			Path:    path,
			MaxSize: 1,
			Level:   "info",
		},
	})
	require.NoError(t, err)

	cl.Module("cmd").Info("queued audio", Int("bytes", 4096), Float64("ratio", 0.123456))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "cmd", rec["module"])
	assert.InDelta(t, 4096, rec["bytes"], 0)
	assert.InDelta(t, 0.123, rec["ratio"], 1e-9)
	assert.Contains(t, rec, "time")
}

func TestModuleFileOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modPath := filepath.Join(dir, "malgo.log")
	var console bytes.Buffer

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "info"},
		ModuleOutputs: map[string]ModuleOutput{
			"audiodev.malgo": {Enabled: true, FilePath: modPath, ConsoleAlso: true},
		},
	}, WithConsoleWriter(&console))
	require.NoError(t, err)

	cl.Module("audiodev.malgo").Info("context initialized")
	require.NoError(t, cl.Rotate())
	require.NoError(t, cl.Close())

	assert.Contains(t, console.String(), "context initialized")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 1)
}

func TestNewCentralLoggerErrors(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}

func TestNilLoggerSafety(t *testing.T) {
	t.Parallel()

	var m *moduleLogger
	assert.NotPanics(t, func() {
		m.Info("ignored")
		m.Error("ignored")
		m.Log(LogLevelWarn, "ignored")
	})

	var cl *CentralLogger
	assert.Nil(t, cl.Module("x"))
	assert.NoError(t, cl.Close())
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Error(nil).Value)
	f := Error(os.ErrNotExist)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, os.ErrNotExist.Error(), f.Value)
}
