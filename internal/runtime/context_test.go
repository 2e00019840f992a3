package runtime

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/buildinfo"
	"github.com/tphakala/audiodevice/internal/conf"
	"github.com/tphakala/audiodevice/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() *conf.Settings {
	return &conf.Settings{
		Audio: conf.AudioSettings{
			Backend:  "null",
			Freq:     48000,
			Format:   "s16le",
			Channels: 2,
			Samples:  512,
		},
		Logging: logger.LoggingConfig{
			DefaultLevel: "debug",
			Console:      &logger.ConsoleOutput{Enabled: true, Level: "debug"},
		},
		Metrics: conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"},
	}
}

func TestNewOpenBackendAndRecordMetrics(t *testing.T) {
	var console bytes.Buffer
	rc, err := New(buildinfo.New("v1.2.3", "2026-10-19"), testSettings(), WithConsole(&console))
	require.NoError(t, err)
	defer func() { assert.NoError(t, rc.Close()) }()

	sys, err := rc.OpenBackend()
	require.NoError(t, err)
	defer func() { _ = sys.Close() }()

	spec, err := rc.Settings.Audio.Spec()
	require.NoError(t, err)
	dev, err := audiodev.Open(sys, "", false, spec, func([]byte) {}, rc.DeviceOptions()...)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	families, err := rc.Metrics.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "audiodevice_device_opens_total")
	assert.Contains(t, console.String(), "run_id="+rc.RunID.String())
	assert.Equal(t, "audiodevice@v1.2.3", rc.Build.Release())
}

func TestServeStopsEndpointWhenWorkReturns(t *testing.T) {
	rc, err := New(buildinfo.New("dev", ""), testSettings(), WithConsole(&bytes.Buffer{}))
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	ran := false
	require.NoError(t, rc.Serve(context.Background(), func(ctx context.Context) error {
		ran = true
		assert.Equal(t, rc.RunID.String(), ctx.Value(logger.TraceIDKey))
		return nil
	}))
	assert.True(t, ran)

	boom := errors.New("boom")
	err = rc.Serve(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
