package audiodev_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/sim"
	"github.com/tphakala/audiodevice/internal/observability/metrics"
)

var _ audiodev.Recorder = (*metrics.DeviceMetrics)(nil)

func TestDeviceLifecycleMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewDeviceMetrics(registry)
	require.NoError(t, err)

	sys := newSim(t, sim.Config{
		Name:     "metered",
		Hardware: audiodev.Spec{Freq: 48000},
	})
	withMetrics := audiodev.WithMetrics(m)

	_, err = audiodev.Open(sys, "", false, audiodev.Spec{Freq: 8000, Format: audiodev.FormatU8, Channels: 1}, nil, quiet, withMetrics)
	require.Error(t, err)

	dev, err := audiodev.Open(sys, "", false, stereo16(), nil, quiet, withMetrics)
	require.NoError(t, err)

	lock := dev.Lock()
	lock.Copy().Unlock()
	lock.Unlock()
	dev.ChangeCallback(nil)
	require.NoError(t, dev.QueueAudio(make([]byte, 100)))
	require.NoError(t, dev.Close())

	count := func(name string) float64 {
		t.Helper()
		n, err := testutil.GatherAndCount(registry, name)
		require.NoError(t, err)
		return float64(n)
	}
	assert.InDelta(t, 1, count("audiodevice_device_open_errors_total"), 0)
	assert.InDelta(t, 1, count("audiodevice_device_opens_total"), 0)

	// Three units: the explicit lock, its copy, and the one taken by ChangeCallback.
	expected := `
# HELP audiodevice_device_lock_acquisitions_total Total number of device lock units acquired
# TYPE audiodevice_device_lock_acquisitions_total counter
audiodevice_device_lock_acquisitions_total{backend="metered"} 3
# HELP audiodevice_device_locks_held Number of device lock units currently held
# TYPE audiodevice_device_locks_held gauge
audiodevice_device_locks_held{backend="metered"} 0
# HELP audiodevice_device_queued_bytes_total Total number of bytes queued for playback
# TYPE audiodevice_device_queued_bytes_total counter
audiodevice_device_queued_bytes_total{backend="metered"} 100
# HELP audiodevice_devices_open Number of devices currently open
# TYPE audiodevice_devices_open gauge
audiodevice_devices_open{backend="metered"} 0
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"audiodevice_device_lock_acquisitions_total",
		"audiodevice_device_locks_held",
		"audiodevice_device_queued_bytes_total",
		"audiodevice_devices_open",
	))
}
