// Package metrics provides Prometheus metrics for audio devices.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DeviceMetrics records device lifecycle events per backend. It implements
// audiodev.Recorder.
type DeviceMetrics struct {
	opens         *prometheus.CounterVec
	openErrors    *prometheus.CounterVec
	closes        *prometheus.CounterVec
	openDevices   *prometheus.GaugeVec
	locks         *prometheus.CounterVec
	heldLocks     *prometheus.GaugeVec
	callbackSwaps *prometheus.CounterVec
	queuedBytes   *prometheus.CounterVec
	queueErrors   *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewDeviceMetrics creates device metrics and registers them with registry.
func NewDeviceMetrics(registry prometheus.Registerer) (*DeviceMetrics, error) {
	m := &DeviceMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DeviceMetrics) initMetrics() {
	m.opens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_opens_total",
			Help:      "Total number of devices opened",
		},
		[]string{"backend", "direction"},
	)

	m.openErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_open_errors_total",
			Help:      "Total number of failed device opens",
		},
		[]string{"backend"},
	)

	m.closes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_closes_total",
			Help:      "Total number of devices closed",
		},
		[]string{"backend"},
	)

	m.openDevices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "devices_open",
			Help:      "Number of devices currently open",
		},
		[]string{"backend"},
	)

	m.locks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_lock_acquisitions_total",
			Help:      "Total number of device lock units acquired",
		},
		[]string{"backend"},
	)

	m.heldLocks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "device_locks_held",
			Help:      "Number of device lock units currently held",
		},
		[]string{"backend"},
	)

	m.callbackSwaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_callback_swaps_total",
			Help:      "Total number of callback replacements",
		},
		[]string{"backend"},
	)

	m.queuedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_queued_bytes_total",
			Help:      "Total number of bytes queued for playback",
		},
		[]string{"backend"},
	)

	m.queueErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_queue_errors_total",
			Help:      "Total number of rejected queue operations",
		},
		[]string{"backend"},
	)

	m.collectors = []prometheus.Collector{
		m.opens, m.openErrors, m.closes, m.openDevices,
		m.locks, m.heldLocks, m.callbackSwaps,
		m.queuedBytes, m.queueErrors,
	}
}

// Describe implements the prometheus.Collector interface
func (m *DeviceMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *DeviceMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOpen records a successful device open
func (m *DeviceMetrics) RecordOpen(backend string, capture bool) {
	m.opens.WithLabelValues(backend, direction(capture)).Inc()
	m.openDevices.WithLabelValues(backend).Inc()
}

// RecordOpenError records a failed device open
func (m *DeviceMetrics) RecordOpenError(backend string) {
	m.openErrors.WithLabelValues(backend).Inc()
}

// RecordClose records a device close
func (m *DeviceMetrics) RecordClose(backend string) {
	m.closes.WithLabelValues(backend).Inc()
	m.openDevices.WithLabelValues(backend).Dec()
}

// RecordLock records one lock unit taken
func (m *DeviceMetrics) RecordLock(backend string) {
	m.locks.WithLabelValues(backend).Inc()
	m.heldLocks.WithLabelValues(backend).Inc()
}

// RecordUnlock records one lock unit released
func (m *DeviceMetrics) RecordUnlock(backend string) {
	m.heldLocks.WithLabelValues(backend).Dec()
}

// RecordCallbackSwap records a callback replacement
func (m *DeviceMetrics) RecordCallbackSwap(backend string) {
	m.callbackSwaps.WithLabelValues(backend).Inc()
}

// RecordQueued records bytes accepted by a device queue
func (m *DeviceMetrics) RecordQueued(backend string, bytes int) {
	m.queuedBytes.WithLabelValues(backend).Add(float64(bytes))
}

// RecordQueueError records a rejected queue operation
func (m *DeviceMetrics) RecordQueueError(backend string) {
	m.queueErrors.WithLabelValues(backend).Inc()
}
