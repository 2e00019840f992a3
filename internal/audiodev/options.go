package audiodev

import (
	"github.com/tphakala/audiodevice/internal/logger"
)

// Recorder receives device lifecycle events. The metrics package provides a
// Prometheus implementation.
type Recorder interface {
	RecordOpen(backend string, capture bool)
	RecordOpenError(backend string)
	RecordClose(backend string)
	RecordLock(backend string)
	RecordUnlock(backend string)
	RecordCallbackSwap(backend string)
	RecordQueued(backend string, bytes int)
	RecordQueueError(backend string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOpen(string, bool)   {}
func (noopRecorder) RecordOpenError(string)    {}
func (noopRecorder) RecordClose(string)        {}
func (noopRecorder) RecordLock(string)         {}
func (noopRecorder) RecordUnlock(string)       {}
func (noopRecorder) RecordCallbackSwap(string) {}
func (noopRecorder) RecordQueued(string, int)  {}
func (noopRecorder) RecordQueueError(string)   {}

type options struct {
	log     logger.Logger
	metrics Recorder
}

// Option configures Open and OpenNegotiated.
type Option func(*options)

// WithLogger sets the logger used for lifecycle diagnostics. Defaults to the
// global "audiodev" module logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics sets the recorder for lifecycle events.
func WithMetrics(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{metrics: noopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().Module("audiodev")
	}
	return o
}
