package audiodev

import (
	"github.com/tphakala/audiodevice/internal/errors"
)

// Sentinels for errors.Is. Errors returned by this package carry the same
// category plus the subsystem's diagnostic text.
var (
	ErrDeviceOpen = errors.New(nil).
			Component("audiodev").
			Category(errors.CategoryDeviceOpen).
			Build()

	ErrQueue = errors.New(nil).
			Component("audiodev").
			Category(errors.CategoryQueue).
			Build()
)

func newDeviceOpenError(err error, backend, name string, capture bool, spec *Spec) error {
	b := errors.New(err).
		Component("audiodev").
		Category(errors.CategoryDeviceOpen).
		Priority(errors.PriorityHigh).
		DeviceContext(name, capture).
		Context("backend", backend).
		Context("operation", "open_device")
	if spec != nil {
		b = b.Context("spec", spec.String())
	}
	return b.Build()
}

func newQueueError(err error, backend string, id DeviceID, size int) error {
	return errors.New(err).
		Component("audiodev").
		Category(errors.CategoryQueue).
		Context("backend", backend).
		Context("device_id", uint32(id)).
		Context("bytes", size).
		Context("operation", "queue_audio").
		Build()
}
