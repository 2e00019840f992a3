package audiodev

import (
	"github.com/tphakala/audiodevice/internal/errors"
)

// QueueAudio appends data to the playback queue of a device opened without a
// callback. It fails with an ErrQueue error if the device is inert, was opened
// with a callback, is a capture device, or the subsystem rejects the data.
func (d *Device) QueueAudio(data []byte) error {
	if d == nil || d.sess == nil {
		return newQueueError(errors.NewStd("device is not open"), "none", InvalidDeviceID, len(data))
	}
	s := d.sess
	backend := s.sys.Name()

	q, ok := s.sys.(Queuer)
	if !ok {
		s.metrics.RecordQueueError(backend)
		return newQueueError(errors.NewStd("audio subsystem does not support queued playback"), backend, s.id, len(data))
	}
	if s.capture {
		s.metrics.RecordQueueError(backend)
		return newQueueError(errors.NewStd("cannot queue audio on a capture device"), backend, s.id, len(data))
	}
	if !s.queued {
		s.metrics.RecordQueueError(backend)
		return newQueueError(errors.NewStd("device was opened with a callback"), backend, s.id, len(data))
	}
	if err := q.QueueAudio(s.id, data); err != nil {
		s.metrics.RecordQueueError(backend)
		return newQueueError(err, backend, s.id, len(data))
	}

	s.metrics.RecordQueued(backend, len(data))
	return nil
}

// ClearQueuedAudio drops every queued byte that has not been played yet.
func (d *Device) ClearQueuedAudio() {
	if d == nil || d.sess == nil {
		return
	}
	if q, ok := d.sess.sys.(Queuer); ok {
		q.ClearQueuedAudio(d.sess.id)
	}
}

// QueuedAudioSize returns the number of queued bytes not yet consumed.
func (d *Device) QueuedAudioSize() uint32 {
	if d == nil || d.sess == nil {
		return 0
	}
	if q, ok := d.sess.sys.(Queuer); ok {
		return q.QueuedAudioSize(d.sess.id)
	}
	return 0
}
