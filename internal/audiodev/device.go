package audiodev

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
)

// Callback fills (playback) or consumes (capture) one buffer of audio.
// It runs on the subsystem's callback thread and must not block or allocate.
type Callback func(stream []byte)

// noCopy makes go vet's copylocks check flag values that are copied after first use.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// session is the heap box registered with the subsystem as userdata. Its
// address stays fixed for the life of the device no matter which Device
// currently owns it.
type session struct {
	id       DeviceID
	sys      Subsystem
	callback atomic.Pointer[Callback]
	queued   bool
	spec     Spec
	name     string
	capture  bool
	uid      uuid.UUID
	closed   atomic.Bool
	log      logger.Logger
	metrics  Recorder
}

// Device owns one open session with an audio subsystem.
//
// A Device must not be copied; transfer ownership with Move or MoveFrom. After
// a move or Close every method is a safe no-op. Close must not be called while
// the calling goroutine holds a DeviceLock for the same device.
//
// Methods other than ChangeCallback and Lock are meant to be called from the
// goroutine that owns the Device.
type Device struct {
	_    noCopy
	sess *session
}

// Open opens a device with an exact format. name may be empty for the default
// device. A nil callback opens the device in queued mode. The device starts paused.
func Open(sys Subsystem, name string, capture bool, spec Spec, callback Callback, opts ...Option) (*Device, error) {
	return open(sys, name, capture, &spec, 0, callback, opts)
}

// OpenNegotiated is like Open but lets the subsystem change the properties in
// allowed. spec is updated with the format actually obtained.
func OpenNegotiated(sys Subsystem, name string, capture bool, spec *Spec, allowed ChangeFlags, callback Callback, opts ...Option) (*Device, error) {
	if spec == nil {
		return nil, newDeviceOpenError(errors.NewStd("nil audio spec"), subsystemName(sys), name, capture, nil)
	}
	return open(sys, name, capture, spec, allowed, callback, opts)
}

func open(sys Subsystem, name string, capture bool, spec *Spec, allowed ChangeFlags, callback Callback, opts []Option) (*Device, error) {
	o := buildOptions(opts)
	backend := subsystemName(sys)

	if sys == nil {
		o.metrics.RecordOpenError(backend)
		return nil, newDeviceOpenError(errors.NewStd("no audio subsystem"), backend, name, capture, spec)
	}
	if err := spec.Validate(); err != nil {
		o.metrics.RecordOpenError(backend)
		return nil, newDeviceOpenError(err, backend, name, capture, spec)
	}

	s := &session{
		sys:     sys,
		queued:  callback == nil,
		name:    name,
		capture: capture,
		uid:     uuid.New(),
		metrics: o.metrics,
	}
	s.setCallback(callback)
	s.log = o.log.With(
		logger.String("session", s.uid.String()),
		logger.String("backend", backend))

	var fn Trampoline
	if !s.queued {
		fn = trampoline
	}

	obtained := *spec
	id, err := sys.OpenDevice(name, capture, &obtained, allowed, fn, s)
	if err != nil {
		o.metrics.RecordOpenError(backend)
		s.log.Warn("Failed to open audio device",
			logger.String("device", displayName(name)),
			logger.Bool("capture", capture),
			logger.Error(err))
		return nil, newDeviceOpenError(err, backend, name, capture, spec)
	}
	if id == InvalidDeviceID {
		o.metrics.RecordOpenError(backend)
		return nil, newDeviceOpenError(errors.NewStd("subsystem returned invalid device id"), backend, name, capture, spec)
	}

	obtained.Calculate()
	*spec = obtained
	s.id = id
	s.spec = obtained

	o.metrics.RecordOpen(backend, capture)
	s.log.Debug("Audio device opened",
		logger.Uint64("device_id", uint64(id)),
		logger.String("device", displayName(name)),
		logger.Bool("capture", capture),
		logger.Bool("queued", s.queued),
		logger.String("spec", obtained.String()))

	return &Device{sess: s}, nil
}

// trampoline is the only function ever registered with a subsystem.
func trampoline(userdata any, stream []byte) {
	s, ok := userdata.(*session)
	if !ok || s == nil {
		return
	}
	if cb := s.callback.Load(); cb != nil && *cb != nil {
		(*cb)(stream)
		return
	}
	s.spec.FillSilence(stream)
}

// setCallback stores callback; nil clears the slot.
func (s *session) setCallback(callback Callback) {
	if callback == nil {
		s.callback.Store(nil)
		return
	}
	s.callback.Store(&callback)
}

// Close closes the device. It is idempotent and never fails; close
// diagnostics are logged. The error result lets Device satisfy io.Closer.
func (d *Device) Close() error {
	if d == nil || d.sess == nil {
		return nil
	}
	s := d.sess
	d.sess = nil
	s.close()
	return nil
}

func (s *session) close() {
	if s.closed.Swap(true) {
		return
	}
	backend := s.sys.Name()
	if err := s.sys.CloseDevice(s.id); err != nil {
		s.log.Warn("Error closing audio device",
			logger.Uint64("device_id", uint64(s.id)),
			logger.Error(err))
	}
	s.metrics.RecordClose(backend)
	s.log.Debug("Audio device closed", logger.Uint64("device_id", uint64(s.id)))
}

// Move returns a new Device that owns d's session. d becomes inert.
func (d *Device) Move() *Device {
	if d == nil {
		return &Device{}
	}
	moved := &Device{sess: d.sess}
	d.sess = nil
	return moved
}

// MoveFrom closes d's own session, if any, and takes over src's.
// src becomes inert. Moving a device into itself does nothing.
func (d *Device) MoveFrom(src *Device) {
	if d == nil || d == src {
		return
	}
	var incoming *session
	if src != nil {
		incoming = src.sess
		src.sess = nil
	}
	if d.sess != nil && d.sess != incoming {
		d.sess.close()
	}
	d.sess = incoming
}

// ID returns the subsystem device id, or InvalidDeviceID for an inert Device.
func (d *Device) ID() DeviceID {
	if d == nil || d.sess == nil {
		return InvalidDeviceID
	}
	return d.sess.id
}

// Valid reports whether d owns an open session.
func (d *Device) Valid() bool {
	return d.ID() != InvalidDeviceID
}

// Pause requests that callback delivery or queue consumption stop (true) or
// resume (false). It is advisory: a callback may still be running when Pause
// returns. Use Lock for exclusion.
func (d *Device) Pause(pause bool) {
	if d == nil || d.sess == nil {
		return
	}
	d.sess.sys.PauseDevice(d.sess.id, pause)
}

// Status returns the playback state. Inert devices report Stopped.
func (d *Device) Status() Status {
	if d == nil || d.sess == nil {
		return Stopped
	}
	return d.sess.sys.DeviceStatus(d.sess.id)
}

// ChangeCallback installs callback while holding the device lock, so no
// invocation is running when the swap happens and the next one sees the new
// function. It is safe to call from several goroutines; the last store wins.
// A nil callback renders silence. On a queued device the callback is stored
// but never called.
func (d *Device) ChangeCallback(callback Callback) {
	if d == nil || d.sess == nil {
		return
	}
	lock := d.Lock()
	defer lock.Unlock()

	d.sess.setCallback(callback)
	d.sess.metrics.RecordCallbackSwap(d.sess.sys.Name())
}

// Lock suspends callback delivery until the returned DeviceLock, and every
// copy of it, has been unlocked. Locks nest.
func (d *Device) Lock() *DeviceLock {
	l := &DeviceLock{}
	if d == nil || d.sess == nil {
		return l
	}
	if d.sess.acquire() {
		l.sess.Store(d.sess)
	}
	return l
}

// Spec returns the format obtained when the device was opened.
func (d *Device) Spec() Spec {
	if d == nil || d.sess == nil {
		return Spec{}
	}
	return d.sess.spec
}

// Name returns the device name the device was opened with; empty means default.
func (d *Device) Name() string {
	if d == nil || d.sess == nil {
		return ""
	}
	return d.sess.name
}

// Capture reports whether the device records rather than plays.
func (d *Device) Capture() bool {
	return d != nil && d.sess != nil && d.sess.capture
}

// Queued reports whether the device was opened without a callback.
func (d *Device) Queued() bool {
	return d != nil && d.sess != nil && d.sess.queued
}

// SessionID returns the correlation id attached to this session's log lines.
func (d *Device) SessionID() uuid.UUID {
	if d == nil || d.sess == nil {
		return uuid.Nil
	}
	return d.sess.uid
}

func subsystemName(sys Subsystem) string {
	if sys == nil {
		return "none"
	}
	return sys.Name()
}

func displayName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
