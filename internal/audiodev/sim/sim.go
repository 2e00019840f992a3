// Package sim is an in-process audio subsystem. It backs the "null" device and
// serves as the test double for code built on audiodev.
//
// Callbacks are delivered either manually with Deliver or, when Config.Clock is
// set, by one goroutine per device ticking at that interval.
package sim

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/gate"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
)

const componentName = "audiodev.sim"

// DefaultQueueLimit is the queue capacity used when Config.QueueLimit is zero.
const DefaultQueueLimit = 4 << 20

// Config describes the simulated hardware.
type Config struct {
	// Name is reported by Subsystem.Name. Defaults to "sim".
	Name string

	// Hardware is the only format the device accepts. Zero fields accept any value.
	Hardware audiodev.Spec

	// PlaybackDevices and CaptureDevices list the named endpoints. The default
	// device (empty name) is always available.
	PlaybackDevices []string
	CaptureDevices  []string

	// Reject, if set, is consulted before negotiation; a non-nil error fails the open.
	Reject func(name string, capture bool, desired audiodev.Spec) error

	// Clock is the delivery interval. Zero means delivery happens only through Deliver.
	Clock time.Duration

	// DrainBytes is how many queued bytes one delivery consumes. Zero means one buffer.
	DrainBytes int

	// QueueLimit caps the queued bytes per device. Zero means DefaultQueueLimit.
	QueueLimit int

	// CaptureFill produces captured audio. Nil captures silence.
	CaptureFill func(stream []byte)

	Logger logger.Logger
}

// Subsystem implements audiodev.Subsystem, audiodev.Queuer and audiodev.Enumerator.
type Subsystem struct {
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	nextID  audiodev.DeviceID
	devices map[audiodev.DeviceID]*device

	opens  atomic.Int64
	closes atomic.Int64
}

type device struct {
	id       audiodev.DeviceID
	name     string
	capture  bool
	spec     audiodev.Spec
	fn       audiodev.Trampoline
	userdata any
	gate     *gate.Gate

	mu      sync.Mutex
	playing bool
	queue   *ringbuffer.RingBuffer
	stream  []byte
	drained []byte

	delivered atomic.Int64
	consumed  atomic.Int64

	stop chan struct{}
	done chan struct{}
}

// New creates a simulated subsystem.
func New(cfg Config) *Subsystem {
	if cfg.Name == "" {
		cfg.Name = "sim"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	return &Subsystem{
		cfg:     cfg,
		log:     log,
		nextID:  1,
		devices: make(map[audiodev.DeviceID]*device),
	}
}

// Name implements audiodev.Subsystem.
func (s *Subsystem) Name() string { return s.cfg.Name }

// OpenDevice implements audiodev.Subsystem.
func (s *Subsystem) OpenDevice(name string, capture bool, desired *audiodev.Spec, allowed audiodev.ChangeFlags, fn audiodev.Trampoline, userdata any) (audiodev.DeviceID, error) {
	if desired == nil {
		return audiodev.InvalidDeviceID, backendError("nil spec", nil)
	}
	if !s.hasDevice(name, capture) {
		return audiodev.InvalidDeviceID, backendError("no such device", map[string]any{"device_name": name, "capture": capture})
	}
	if s.cfg.Reject != nil {
		if err := s.cfg.Reject(name, capture, *desired); err != nil {
			return audiodev.InvalidDeviceID, err
		}
	}
	if capture && fn == nil {
		return audiodev.InvalidDeviceID, backendError("capture devices require a callback", nil)
	}

	obtained, err := negotiate(*desired, s.cfg.Hardware, allowed)
	if err != nil {
		return audiodev.InvalidDeviceID, err
	}
	obtained.Calculate()

	d := &device{
		name:     name,
		capture:  capture,
		spec:     obtained,
		fn:       fn,
		userdata: userdata,
		gate:     gate.New(),
		stream:   make([]byte, obtained.Size),
	}
	if fn == nil {
		d.queue = ringbuffer.New(s.cfg.QueueLimit)
		d.drained = make([]byte, max(s.cfg.DrainBytes, obtained.Size))
	}

	s.mu.Lock()
	d.id = s.nextID
	s.nextID++
	s.devices[d.id] = d
	s.mu.Unlock()

	if s.cfg.Clock > 0 {
		d.stop = make(chan struct{})
		d.done = make(chan struct{})
		go s.clock(d)
	}

	*desired = obtained
	s.opens.Add(1)
	s.log.Trace("sim device opened",
		logger.Uint64("device_id", uint64(d.id)),
		logger.String("spec", obtained.String()))
	return d.id, nil
}

func (s *Subsystem) hasDevice(name string, capture bool) bool {
	if name == "" {
		return true
	}
	if capture {
		return slices.Contains(s.cfg.CaptureDevices, name)
	}
	return slices.Contains(s.cfg.PlaybackDevices, name)
}

// negotiate applies the hardware format to desired. Fields outside allowed
// must already match.
func negotiate(desired, hw audiodev.Spec, allowed audiodev.ChangeFlags) (audiodev.Spec, error) {
	out := desired

	if hw.Freq != 0 && desired.Freq != hw.Freq {
		if !allowed.Has(audiodev.AllowFrequencyChange) {
			return out, mismatch("frequency", desired.Freq, hw.Freq)
		}
		out.Freq = hw.Freq
	}
	if hw.Format != 0 && desired.Format != hw.Format {
		if !allowed.Has(audiodev.AllowFormatChange) {
			return out, mismatch("format", desired.Format, hw.Format)
		}
		out.Format = hw.Format
	}
	if hw.Channels != 0 && desired.Channels != hw.Channels {
		if !allowed.Has(audiodev.AllowChannelsChange) {
			return out, mismatch("channels", desired.Channels, hw.Channels)
		}
		out.Channels = hw.Channels
	}
	if hw.Samples != 0 && desired.Samples != hw.Samples && allowed.Has(audiodev.AllowSamplesChange) {
		out.Samples = hw.Samples
	}
	return out, nil
}

func mismatch(field string, want, have any) error {
	return errors.Newf("unsupported %s %v (hardware provides %v)", field, want, have).
		Component(componentName).
		Category(errors.CategoryAudioBackend).
		Context("field", field).
		Build()
}

func backendError(msg string, ctx map[string]any) error {
	b := errors.Newf("sim: %s", msg).
		Component(componentName).
		Category(errors.CategoryAudioBackend)
	for k, v := range ctx {
		b = b.Context(k, v)
	}
	return b.Build()
}

func (s *Subsystem) lookup(id audiodev.DeviceID) *device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[id]
}

// CloseDevice implements audiodev.Subsystem. Unknown ids are reported as errors.
func (s *Subsystem) CloseDevice(id audiodev.DeviceID) error {
	s.mu.Lock()
	d, ok := s.devices[id]
	delete(s.devices, id)
	s.mu.Unlock()

	if !ok {
		return backendError(fmt.Sprintf("close of unknown device %d", id), nil)
	}

	d.gate.Close()
	if d.stop != nil {
		close(d.stop)
		<-d.done
	}
	s.closes.Add(1)
	return nil
}

// PauseDevice implements audiodev.Subsystem.
func (s *Subsystem) PauseDevice(id audiodev.DeviceID, pause bool) {
	if d := s.lookup(id); d != nil {
		d.mu.Lock()
		d.playing = !pause
		d.mu.Unlock()
	}
}

// DeviceStatus implements audiodev.Subsystem.
func (s *Subsystem) DeviceStatus(id audiodev.DeviceID) audiodev.Status {
	d := s.lookup(id)
	if d == nil {
		return audiodev.Stopped
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing {
		return audiodev.Playing
	}
	return audiodev.Paused
}

// LockDevice implements audiodev.Subsystem.
func (s *Subsystem) LockDevice(id audiodev.DeviceID) {
	if d := s.lookup(id); d != nil {
		d.gate.Lock()
	}
}

// UnlockDevice implements audiodev.Subsystem.
func (s *Subsystem) UnlockDevice(id audiodev.DeviceID) {
	if d := s.lookup(id); d != nil {
		d.gate.Unlock()
	}
}

// QueueAudio implements audiodev.Queuer.
func (s *Subsystem) QueueAudio(id audiodev.DeviceID, data []byte) error {
	d := s.lookup(id)
	if d == nil {
		return backendError("invalid device id", map[string]any{"device_id": uint32(id)})
	}
	if d.fn != nil {
		return backendError("device has a callback, queueing not allowed", nil)
	}

	if len(data) == 0 {
		return nil
	}
	if d.queue.Free() < len(data) {
		return backendError("queue limit exceeded", map[string]any{
			"queued": d.queue.Length(),
			"limit":  s.cfg.QueueLimit,
		})
	}
	if _, err := d.queue.Write(data); err != nil {
		return backendError(err.Error(), nil)
	}
	return nil
}

// ClearQueuedAudio implements audiodev.Queuer.
func (s *Subsystem) ClearQueuedAudio(id audiodev.DeviceID) {
	if d := s.lookup(id); d != nil && d.queue != nil {
		d.queue.Reset()
	}
}

// QueuedAudioSize implements audiodev.Queuer.
func (s *Subsystem) QueuedAudioSize(id audiodev.DeviceID) uint32 {
	if d := s.lookup(id); d != nil && d.queue != nil {
		return uint32(d.queue.Length()) //nolint:gosec // bounded by QueueLimit
	}
	return 0
}

// Devices implements audiodev.Enumerator.
func (s *Subsystem) Devices(capture bool) ([]audiodev.DeviceInfo, error) {
	names := s.cfg.PlaybackDevices
	if capture {
		names = s.cfg.CaptureDevices
	}
	infos := make([]audiodev.DeviceInfo, 0, len(names)+1)
	infos = append(infos, audiodev.DeviceInfo{Name: "default", ID: "default", Capture: capture, IsDefault: true})
	for _, n := range names {
		infos = append(infos, audiodev.DeviceInfo{Name: n, ID: n, Capture: capture})
	}
	return infos, nil
}

// Deliver performs one callback invocation (or one queue drain) for id if the
// device is playing and not locked. It reports whether anything was delivered.
func (s *Subsystem) Deliver(id audiodev.DeviceID) bool {
	d := s.lookup(id)
	if d == nil {
		return false
	}
	return s.deliver(d, d.gate.TryRun)
}

// DeliverWait is like Deliver but waits for the device to be unlocked, the way
// a real callback thread blocks on the device mutex.
func (s *Subsystem) DeliverWait(id audiodev.DeviceID) bool {
	d := s.lookup(id)
	if d == nil {
		return false
	}
	return s.deliver(d, d.gate.Run)
}

func (s *Subsystem) deliver(d *device, run func(func()) bool) bool {
	d.mu.Lock()
	playing := d.playing
	d.mu.Unlock()
	if !playing {
		return false
	}

	return run(func() {
		if d.fn == nil {
			d.drain(s.cfg.DrainBytes)
			return
		}
		if d.capture {
			if s.cfg.CaptureFill != nil {
				s.cfg.CaptureFill(d.stream)
			} else {
				d.spec.FillSilence(d.stream)
			}
		} else {
			clear(d.stream)
		}
		d.fn(d.userdata, d.stream)
		d.delivered.Add(1)
	})
}

func (d *device) drain(n int) {
	if n <= 0 {
		n = d.spec.Size
	}
	n, _ = d.queue.Read(d.drained[:min(n, len(d.drained))]) // ErrIsEmpty just means underrun
	d.consumed.Add(int64(n))
	d.delivered.Add(1)
}

func (s *Subsystem) clock(d *device) {
	defer close(d.done)

	ticker := time.NewTicker(s.cfg.Clock)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			s.deliver(d, d.gate.TryRun)
		}
	}
}

// OpenCount returns the number of devices currently open.
func (s *Subsystem) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// Opens returns the number of successful opens.
func (s *Subsystem) Opens() int64 { return s.opens.Load() }

// Closes returns the number of devices closed.
func (s *Subsystem) Closes() int64 { return s.closes.Load() }

// LockDepth returns the lock depth of id, or zero for an unknown id.
func (s *Subsystem) LockDepth(id audiodev.DeviceID) int {
	if d := s.lookup(id); d != nil {
		return d.gate.Depth()
	}
	return 0
}

// Delivered returns how many buffers have been delivered to id.
func (s *Subsystem) Delivered(id audiodev.DeviceID) int64 {
	if d := s.lookup(id); d != nil {
		return d.delivered.Load()
	}
	return 0
}

// Consumed returns how many queued bytes id has played.
func (s *Subsystem) Consumed(id audiodev.DeviceID) int64 {
	if d := s.lookup(id); d != nil {
		return d.consumed.Load()
	}
	return 0
}

// Shutdown closes every device still open and returns how many there were.
func (s *Subsystem) Shutdown() int {
	s.mu.Lock()
	ids := make([]audiodev.DeviceID, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.CloseDevice(id)
	}
	if len(ids) > 0 {
		s.log.Warn("sim subsystem shut down with devices still open", logger.Int("devices", len(ids)))
	}
	return len(ids)
}

// Close implements io.Closer by calling Shutdown.
func (s *Subsystem) Close() error {
	s.Shutdown()
	return nil
}

var (
	_ audiodev.Subsystem  = (*Subsystem)(nil)
	_ audiodev.Queuer     = (*Subsystem)(nil)
	_ audiodev.Enumerator = (*Subsystem)(nil)
)
