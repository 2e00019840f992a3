// Package oto implements audiodev.Subsystem for playback through
// github.com/ebitengine/oto/v3.
//
// oto allows one context per process. The first device opened fixes the
// context format; later devices must match it or allow the differing
// properties to change.
package oto

import (
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/gate"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
)

const componentName = "audiodev.oto"

// DefaultQueueLimit caps queued playback per device.
const DefaultQueueLimit = 4 << 20

// Config configures the oto subsystem.
type Config struct {
	// BufferSize is the context's output buffer duration. Zero lets oto choose.
	BufferSize time.Duration

	// QueueLimit caps queued playback bytes per device.
	QueueLimit int

	Logger logger.Logger
}

// process-wide oto context
var (
	contextMu     sync.Mutex
	sharedContext *oto.Context
	contextSpec   audiodev.Spec
)

// Subsystem plays through the process-wide oto context.
type Subsystem struct {
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	nextID  audiodev.DeviceID
	devices map[audiodev.DeviceID]*device
}

// New creates an oto subsystem. The oto context is created by the first OpenDevice.
func New(cfg Config) *Subsystem {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	return &Subsystem{
		cfg:     cfg,
		log:     log,
		nextID:  1,
		devices: make(map[audiodev.DeviceID]*device),
	}
}

// Name implements audiodev.Subsystem.
func (s *Subsystem) Name() string { return "oto" }

func toOtoFormat(f audiodev.SampleFormat) (oto.Format, bool) {
	switch f {
	case audiodev.FormatS16LSB:
		return oto.FormatSignedInt16LE, true
	case audiodev.FormatF32LSB:
		return oto.FormatFloat32LE, true
	case audiodev.FormatU8:
		return oto.FormatUnsignedInt8, true
	default:
		return 0, false
	}
}

// negotiate fits desired to the context format, or to what oto supports when
// no context exists yet.
func negotiate(desired audiodev.Spec, current *audiodev.Spec, allowed audiodev.ChangeFlags) (audiodev.Spec, error) {
	out := desired
	if _, ok := toOtoFormat(out.Format); !ok {
		if !allowed.Has(audiodev.AllowFormatChange) {
			return out, backendError("sample format "+desired.Format.String()+" is not supported by oto", "open_device")
		}
		out.Format = audiodev.FormatS16LSB
	}
	if current == nil {
		return out, nil
	}

	if out.Freq != current.Freq {
		if !allowed.Has(audiodev.AllowFrequencyChange) {
			return out, backendError("oto context already runs at a different sample rate", "open_device")
		}
		out.Freq = current.Freq
	}
	if out.Format != current.Format {
		if !allowed.Has(audiodev.AllowFormatChange) {
			return out, backendError("oto context already uses a different sample format", "open_device")
		}
		out.Format = current.Format
	}
	if out.Channels != current.Channels {
		if !allowed.Has(audiodev.AllowChannelsChange) {
			return out, backendError("oto context already uses a different channel count", "open_device")
		}
		out.Channels = current.Channels
	}
	return out, nil
}

// acquireContext returns the process context, creating it for spec if needed.
func (s *Subsystem) acquireContext(desired audiodev.Spec, allowed audiodev.ChangeFlags) (*oto.Context, audiodev.Spec, error) {
	contextMu.Lock()
	defer contextMu.Unlock()

	if sharedContext != nil {
		obtained, err := negotiate(desired, &contextSpec, allowed)
		return sharedContext, obtained, err
	}

	obtained, err := negotiate(desired, nil, allowed)
	if err != nil {
		return nil, obtained, err
	}
	format, _ := toOtoFormat(obtained.Format)

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   obtained.Freq,
		ChannelCount: obtained.Channels,
		Format:       format,
		BufferSize:   s.cfg.BufferSize,
	})
	if err != nil {
		return nil, obtained, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			Context("operation", "new_context").
			Build()
	}
	<-ready

	sharedContext = ctx
	contextSpec = obtained
	s.log.Info("oto context initialized", logger.String("spec", obtained.String()))
	return ctx, obtained, nil
}

// OpenDevice implements audiodev.Subsystem. Only the default playback device is available.
func (s *Subsystem) OpenDevice(name string, capture bool, desired *audiodev.Spec, allowed audiodev.ChangeFlags, fn audiodev.Trampoline, userdata any) (audiodev.DeviceID, error) {
	if capture {
		return audiodev.InvalidDeviceID, backendError("capture is not supported", "open_device")
	}
	if name != "" && name != "default" {
		return audiodev.InvalidDeviceID, backendError("only the default device is available", "open_device")
	}

	ctx, obtained, err := s.acquireContext(*desired, allowed)
	if err != nil {
		return audiodev.InvalidDeviceID, err
	}
	obtained.Calculate()

	d := &device{
		spec:     obtained,
		fn:       fn,
		userdata: userdata,
		gate:     gate.New(),
	}
	if fn == nil {
		d.queue = ringbuffer.New(s.cfg.QueueLimit)
	}
	d.player = ctx.NewPlayer(d)
	if obtained.Size > 0 {
		d.player.SetBufferSize(obtained.Size)
	}

	s.mu.Lock()
	d.id = s.nextID
	s.nextID++
	s.devices[d.id] = d
	s.mu.Unlock()

	*desired = obtained
	return d.id, nil
}

func (s *Subsystem) lookup(id audiodev.DeviceID) *device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[id]
}

// CloseDevice implements audiodev.Subsystem.
func (s *Subsystem) CloseDevice(id audiodev.DeviceID) error {
	s.mu.Lock()
	d, ok := s.devices[id]
	delete(s.devices, id)
	s.mu.Unlock()

	if !ok {
		return backendError("close of unknown device", "close_device")
	}
	return d.close()
}

// PauseDevice implements audiodev.Subsystem.
func (s *Subsystem) PauseDevice(id audiodev.DeviceID, pause bool) {
	if d := s.lookup(id); d != nil {
		d.setPaused(pause)
	}
}

// DeviceStatus implements audiodev.Subsystem.
func (s *Subsystem) DeviceStatus(id audiodev.DeviceID) audiodev.Status {
	d := s.lookup(id)
	if d == nil {
		return audiodev.Stopped
	}
	if d.isPlaying() {
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
		return backendError("invalid device id", "queue_audio")
	}
	if d.queue == nil {
		return backendError("device has a callback, queueing not allowed", "queue_audio")
	}
	if d.queue.Free() < len(data) {
		return backendError("queue full", "queue_audio")
	}
	if _, err := d.queue.Write(data); err != nil && len(data) > 0 {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			Context("operation", "queue_audio").
			Build()
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

// Devices implements audiodev.Enumerator. oto exposes only the default output.
func (s *Subsystem) Devices(capture bool) ([]audiodev.DeviceInfo, error) {
	if capture {
		return nil, nil
	}
	return []audiodev.DeviceInfo{{Name: "default", ID: "default", IsDefault: true}}, nil
}

// Close closes every device still open. The oto context itself lives for the
// rest of the process.
func (s *Subsystem) Close() error {
	s.mu.Lock()
	devs := make([]*device, 0, len(s.devices))
	for id, d := range s.devices {
		devs = append(devs, d)
		delete(s.devices, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, d := range devs {
		if err := d.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(devs) > 0 {
		s.log.Warn("oto subsystem closed with devices still open", logger.Int("devices", len(devs)))
	}
	return errors.Join(errs...)
}

func backendError(msg, operation string) error {
	return errors.Newf("oto: %s", msg).
		Component(componentName).
		Category(errors.CategoryAudioBackend).
		Context("operation", operation).
		Build()
}

// player is the part of *oto.Player a device uses.
type player interface {
	Play()
	Pause()
	IsPlaying() bool
	SetBufferSize(bufferSize int)
	Close() error
}

// device feeds one oto player. Read runs on oto's mixing goroutine and is
// that device's callback thread.
type device struct {
	id       audiodev.DeviceID
	spec     audiodev.Spec
	fn       audiodev.Trampoline
	userdata any
	gate     *gate.Gate
	queue    *ringbuffer.RingBuffer
	player   player

	mu      sync.Mutex
	playing bool
}

// Read implements io.Reader for the oto player. While the device is locked it
// returns silence and leaves the queue untouched rather than waiting, since
// oto may hold its player mutex around Read. It reports io.EOF once the
// device is closed.
func (d *device) Read(p []byte) (int, error) {
	frame := d.spec.FrameSize()
	if frame > 0 {
		p = p[:len(p)/frame*frame]
	}
	if len(p) == 0 {
		return 0, nil
	}

	render := func() { d.fn(d.userdata, p) }
	if d.fn == nil {
		render = func() {
			n, _ := d.queue.Read(p) // ErrIsEmpty just means underrun
			d.spec.FillSilence(p[n:])
		}
	}

	if !d.gate.TryRun(render) {
		if d.gate.Closed() {
			return 0, io.EOF
		}
		d.spec.FillSilence(p)
	}
	return len(p), nil
}

func (d *device) setPaused(pause bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pause {
		d.player.Pause()
	} else {
		d.player.Play()
	}
	d.playing = !pause
}

func (d *device) isPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

func (d *device) close() error {
	d.gate.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	return d.player.Close()
}

var (
	_ audiodev.Subsystem  = (*Subsystem)(nil)
	_ audiodev.Queuer     = (*Subsystem)(nil)
	_ audiodev.Enumerator = (*Subsystem)(nil)
	_ player              = (*oto.Player)(nil)
)
