// Package malgo implements audiodev.Subsystem on top of miniaudio through
// github.com/gen2brain/malgo.
package malgo

import (
	"runtime"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
)

const componentName = "audiodev.malgo"

const (
	// DefaultQueueLimit caps queued playback per device.
	DefaultQueueLimit = 4 << 20

	// DefaultDeviceCacheTTL is how long device enumeration results are reused.
	DefaultDeviceCacheTTL = 30 * time.Second
)

// Config configures the miniaudio subsystem.
type Config struct {
	// Backends restricts miniaudio to the listed backends. Empty selects the platform default.
	Backends []malgo.Backend

	// QueueLimit caps queued playback bytes per device.
	QueueLimit int

	// DeviceCacheTTL is how long enumeration results are cached.
	DeviceCacheTTL time.Duration

	Logger logger.Logger
}

// Subsystem drives miniaudio devices. One Subsystem owns one miniaudio context.
type Subsystem struct {
	cfg Config
	log logger.Logger
	ctx *malgo.AllocatedContext

	// Enumeration is slow on some backends (PulseAudio, WASAPI), so results are cached.
	deviceCache *cache.Cache

	mu      sync.Mutex
	nextID  audiodev.DeviceID
	devices map[audiodev.DeviceID]*device
	closed  bool
}

// New initializes a miniaudio context.
func New(cfg Config) (*Subsystem, error) {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	if cfg.DeviceCacheTTL <= 0 {
		cfg.DeviceCacheTTL = DefaultDeviceCacheTTL
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = []malgo.Backend{platformBackend()}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module(componentName)
	}

	ctx, err := malgo.InitContext(cfg.Backends, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", logger.String("message", message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			Context("operation", "init_context").
			Context("os", runtime.GOOS).
			Build()
	}

	return &Subsystem{
		cfg: cfg,
		log: log,
		ctx: ctx,
		// No cleanup interval: expired entries are skipped on Get and no janitor goroutine is started.
		deviceCache: cache.New(cfg.DeviceCacheTTL, 0),
		nextID:      1,
		devices:     make(map[audiodev.DeviceID]*device),
	}, nil
}

// platformBackend returns the appropriate malgo backend for the current platform
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// Name implements audiodev.Subsystem.
func (s *Subsystem) Name() string { return "malgo" }

// Close closes every open device and releases the miniaudio context.
func (s *Subsystem) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	devs := make([]*device, 0, len(s.devices))
	for id, d := range s.devices {
		devs = append(devs, d)
		delete(s.devices, id)
	}
	s.mu.Unlock()

	for _, d := range devs {
		d.shutdown()
	}
	if len(devs) > 0 {
		s.log.Warn("miniaudio context closed with devices still open", logger.Int("devices", len(devs)))
	}

	err := s.ctx.Uninit()
	s.ctx.Free()
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			Context("operation", "uninit_context").
			Build()
	}
	return nil
}

func (s *Subsystem) lookup(id audiodev.DeviceID) *device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[id]
}

// OpenDevice implements audiodev.Subsystem.
func (s *Subsystem) OpenDevice(name string, capture bool, desired *audiodev.Spec, allowed audiodev.ChangeFlags, fn audiodev.Trampoline, userdata any) (audiodev.DeviceID, error) {
	if capture && fn == nil {
		return audiodev.InvalidDeviceID, backendError("capture devices require a callback", "open_device")
	}

	format, obtainedFormat, err := toMalgoFormat(desired.Format, allowed)
	if err != nil {
		return audiodev.InvalidDeviceID, err
	}

	deviceType := malgo.Playback
	if capture {
		deviceType = malgo.Capture
	}

	cfg := malgo.DefaultDeviceConfig(deviceType)
	cfg.SampleRate = uint32(desired.Freq) //nolint:gosec // validated positive by audiodev
	cfg.PeriodSizeInFrames = uint32(max(desired.Samples, 0))
	cfg.Alsa.NoMMap = 1

	var info *malgo.DeviceInfo
	if name != "" {
		info, err = s.findDevice(deviceType, name)
		if err != nil {
			return audiodev.InvalidDeviceID, err
		}
	}
	if capture {
		cfg.Capture.Format = format
		cfg.Capture.Channels = uint32(desired.Channels) //nolint:gosec // validated positive by audiodev
		if info != nil {
			cfg.Capture.DeviceID = info.ID.Pointer()
		}
	} else {
		cfg.Playback.Format = format
		cfg.Playback.Channels = uint32(desired.Channels) //nolint:gosec // validated positive by audiodev
		if info != nil {
			cfg.Playback.DeviceID = info.ID.Pointer()
		}
	}

	obtained := *desired
	obtained.Format = obtainedFormat
	obtained.Calculate()

	d := newDevice(obtained, capture, fn, userdata, s.cfg.QueueLimit)

	dev, err := malgo.InitDevice(s.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: func() {
			s.log.Debug("miniaudio device stopped", logger.String("device", name), logger.Bool("capture", capture))
		},
	})
	if err != nil {
		return audiodev.InvalidDeviceID, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			DeviceContext(name, capture).
			Context("operation", "init_device").
			Build()
	}
	d.dev = dev

	if rate := int(dev.SampleRate()); rate != obtained.Freq && rate != 0 {
		if !allowed.Has(audiodev.AllowFrequencyChange) {
			dev.Uninit()
			return audiodev.InvalidDeviceID, backendError("device does not support the requested sample rate", "init_device")
		}
		obtained.Freq = rate
		d.spec = obtained
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		dev.Uninit()
		return audiodev.InvalidDeviceID, backendError("subsystem is closed", "open_device")
	}
	d.id = s.nextID
	s.nextID++
	s.devices[d.id] = d
	s.mu.Unlock()

	*desired = obtained
	return d.id, nil
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
	d.shutdown()
	return nil
}

// PauseDevice implements audiodev.Subsystem.
func (s *Subsystem) PauseDevice(id audiodev.DeviceID, pause bool) {
	d := s.lookup(id)
	if d == nil {
		return
	}
	if err := d.setPaused(pause); err != nil {
		s.log.Warn("Failed to change device state",
			logger.Uint64("device_id", uint64(id)),
			logger.Bool("pause", pause),
			logger.Error(err))
	}
}

// DeviceStatus implements audiodev.Subsystem.
func (s *Subsystem) DeviceStatus(id audiodev.DeviceID) audiodev.Status {
	d := s.lookup(id)
	if d == nil {
		return audiodev.Stopped
	}
	return d.status()
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
	return d.enqueue(data)
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

// toMalgoFormat maps a sample format to the miniaudio format. miniaudio has no
// big-endian or unsigned 16-bit formats; those fall back to s16le when a format
// change is allowed.
func toMalgoFormat(f audiodev.SampleFormat, allowed audiodev.ChangeFlags) (malgo.FormatType, audiodev.SampleFormat, error) {
	switch f {
	case audiodev.FormatU8:
		return malgo.FormatU8, f, nil
	case audiodev.FormatS16LSB:
		return malgo.FormatS16, f, nil
	case audiodev.FormatS32LSB:
		return malgo.FormatS32, f, nil
	case audiodev.FormatF32LSB:
		return malgo.FormatF32, f, nil
	}
	if allowed.Has(audiodev.AllowFormatChange) {
		return malgo.FormatS16, audiodev.FormatS16LSB, nil
	}
	return malgo.FormatUnknown, f, errors.Newf("sample format %s is not supported by miniaudio", f).
		Component(componentName).
		Category(errors.CategoryAudioBackend).
		Context("format", f.String()).
		Build()
}

func backendError(msg, operation string) error {
	return errors.Newf("malgo: %s", msg).
		Component(componentName).
		Category(errors.CategoryAudioBackend).
		Context("operation", operation).
		Build()
}

var (
	_ audiodev.Subsystem  = (*Subsystem)(nil)
	_ audiodev.Queuer     = (*Subsystem)(nil)
	_ audiodev.Enumerator = (*Subsystem)(nil)
)
