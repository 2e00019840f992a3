// Package backend selects and constructs an audio subsystem by name.
package backend

import (
	"io"
	"slices"
	"time"

	"github.com/tphakala/audiodevice/internal/audiodev"
	malgodev "github.com/tphakala/audiodevice/internal/audiodev/malgo"
	otodev "github.com/tphakala/audiodevice/internal/audiodev/oto"
	"github.com/tphakala/audiodevice/internal/audiodev/sim"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
)

// Names of the available backends.
const (
	Malgo = "malgo"
	Oto   = "oto"
	Null  = "null"
	Sim   = "sim"
)

// Subsystem is an audio subsystem that owns process resources until closed.
type Subsystem interface {
	audiodev.Subsystem
	io.Closer
}

// Config selects and tunes a backend.
type Config struct {
	Name string

	// MalgoBackends restricts miniaudio to these backends, e.g. "alsa", "pulse".
	MalgoBackends []string

	// DeviceCacheTTL is how long malgo enumeration results are reused.
	DeviceCacheTTL time.Duration

	// BufferSize is oto's output buffer duration.
	BufferSize time.Duration

	// QueueLimit caps queued playback bytes per device.
	QueueLimit int

	// Hardware fixes the format the null device accepts. Zero accepts anything.
	Hardware audiodev.Spec

	Logger logger.Logger
}

// Available lists the backend names New accepts.
func Available() []string {
	return []string{Malgo, Oto, Null, Sim}
}

// New constructs the backend named by cfg.Name. An empty name selects malgo.
func New(cfg Config) (Subsystem, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("audiodev.backend")
	}

	name := cfg.Name
	if name == "" {
		name = Malgo
	}

	switch name {
	case Malgo:
		backends, err := malgodev.ParseBackends(cfg.MalgoBackends)
		if err != nil {
			return nil, err
		}
		s, err := malgodev.New(malgodev.Config{
			Backends:       backends,
			QueueLimit:     cfg.QueueLimit,
			DeviceCacheTTL: cfg.DeviceCacheTTL,
			Logger:         log.Module(Malgo),
		})
		if err != nil {
			return nil, err
		}
		log.Info("audio backend ready", logger.String("backend", Malgo))
		return s, nil

	case Oto:
		log.Info("audio backend ready", logger.String("backend", Oto))
		return otodev.New(otodev.Config{
			BufferSize: cfg.BufferSize,
			QueueLimit: cfg.QueueLimit,
			Logger:     log.Module(Oto),
		}), nil

	case Null, Sim:
		return sim.New(sim.Config{
			Name:       name,
			Hardware:   cfg.Hardware,
			Clock:      nullClock(cfg.Hardware),
			QueueLimit: cfg.QueueLimit,
			Logger:     log.Module(name),
		}), nil

	default:
		return nil, errors.Newf("unknown audio backend %q", name).
			Component("audiodev.backend").
			Category(errors.CategoryConfiguration).
			Context("backend", name).
			Context("available", Available()).
			Build()
	}
}

// nullClock paces the null device at roughly real time for the hardware
// buffer, falling back to 10ms when the buffer is unconstrained.
func nullClock(hw audiodev.Spec) time.Duration {
	if hw.Freq > 0 && hw.Samples > 0 {
		return hw.BufferDuration()
	}
	return 10 * time.Millisecond
}

// Known reports whether name is a backend New accepts.
func Known(name string) bool {
	return name == "" || slices.Contains(Available(), name)
}
