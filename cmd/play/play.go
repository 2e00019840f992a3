// Package play implements the play command: a sine tone rendered by a device callback.
package play

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/logger"
	"github.com/tphakala/audiodevice/internal/runtime"
	"github.com/tphakala/audiodevice/internal/tone"
)

// Options controls a playback run.
type Options struct {
	Device    string
	Spec      audiodev.Spec
	Allowed   audiodev.ChangeFlags
	Tone      float64
	Amplitude float64
	Duration  time.Duration
	FadeIn    time.Duration
	// SweepTo, when non-zero, switches the callback to a second tone halfway through.
	SweepTo float64
}

// Command creates the play command.
func Command(rt func() *runtime.Context) *cobra.Command {
	var o Options

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a sine tone through a callback device",
		Long:  "Opens a playback device in callback mode and renders a sine tone until the duration elapses or the process is interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := rt()
			spec, err := rc.Settings.Audio.Spec()
			if err != nil {
				return err
			}
			allowed, err := rc.Settings.Audio.Allowed()
			if err != nil {
				return err
			}
			o.Device = rc.Settings.Audio.Device
			o.Spec = spec
			o.Allowed = allowed

			sys, err := rc.OpenBackend()
			if err != nil {
				return err
			}
			defer func() { _ = sys.Close() }()

			return rc.Serve(cmd.Context(), func(ctx context.Context) error {
				return Run(ctx, sys, o, rc.Module("play").WithContext(ctx), rc.DeviceOptions()...)
			})
		},
	}

	cmd.Flags().Float64Var(&o.Tone, "tone", 440, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&o.Amplitude, "amplitude", 0.3, "Tone amplitude between 0 and 1")
	cmd.Flags().DurationVar(&o.Duration, "duration", 3*time.Second, "How long to play, 0 plays until interrupted")
	cmd.Flags().DurationVar(&o.FadeIn, "fade-in", 200*time.Millisecond, "Fade-in time")
	cmd.Flags().Float64Var(&o.SweepTo, "sweep-to", 0, "Switch to this frequency halfway through")

	return cmd
}

// Run opens the device, plays until ctx ends or o.Duration elapses, and closes it.
func Run(ctx context.Context, sys audiodev.Subsystem, o Options, log logger.Logger, devOpts ...audiodev.Option) error {
	spec := o.Spec
	dev, err := audiodev.OpenNegotiated(sys, o.Device, false, &spec, o.Allowed, func(stream []byte) { clear(stream) }, devOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	gen, err := tone.New(spec, o.Tone, 0)
	if err != nil {
		return err
	}
	dev.ChangeCallback(gen.Fill)
	dev.Pause(false)

	log.Info("playing tone",
		logger.String("device", dev.Name()),
		logger.String("spec", spec.String()),
		logger.Float64("tone_hz", o.Tone),
		logger.String("session", dev.SessionID().String()))

	var deadline <-chan time.Time
	if o.Duration > 0 {
		timer := time.NewTimer(o.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	var sweep <-chan time.Time
	if o.SweepTo > 0 && o.Duration > 0 {
		sweepTimer := time.NewTimer(o.Duration / 2)
		defer sweepTimer.Stop()
		sweep = sweepTimer.C
	}

	const fadeStep = 20 * time.Millisecond
	fade := time.NewTicker(fadeStep)
	defer fade.Stop()
	start := time.Now()
	fading := true

	for {
		select {
		case <-ctx.Done():
			log.Info("playback interrupted", logger.Duration("played", time.Since(start)))
			return nil

		case <-deadline:
			log.Info("playback finished", logger.Duration("played", time.Since(start)))
			return nil

		case <-sweep:
			next, err := tone.New(spec, o.SweepTo, o.Amplitude)
			if err != nil {
				return err
			}
			dev.ChangeCallback(next.Fill)
			gen = next
			log.Debug("switched tone", logger.Float64("tone_hz", o.SweepTo))

		case <-fade.C:
			if !fading {
				continue
			}
			level := o.Amplitude
			if elapsed := time.Since(start); o.FadeIn > 0 && elapsed < o.FadeIn {
				level *= float64(elapsed) / float64(o.FadeIn)
			} else {
				fading = false
				fade.Stop()
			}
			lock := dev.Lock()
			gen.SetAmplitude(level)
			lock.Unlock()
		}
	}
}
