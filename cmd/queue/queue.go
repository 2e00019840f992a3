// Package queue implements the queue command: audio pushed to a device with
// QueueAudio instead of a callback.
package queue

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
	"github.com/tphakala/audiodevice/internal/runtime"
	"github.com/tphakala/audiodevice/internal/tone"
	"github.com/tphakala/audiodevice/internal/wavfile"
)

// pollInterval is how often the queue level is checked.
const pollInterval = 10 * time.Millisecond

// Options controls a queued playback run.
type Options struct {
	Device string
	Spec   audiodev.Spec

	// HighWater is how much audio is kept queued ahead of the device.
	HighWater time.Duration

	// Chunk is the size of each QueueAudio call in bytes. Zero means one device buffer.
	Chunk int
}

// Command creates the queue command.
func Command(rt func() *runtime.Context) *cobra.Command {
	var (
		o         Options
		toneHz    float64
		amplitude float64
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "queue [file.wav]",
		Short: "Play a WAV file, or a tone, through a queued device",
		Long: "Opens a playback device without a callback and feeds it with QueueAudio. " +
			"A WAV file is played in its own format; without a file a tone in the configured format is queued.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := rt()
			o.Device = rc.Settings.Audio.Device

			var src io.Reader
			if len(args) == 1 {
				r, err := wavfile.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = r.Close() }()
				o.Spec = r.Spec()
				o.Spec.Samples = rc.Settings.Audio.Samples
				src = r
			} else {
				spec, err := rc.Settings.Audio.Spec()
				if err != nil {
					return err
				}
				spec.Calculate()
				gen, err := tone.New(spec, toneHz, amplitude)
				if err != nil {
					return err
				}
				o.Spec = spec
				src = io.LimitReader(gen, bytesFor(spec, duration))
			}

			sys, err := rc.OpenBackend()
			if err != nil {
				return err
			}
			defer func() { _ = sys.Close() }()

			return rc.Serve(cmd.Context(), func(ctx context.Context) error {
				return Run(ctx, sys, src, o, rc.Module("queue").WithContext(ctx), rc.DeviceOptions()...)
			})
		},
	}

	cmd.Flags().DurationVar(&o.HighWater, "high-water", 500*time.Millisecond, "Audio kept queued ahead of the device")
	cmd.Flags().IntVar(&o.Chunk, "chunk", 0, "Bytes per QueueAudio call, 0 for one device buffer")
	cmd.Flags().Float64Var(&toneHz, "tone", 440, "Tone frequency when no file is given")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 0.3, "Tone amplitude when no file is given")
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "Tone length when no file is given")

	return cmd
}

// bytesFor returns the whole-frame byte count of d at spec.
func bytesFor(spec audiodev.Spec, d time.Duration) int64 {
	frames := int64(d) * int64(spec.Freq) / int64(time.Second)
	return frames * int64(spec.FrameSize())
}

// Run opens a queued device in o.Spec, queues src into it and returns once
// the queue drains or ctx ends.
func Run(ctx context.Context, sys audiodev.Subsystem, src io.Reader, o Options, log logger.Logger, devOpts ...audiodev.Option) error {
	dev, err := audiodev.Open(sys, o.Device, false, o.Spec, nil, devOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	spec := dev.Spec()
	chunk := o.Chunk
	if chunk <= 0 {
		chunk = int(spec.Size)
	}
	chunk = max(chunk/spec.FrameSize(), 1) * spec.FrameSize()
	highWater := uint32(max(bytesFor(spec, o.HighWater), int64(chunk))) //nolint:gosec // bounded by duration flags

	log.Info("queueing audio",
		logger.String("device", dev.Name()),
		logger.String("spec", spec.String()),
		logger.Int("chunk", chunk))

	buf := make([]byte, chunk)
	var queued int64
	started := false
	eof := false

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		for !eof && dev.QueuedAudioSize() < highWater {
			n, err := io.ReadFull(src, buf)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				eof = true
			} else if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			if err := dev.QueueAudio(buf[:n]); err != nil {
				return err
			}
			queued += int64(n)
		}

		if !started {
			dev.Pause(false)
			started = true
		}
		if eof && dev.QueuedAudioSize() == 0 {
			log.Info("queue drained", logger.Int64("bytes", queued))
			return nil
		}

		select {
		case <-ctx.Done():
			dev.ClearQueuedAudio()
			log.Info("queued playback interrupted", logger.Int64("bytes", queued))
			return nil
		case <-ticker.C:
		}
	}
}
