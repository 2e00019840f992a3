// Package capture implements the capture command: recording from a capture
// device into a WAV file.
package capture

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
	"github.com/tphakala/audiodevice/internal/runtime"
	"github.com/tphakala/audiodevice/internal/wavfile"
)

// drainInterval is how often the writer empties the ring buffer.
const drainInterval = 20 * time.Millisecond

// Options controls a capture run.
type Options struct {
	Device   string
	Spec     audiodev.Spec
	Allowed  audiodev.ChangeFlags
	Duration time.Duration

	// Buffer is how much audio the ring buffer between the device callback
	// and the writer can hold.
	Buffer time.Duration
}

// Result summarizes a capture run.
type Result struct {
	Spec    audiodev.Spec
	Bytes   int64
	Dropped int64
}

// Command creates the capture command.
func Command(rt func() *runtime.Context) *cobra.Command {
	var (
		o   Options
		out string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record from a capture device into a WAV file",
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
			o.Device = rc.Settings.Audio.CaptureDevice
			o.Spec = spec
			o.Allowed = allowed

			sys, err := rc.OpenBackend()
			if err != nil {
				return err
			}
			defer func() { _ = sys.Close() }()

			return rc.Serve(cmd.Context(), func(ctx context.Context) error {
				log := rc.Module("capture").WithContext(ctx)
				var w *wavfile.Writer
				res, err := Run(ctx, sys, o, func(spec audiodev.Spec) (io.Writer, error) {
					var err error
					w, err = wavfile.Create(out, spec)
					return w, err
				}, log, rc.DeviceOptions()...)
				if w != nil {
					if cerr := w.Close(); err == nil {
						err = cerr
					}
				}
				if err != nil {
					return err
				}
				log.Info("capture saved",
					logger.String("file", out),
					logger.Int64("bytes", res.Bytes),
					logger.Int64("dropped_bytes", res.Dropped))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "capture.wav", "Output WAV file")
	cmd.Flags().DurationVar(&o.Duration, "duration", 5*time.Second, "How long to record, 0 records until interrupted")
	cmd.Flags().DurationVar(&o.Buffer, "buffer", 2*time.Second, "Audio buffered between the device and the file")

	return cmd
}

// Run records from a capture device. create is called once the device format
// is known and returns the sink for captured PCM. Audio that does not fit the
// ring buffer is dropped and counted rather than blocking the device.
func Run(ctx context.Context, sys audiodev.Subsystem, o Options, create func(audiodev.Spec) (io.Writer, error), log logger.Logger, devOpts ...audiodev.Option) (Result, error) {
	spec := o.Spec
	dev, err := audiodev.OpenNegotiated(sys, o.Device, true, &spec, o.Allowed, func([]byte) {}, devOpts...)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = dev.Close() }()

	sink, err := create(spec)
	if err != nil {
		return Result{Spec: spec}, err
	}

	size := int(o.Buffer) / int(time.Millisecond) * spec.Freq / 1000 * spec.FrameSize()
	ring := ringbuffer.New(max(size, 2*spec.Size))

	var dropped atomic.Int64
	dev.ChangeCallback(func(stream []byte) {
		n, err := ring.Write(stream)
		if err != nil {
			dropped.Add(int64(len(stream) - n))
		}
	})
	dev.Pause(false)

	log.Info("capturing",
		logger.String("device", dev.Name()),
		logger.String("spec", spec.String()),
		logger.String("session", dev.SessionID().String()))

	if o.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Duration)
		defer cancel()
	}

	var written atomic.Int64
	buf := make([]byte, max(spec.Size, spec.FrameSize()))
	drain := func() error {
		for {
			n, err := ring.Read(buf)
			if n > 0 {
				if _, werr := sink.Write(buf[:n]); werr != nil {
					return werr
				}
				written.Add(int64(n))
			}
			if errors.Is(err, ringbuffer.ErrIsEmpty) || n == 0 {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(drainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := drain(); err != nil {
					return err
				}
			}
		}
	})
	err = g.Wait()

	// Pausing and then taking the lock waits out any callback still running.
	dev.Pause(true)
	lock := dev.Lock()
	lock.Unlock()
	if derr := drain(); err == nil {
		err = derr
	}

	res := Result{Spec: spec, Bytes: written.Load(), Dropped: dropped.Load()}
	if res.Dropped > 0 {
		log.Warn("capture overran the buffer", logger.Int64("dropped_bytes", res.Dropped))
	}
	return res, err
}
