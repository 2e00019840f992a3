package play

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/sim"
	"github.com/tphakala/audiodevice/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func options() Options {
	return Options{
		Spec:      audiodev.Spec{Freq: 48000, Format: audiodev.FormatS16LSB, Channels: 2, Samples: 256},
		Tone:      440,
		Amplitude: 0.5,
		Duration:  60 * time.Millisecond,
		FadeIn:    20 * time.Millisecond,
		SweepTo:   880,
	}
}

func TestRunPlaysForDuration(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{Clock: time.Millisecond, Logger: logger.NewDiscardLogger()})
	defer sys.Shutdown()

	start := time.Now()
	require.NoError(t, Run(context.Background(), sys, options(), logger.NewDiscardLogger(),
		audiodev.WithLogger(logger.NewDiscardLogger())))

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, int64(1), sys.Opens())
	assert.Equal(t, int64(1), sys.Closes())
	assert.Zero(t, sys.OpenCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{Clock: time.Millisecond, Logger: logger.NewDiscardLogger()})
	defer sys.Shutdown()

	o := options()
	o.Duration = 0

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, Run(ctx, sys, o, logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger())))
	assert.Zero(t, sys.OpenCount())
}

func TestRunNegotiationFailure(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{
		Hardware: audiodev.Spec{Freq: 44100},
		Logger:   logger.NewDiscardLogger(),
	})
	defer sys.Shutdown()

	err := Run(context.Background(), sys, options(), logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger()))
	require.ErrorIs(t, err, audiodev.ErrDeviceOpen)

	o := options()
	o.Allowed = audiodev.AllowFrequencyChange
	o.Duration = 10 * time.Millisecond
	require.NoError(t, Run(context.Background(), sys, o, logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger())))
}
