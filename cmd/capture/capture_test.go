package capture

import (
	"bytes"
	"context"
	"io"
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

func counting() func([]byte) {
	var next byte
	return func(stream []byte) {
		for i := range stream {
			stream[i] = next
			next++
		}
	}
}

func TestRunRecordsInOrder(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{
		Clock:       time.Millisecond,
		CaptureFill: counting(),
		Logger:      logger.NewDiscardLogger(),
	})
	defer sys.Shutdown()

	var sink bytes.Buffer
	var gotSpec audiodev.Spec
	res, err := Run(context.Background(), sys, Options{
		Spec:     audiodev.Spec{Freq: 8000, Format: audiodev.FormatU8, Channels: 1, Samples: 32},
		Duration: 50 * time.Millisecond,
		Buffer:   time.Second,
	}, func(spec audiodev.Spec) (io.Writer, error) {
		gotSpec = spec
		return &sink, nil
	}, logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)

	assert.Equal(t, 32, gotSpec.Size)
	assert.Zero(t, res.Dropped)
	assert.Equal(t, int64(sink.Len()), res.Bytes)
	require.Positive(t, sink.Len())
	for i, b := range sink.Bytes() {
		require.Equal(t, byte(i), b, "byte %d out of order", i)
	}
	assert.Zero(t, sys.OpenCount())
}

func TestRunCountsOverruns(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{Clock: 100 * time.Microsecond, Logger: logger.NewDiscardLogger()})
	defer sys.Shutdown()

	res, err := Run(context.Background(), sys, Options{
		Spec:     audiodev.Spec{Freq: 8000, Format: audiodev.FormatS16LSB, Channels: 1, Samples: 64},
		Duration: 60 * time.Millisecond,
	}, func(audiodev.Spec) (io.Writer, error) {
		return io.Discard, nil
	}, logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)
	assert.Positive(t, res.Dropped)
}

func TestRunOpenFailure(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{Logger: logger.NewDiscardLogger()})
	defer sys.Shutdown()

	_, err := Run(context.Background(), sys, Options{
		Device: "no such mic",
		Spec:   audiodev.Spec{Freq: 8000, Format: audiodev.FormatU8, Channels: 1},
	}, func(audiodev.Spec) (io.Writer, error) {
		t.Fatal("sink created for a device that never opened")
		return nil, nil
	}, logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger()))
	require.ErrorIs(t, err, audiodev.ErrDeviceOpen)
}
