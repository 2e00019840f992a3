package queue

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/sim"
	"github.com/tphakala/audiodevice/internal/logger"
	"github.com/tphakala/audiodevice/internal/tone"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type queuedCounter struct {
	bytes atomic.Int64
	calls atomic.Int64
}

func (*queuedCounter) RecordOpen(string, bool)   {}
func (*queuedCounter) RecordOpenError(string)    {}
func (*queuedCounter) RecordClose(string)        {}
func (*queuedCounter) RecordLock(string)         {}
func (*queuedCounter) RecordUnlock(string)       {}
func (*queuedCounter) RecordCallbackSwap(string) {}
func (*queuedCounter) RecordQueueError(string)   {}
func (c *queuedCounter) RecordQueued(_ string, n int) {
	c.bytes.Add(int64(n))
	c.calls.Add(1)
}

func spec() audiodev.Spec {
	return audiodev.Spec{Freq: 8000, Format: audiodev.FormatS16LSB, Channels: 1, Samples: 64}
}

func TestRunQueuesEverythingAndDrains(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{Clock: time.Millisecond, Logger: logger.NewDiscardLogger()})
	defer sys.Shutdown()

	counter := &queuedCounter{}
	src := bytes.NewReader(make([]byte, 1001))
	err := Run(context.Background(), sys, src, Options{Spec: spec(), HighWater: 20 * time.Millisecond, Chunk: 100},
		logger.NewDiscardLogger(),
		audiodev.WithLogger(logger.NewDiscardLogger()), audiodev.WithMetrics(counter))
	require.NoError(t, err)

	assert.Equal(t, int64(1001), counter.bytes.Load())
	assert.Equal(t, int64(11), counter.calls.Load(), "ten 100-byte chunks and the 1-byte tail")
	assert.Zero(t, sys.OpenCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{Clock: time.Millisecond, Logger: logger.NewDiscardLogger()})
	defer sys.Shutdown()

	gen, err := tone.New(spec(), 440, 0.5)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, Run(ctx, sys, gen, Options{Spec: spec(), HighWater: 10 * time.Millisecond},
		logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger())))
	assert.Zero(t, sys.OpenCount())
}

func TestRunQueueLimitIsQueueError(t *testing.T) {
	t.Parallel()

	sys := sim.New(sim.Config{QueueLimit: 64, Logger: logger.NewDiscardLogger()})
	defer sys.Shutdown()

	err := Run(context.Background(), sys, bytes.NewReader(make([]byte, 512)),
		Options{Spec: spec(), HighWater: time.Second, Chunk: 256},
		logger.NewDiscardLogger(), audiodev.WithLogger(logger.NewDiscardLogger()))
	require.ErrorIs(t, err, audiodev.ErrQueue)
}

func TestBytesFor(t *testing.T) {
	t.Parallel()

	s := audiodev.Spec{Freq: 48000, Format: audiodev.FormatF32LSB, Channels: 2}
	assert.Equal(t, int64(48000*8), bytesFor(s, time.Second))
	assert.Equal(t, int64(480*8), bytesFor(s, 10*time.Millisecond))
}
