package audiodev_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/sim"
	"github.com/tphakala/audiodevice/internal/testutil"
)

func TestLockSuppressesDelivery(t *testing.T) {
	t.Parallel()

	sys := newSim(t, sim.Config{})
	var calls atomic.Int32
	dev := openPlaying(t, sys, func([]byte) { calls.Add(1) })
	id := dev.ID()

	lock := dev.Lock()
	copied := lock.Copy()
	moved := copied.Move()

	assert.False(t, sys.Deliver(id))
	lock.Unlock()
	assert.False(t, sys.Deliver(id), "a moved copy still holds a unit")
	copied.Unlock()
	assert.False(t, sys.Deliver(id), "unlocking a moved-from lock must not release")
	moved.Unlock()

	assert.True(t, sys.Deliver(id))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTwoLocksReleaseOrder(t *testing.T) {
	t.Parallel()

	acquire := map[string]func(*audiodev.Device) (*audiodev.DeviceLock, *audiodev.DeviceLock){
		"two Lock calls": func(d *audiodev.Device) (*audiodev.DeviceLock, *audiodev.DeviceLock) {
			return d.Lock(), d.Lock()
		},
		"Copy": func(d *audiodev.Device) (*audiodev.DeviceLock, *audiodev.DeviceLock) {
			a := d.Lock()
			return a, a.Copy()
		},
		"CopyFrom": func(d *audiodev.Device) (*audiodev.DeviceLock, *audiodev.DeviceLock) {
			a := d.Lock()
			b := &audiodev.DeviceLock{}
			b.CopyFrom(a)
			return a, b
		},
	}

	for name, acq := range acquire {
		for _, firstReleased := range []string{"first", "second"} {
			t.Run(name+"/release "+firstReleased, func(t *testing.T) {
				t.Parallel()

				sys := newSim(t, sim.Config{})
				dev := openPlaying(t, sys, func([]byte) {})
				id := dev.ID()

				a, b := acq(dev)
				assert.Equal(t, 2, sys.LockDepth(id))

				if firstReleased == "first" {
					a.Unlock()
				} else {
					b.Unlock()
				}
				assert.Equal(t, 1, sys.LockDepth(id))
				assert.False(t, sys.Deliver(id), "device must stay locked after one release")

				a.Unlock()
				b.Unlock()
				assert.Equal(t, 0, sys.LockDepth(id))
				assert.True(t, sys.Deliver(id))
			})
		}
	}
}

func TestMovedFromLockDoesNotTouchCounter(t *testing.T) {
	t.Parallel()

	sys := newSim(t, sim.Config{})
	dev := openPlaying(t, sys, func([]byte) {})
	id := dev.ID()

	src := dev.Lock()
	dst := src.Move()
	assert.Equal(t, 1, sys.LockDepth(id), "move must not re-acquire")
	assert.False(t, src.Held())
	assert.True(t, dst.Held())

	src.Unlock()
	assert.Equal(t, 1, sys.LockDepth(id))
	empty := src.Copy()
	assert.False(t, empty.Held())
	assert.Equal(t, 1, sys.LockDepth(id), "copying a moved-from lock must not acquire")

	dst.Unlock()
	dst.Unlock()
	assert.Equal(t, 0, sys.LockDepth(id))
}

func TestLockMoveFrom(t *testing.T) {
	t.Parallel()

	sys := newSim(t, sim.Config{})
	devA := openPlaying(t, sys, func([]byte) {})
	devB := openPlaying(t, sys, func([]byte) {})

	dst := devA.Lock()
	src := devB.Lock()
	require.Equal(t, 1, sys.LockDepth(devA.ID()))

	dst.MoveFrom(src)
	assert.Equal(t, 0, sys.LockDepth(devA.ID()), "destination's old unit is released")
	assert.Equal(t, 1, sys.LockDepth(devB.ID()))
	assert.False(t, src.Held())

	dst.MoveFrom(dst)
	assert.Equal(t, 1, sys.LockDepth(devB.ID()), "self move is a no-op")

	var placeholder audiodev.DeviceLock
	placeholder.MoveFrom(dst)
	assert.True(t, placeholder.Held())
	placeholder.Unlock()
	assert.Equal(t, 0, sys.LockDepth(devB.ID()))
}

func TestLockCopyFromSameDevice(t *testing.T) {
	t.Parallel()

	sys := newSim(t, sim.Config{})
	dev := openPlaying(t, sys, func([]byte) {})
	id := dev.ID()

	a := dev.Lock()
	b := dev.Lock()
	require.Equal(t, 2, sys.LockDepth(id))

	b.CopyFrom(a)
	assert.Equal(t, 2, sys.LockDepth(id))
	assert.False(t, sys.Deliver(id))

	b.CopyFrom(b)
	assert.Equal(t, 2, sys.LockDepth(id), "self copy is a no-op")

	b.CopyFrom(&audiodev.DeviceLock{})
	assert.Equal(t, 1, sys.LockDepth(id), "copying an empty lock releases the old unit")
	assert.False(t, b.Held())

	a.Unlock()
	assert.Equal(t, 0, sys.LockDepth(id))
}

func TestZeroLockIsNoop(t *testing.T) {
	t.Parallel()

	var l audiodev.DeviceLock
	assert.False(t, l.Held())
	assert.NotPanics(t, func() {
		l.Unlock()
		c := l.Copy()
		c.Unlock()
		m := l.Move()
		m.Unlock()
	})

	var nilLock *audiodev.DeviceLock
	assert.NotPanics(t, func() {
		nilLock.Unlock()
		nilLock.MoveFrom(&l)
		nilLock.CopyFrom(&l)
	})
	assert.False(t, nilLock.Held())
}

func TestLockWaitsForRunningCallback(t *testing.T) {
	t.Parallel()

	sys := newSim(t, sim.Config{})
	entered := make(chan struct{})
	release := make(chan struct{})
	var inCallback atomic.Bool

	dev := openPlaying(t, sys, func([]byte) {
		inCallback.Store(true)
		close(entered)
		<-release
		inCallback.Store(false)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sys.Deliver(dev.ID())
	}()
	<-entered

	locked := make(chan *audiodev.DeviceLock)
	go func() { locked <- dev.Lock() }()

	testutil.RequireBlocked(t, locked, "Lock returned while the callback was running")

	close(release)
	lock := <-locked
	assert.False(t, inCallback.Load())
	lock.Unlock()
	<-done
}

func TestLockOutlivingDevice(t *testing.T) {
	t.Parallel()

	sys := newSim(t, sim.Config{})
	dev, err := audiodev.Open(sys, "", false, stereo16(), func([]byte) {}, quiet)
	require.NoError(t, err)

	lock := dev.Lock()
	copied := lock.Copy()
	require.NoError(t, dev.Close())

	assert.NotPanics(t, func() {
		lock.Unlock()
		copied.Unlock()
	})
	assert.False(t, dev.Lock().Held())
}
