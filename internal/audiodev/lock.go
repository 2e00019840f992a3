package audiodev

import (
	"sync/atomic"
)

// DeviceLock is one unit of a device's recursive suspend lock. While any
// DeviceLock for a device is held its callback is not invoked.
//
// The lock excludes only the callback thread. Units are counted, not owned, so
// a second goroutine's Lock returns at once and two application goroutines
// holding locks are not kept apart; guard state shared between them with a
// mutex of their own.
//
// The lock depth lives in the subsystem: Copy takes a fresh unit, Move hands
// the existing unit over. The zero value holds nothing and all of its methods
// are no-ops, so it can be declared up front and filled in with MoveFrom.
type DeviceLock struct {
	sess atomic.Pointer[session]
}

// acquire takes one unit on s. Closed sessions are not locked.
func (s *session) acquire() bool {
	if s.closed.Load() {
		return false
	}
	s.sys.LockDevice(s.id)
	s.metrics.RecordLock(s.sys.Name())
	return true
}

func (s *session) release() {
	if s.closed.Load() {
		return
	}
	s.sys.UnlockDevice(s.id)
	s.metrics.RecordUnlock(s.sys.Name())
}

// Unlock releases the unit held by l. Only the first call has any effect.
func (l *DeviceLock) Unlock() {
	if l == nil {
		return
	}
	if s := l.sess.Swap(nil); s != nil {
		s.release()
	}
}

// Held reports whether l currently holds a unit.
func (l *DeviceLock) Held() bool {
	return l != nil && l.sess.Load() != nil
}

// Copy returns an independent lock on the same device, taking another unit.
// Copying a lock that holds nothing returns a lock that holds nothing.
func (l *DeviceLock) Copy() *DeviceLock {
	c := &DeviceLock{}
	if l == nil {
		return c
	}
	if s := l.sess.Load(); s != nil && s.acquire() {
		c.sess.Store(s)
	}
	return c
}

// CopyFrom makes l an independent copy of src. The new unit is taken before
// l's previous unit is released, so re-copying a lock on the same device never
// lets the depth touch zero.
func (l *DeviceLock) CopyFrom(src *DeviceLock) {
	if l == nil || l == src {
		return
	}
	var next *session
	if src != nil {
		if s := src.sess.Load(); s != nil && s.acquire() {
			next = s
		}
	}
	if prev := l.sess.Swap(next); prev != nil {
		prev.release()
	}
}

// Move returns a lock holding l's unit and leaves l empty. The depth is unchanged.
func (l *DeviceLock) Move() *DeviceLock {
	m := &DeviceLock{}
	if l == nil {
		return m
	}
	m.sess.Store(l.sess.Swap(nil))
	return m
}

// MoveFrom releases l's unit, if any, and takes src's. src is left empty.
func (l *DeviceLock) MoveFrom(src *DeviceLock) {
	if l == nil || l == src {
		return
	}
	var next *session
	if src != nil {
		next = src.sess.Swap(nil)
	}
	if prev := l.sess.Swap(next); prev != nil {
		prev.release()
	}
}
