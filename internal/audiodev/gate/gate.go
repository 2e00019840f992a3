// Package gate implements the recursive suspend lock that every audio backend
// puts between its callback thread and application code.
//
// Lock may be taken any number of times; callbacks are held off until every
// Lock has been matched by an Unlock. Lock waits for an in-flight callback to
// return, so once it returns the caller has exclusive access to whatever the
// callback touches.
package gate

import "sync"

// Gate is a recursive suspend lock for one device. The zero value is not usable; call New.
type Gate struct {
	mu         sync.Mutex
	cond       *sync.Cond
	locks      int
	inCallback bool
	closed     bool
}

// New returns an open, unlocked gate.
func New() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Lock increments the lock depth and waits until no callback is running.
// It must not be called from inside a callback on the same gate.
func (g *Gate) Lock() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.locks++
	for g.inCallback && !g.closed {
		g.cond.Wait()
	}
}

// Unlock releases one level. Extra calls are ignored.
func (g *Gate) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locks == 0 {
		return
	}
	g.locks--
	if g.locks == 0 {
		g.cond.Broadcast()
	}
}

// Depth reports the current lock depth.
func (g *Gate) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locks
}

// Run waits until the gate is unlocked and no other callback is running, then
// runs fn as one callback invocation. It returns false without calling fn once
// the gate is closed.
func (g *Gate) Run(fn func()) bool {
	g.mu.Lock()
	for (g.locks > 0 || g.inCallback) && !g.closed {
		g.cond.Wait()
	}
	return g.enterLocked(fn)
}

// TryRun runs fn only if the gate is unlocked and idle right now. Real-time
// threads use it so they can render silence instead of waiting.
func (g *Gate) TryRun(fn func()) bool {
	g.mu.Lock()
	if g.locks > 0 || g.inCallback {
		g.mu.Unlock()
		return false
	}
	return g.enterLocked(fn)
}

// enterLocked is called with g.mu held, no callback running, and releases it.
func (g *Gate) enterLocked(fn func()) bool {
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.inCallback = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inCallback = false
		g.cond.Broadcast()
		g.mu.Unlock()
	}()
	fn()
	return true
}

// Close stops further callbacks, wakes every waiter and waits for an
// in-flight callback to return. It must not be called from inside a callback.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	g.cond.Broadcast()
	for g.inCallback {
		g.cond.Wait()
	}
}

// Closed reports whether Close has been called.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
