// Package testutil provides shared helpers for tests that coordinate
// goroutines through channels.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	// DefaultTestTimeout bounds waits for events that must happen.
	DefaultTestTimeout = 5 * time.Second

	// BlockedWindow is how long an operation must stay pending to count as blocked.
	BlockedWindow = 20 * time.Millisecond
)

// WaitForChannel waits for a receive on ch or fails after timeout.
func WaitForChannel[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}

// RequireBlocked fails if ch delivers within BlockedWindow.
func RequireBlocked[T any](t *testing.T, ch <-chan T, msg string) {
	t.Helper()
	select {
	case <-ch:
		require.FailNow(t, msg)
	case <-time.After(BlockedWindow):
	}
}
