package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitForChannelReturnsValue(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 42
	assert.Equal(t, 42, WaitForChannel(t, ch, DefaultTestTimeout, "no value"))
}

func TestRequireBlockedOnEmptyChannel(t *testing.T) {
	t.Parallel()

	RequireBlocked(t, make(chan struct{}), "empty channel delivered")
}
