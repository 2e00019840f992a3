//go:build ruleguard

// Package gorules defines custom linter rules for code using audiodev.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// DiscardedDeviceLock flags a DeviceLock that is thrown away. The device stays
// locked until the lock is unlocked or the handle is closed, so a discarded
// lock stalls the callback.
func DiscardedDeviceLock(m dsl.Matcher) {
	m.Match(`_ = $d.Lock()`).
		Where(m["d"].Type.Is("*audiodev.Device")).
		Report("DeviceLock from $d.Lock() must be kept and unlocked")
}

// ImmediateUnlock flags a lock whose only purpose is a barrier, which reads
// as a mistake unless the caller says so.
func ImmediateUnlock(m dsl.Matcher) {
	m.Match(`$d.Lock().Unlock()`).
		Where(m["d"].Type.Is("*audiodev.Device")).
		Report("$d.Lock().Unlock() only waits for the running callback; add a comment if that is intended")
}

// UncheckedQueue flags queue writes whose error is ignored; a full queue or a
// closed device is reported only through that error.
func UncheckedQueue(m dsl.Matcher) {
	m.Match(`_ = $d.QueueAudio($*_)`).
		Where(m["d"].Type.Is("*audiodev.Device")).
		Report("check the error from $d.QueueAudio")
}

// WaitGroupGo suggests wg.Go over the manual Add/Done pattern.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done").
		Suggest("$wg.Go(func() { $body })")
}
