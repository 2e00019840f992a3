// Package audiodev wraps a native audio subsystem's device API.
//
// A Device owns one open device session. Audio is produced or consumed by a
// Callback that the subsystem calls from its own thread, or, for devices
// opened without a callback, pushed with QueueAudio.
//
// Data shared with the callback is protected only by DeviceLock:
//
//	dev, err := audiodev.Open(sys, "", false, spec, func(stream []byte) {
//	    mixer.Render(stream)
//	})
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//	dev.Pause(false)
//
//	lock := dev.Lock()
//	mixer.SetVolume(0.5) // callback is not running here
//	lock.Unlock()
//
// Locks nest. The depth is kept by the subsystem, so a lock obtained with Copy
// must be unlocked separately, while Move hands over the same unit.
//
// Backends live in sub-packages: sim (in-process, also the null device),
// malgo (miniaudio) and oto.
package audiodev
