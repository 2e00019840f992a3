package malgo

import (
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/gate"
	"github.com/tphakala/audiodevice/internal/errors"
)

// device is one miniaudio device plus the state its data callback reads.
type device struct {
	id       audiodev.DeviceID
	dev      *malgo.Device
	spec     audiodev.Spec
	capture  bool
	fn       audiodev.Trampoline
	userdata any
	gate     *gate.Gate

	// queue holds pushed audio for devices opened without a callback.
	queue *ringbuffer.RingBuffer

	mu      sync.Mutex
	playing bool
}

func newDevice(spec audiodev.Spec, capture bool, fn audiodev.Trampoline, userdata any, queueLimit int) *device {
	d := &device{
		spec:     spec,
		capture:  capture,
		fn:       fn,
		userdata: userdata,
		gate:     gate.New(),
	}
	if fn == nil {
		d.queue = ringbuffer.New(queueLimit)
	}
	return d
}

// onData runs on the miniaudio thread. It never waits on the gate: while the
// device is locked playback renders silence, the queue is left untouched and
// captured frames are dropped.
func (d *device) onData(output, input []byte, frameCount uint32) {
	if d.capture {
		n := min(len(input), int(frameCount)*d.spec.FrameSize())
		d.gate.TryRun(func() { d.fn(d.userdata, input[:n]) })
		return
	}

	n := min(len(output), int(frameCount)*d.spec.FrameSize())
	stream := output[:n]

	if d.fn == nil {
		drained := d.gate.TryRun(func() {
			read, _ := d.queue.Read(stream) // ErrIsEmpty just means underrun
			d.spec.FillSilence(stream[read:])
		})
		if !drained {
			d.spec.FillSilence(stream)
		}
		return
	}

	if !d.gate.TryRun(func() { d.fn(d.userdata, stream) }) {
		d.spec.FillSilence(stream)
	}
}

func (d *device) enqueue(data []byte) error {
	if d.queue == nil {
		return backendError("device has a callback, queueing not allowed", "queue_audio")
	}
	if len(data) == 0 {
		return nil
	}
	if d.queue.Free() < len(data) {
		return errors.Newf("malgo: queue full (%d bytes free, %d requested)", d.queue.Free(), len(data)).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			Context("operation", "queue_audio").
			Build()
	}
	if _, err := d.queue.Write(data); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			Context("operation", "queue_audio").
			Build()
	}
	return nil
}

func (d *device) setPaused(pause bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playing == !pause {
		return nil
	}
	var err error
	if pause {
		err = d.dev.Stop()
	} else {
		err = d.dev.Start()
	}
	if err != nil {
		return err
	}
	d.playing = !pause
	return nil
}

func (d *device) status() audiodev.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing {
		return audiodev.Playing
	}
	return audiodev.Paused
}

// shutdown stops callbacks and releases the miniaudio device.
func (d *device) shutdown() {
	d.gate.Close()

	d.mu.Lock()
	if d.playing {
		_ = d.dev.Stop()
		d.playing = false
	}
	d.mu.Unlock()

	d.dev.Uninit()
}
