package audiodev

// DeviceID identifies an open device within one Subsystem.
type DeviceID uint32

// InvalidDeviceID is never returned by a successful OpenDevice.
const InvalidDeviceID DeviceID = 0

// Trampoline is the single entry point a Subsystem calls from its callback
// thread. userdata is the value passed to OpenDevice.
type Trampoline func(userdata any, stream []byte)

// Subsystem is the native audio layer a Device drives. Implementations own the
// callback thread and the recursive per-device lock counter.
type Subsystem interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// OpenDevice opens name (empty for the default device) for playback or capture.
	// desired is rewritten with the obtained format; fields outside allowed must
	// be honoured exactly. A nil fn opens the device in queued mode.
	// The device starts paused.
	OpenDevice(name string, capture bool, desired *Spec, allowed ChangeFlags, fn Trampoline, userdata any) (DeviceID, error)

	CloseDevice(id DeviceID) error
	PauseDevice(id DeviceID, pause bool)
	DeviceStatus(id DeviceID) Status

	// LockDevice blocks until no callback for id is running and holds off
	// further callbacks until the matching UnlockDevice. Calls nest.
	LockDevice(id DeviceID)
	UnlockDevice(id DeviceID)
}

// Queuer is implemented by subsystems that support pushing audio to devices
// opened without a callback.
type Queuer interface {
	QueueAudio(id DeviceID, data []byte) error
	ClearQueuedAudio(id DeviceID)
	QueuedAudioSize(id DeviceID) uint32
}

// Enumerator is implemented by subsystems that can list their devices.
type Enumerator interface {
	Devices(capture bool) ([]DeviceInfo, error)
}

// DeviceInfo describes one endpoint reported by an Enumerator.
type DeviceInfo struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Capture   bool   `json:"capture"`
	IsDefault bool   `json:"is_default"`
}
