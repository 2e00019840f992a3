package malgo

import (
	"encoding/hex"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
)

func cacheKey(deviceType malgo.DeviceType) string {
	if deviceType == malgo.Capture {
		return "capture"
	}
	return "playback"
}

// rawDevices returns miniaudio's device list, cached for DeviceCacheTTL.
func (s *Subsystem) rawDevices(deviceType malgo.DeviceType) ([]malgo.DeviceInfo, error) {
	key := cacheKey(deviceType)
	if cached, ok := s.deviceCache.Get(key); ok {
		if infos, ok := cached.([]malgo.DeviceInfo); ok {
			return infos, nil
		}
	}

	infos, err := s.ctx.Devices(deviceType)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioBackend).
			Context("operation", "enumerate_devices").
			Build()
	}
	s.deviceCache.Set(key, infos, cache.DefaultExpiration)
	return infos, nil
}

// Devices implements audiodev.Enumerator.
func (s *Subsystem) Devices(capture bool) ([]audiodev.DeviceInfo, error) {
	deviceType := malgo.Playback
	if capture {
		deviceType = malgo.Capture
	}
	infos, err := s.rawDevices(deviceType)
	if err != nil {
		return nil, err
	}

	devices := make([]audiodev.DeviceInfo, 0, len(infos))
	for i := range infos {
		// Skip the discard/null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, audiodev.DeviceInfo{
			Name:      infos[i].Name(),
			ID:        decodeID(infos[i].ID.String()),
			Capture:   capture,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// InvalidateDeviceCache forces the next enumeration to query miniaudio.
func (s *Subsystem) InvalidateDeviceCache() {
	s.deviceCache.Flush()
}

func (s *Subsystem) findDevice(deviceType malgo.DeviceType, name string) (*malgo.DeviceInfo, error) {
	infos, err := s.rawDevices(deviceType)
	if err != nil {
		return nil, err
	}
	return SelectDevice(infos, name)
}

// SelectDevice finds a device by exact name, decoded id, or name substring, in that order.
// "default" and "sysdefault" select the system default device.
func SelectDevice(devices []malgo.DeviceInfo, deviceName string) (*malgo.DeviceInfo, error) {
	if deviceName == "" || deviceName == "default" || deviceName == "sysdefault" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}

	for i := range devices {
		if devices[i].Name() == deviceName {
			return &devices[i], nil
		}
	}

	for i := range devices {
		if decodeID(devices[i].ID.String()) == deviceName {
			return &devices[i], nil
		}
	}

	for i := range devices {
		if strings.Contains(devices[i].Name(), deviceName) {
			return &devices[i], nil
		}
	}

	return nil, errors.Newf("malgo: no audio device matching %q", deviceName).
		Component(componentName).
		Category(errors.CategoryNotFound).
		Context("device_name", deviceName).
		Context("available_devices", len(devices)).
		Build()
}

// decodeID turns miniaudio's hex-encoded id into readable text, e.g. ALSA's ":1,0".
// Ids that are not valid hex are returned unchanged.
func decodeID(hexStr string) string {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return hexStr
	}
	return strings.TrimRight(string(b), "\x00")
}

var backendNames = map[string]malgo.Backend{
	"wasapi":     malgo.BackendWasapi,
	"dsound":     malgo.BackendDsound,
	"winmm":      malgo.BackendWinmm,
	"coreaudio":  malgo.BackendCoreaudio,
	"sndio":      malgo.BackendSndio,
	"audio4":     malgo.BackendAudio4,
	"oss":        malgo.BackendOss,
	"pulseaudio": malgo.BackendPulseaudio,
	"pulse":      malgo.BackendPulseaudio,
	"alsa":       malgo.BackendAlsa,
	"jack":       malgo.BackendJack,
	"aaudio":     malgo.BackendAaudio,
	"opensl":     malgo.BackendOpensl,
	"webaudio":   malgo.BackendWebaudio,
	"null":       malgo.BackendNull,
}

// ParseBackends maps miniaudio backend names such as "alsa" or "pulse" to
// malgo backends. An empty list selects the platform default.
func ParseBackends(names []string) ([]malgo.Backend, error) {
	out := make([]malgo.Backend, 0, len(names))
	for _, name := range names {
		b, ok := backendNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, errors.Newf("unknown miniaudio backend %q", name).
				Component(componentName).
				Category(errors.CategoryConfiguration).
				Context("backend", name).
				Build()
		}
		out = append(out, b)
	}
	return out, nil
}
