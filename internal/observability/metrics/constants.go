// Package metrics provides constants used across metric definitions.
package metrics

import "time"

const (
	// Namespace prefixes every metric name.
	Namespace = "audiodevice"

	// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
	ShutdownTimeout = 5 * time.Second
)

// Direction label values.
const (
	DirectionPlayback = "playback"
	DirectionCapture  = "capture"
)

func direction(capture bool) string {
	if capture {
		return DirectionCapture
	}
	return DirectionPlayback
}
