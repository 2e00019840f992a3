package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/logger"
)

// setDefaultConfig registers a default for every key so environment
// overrides reach Unmarshal even when the file omits the key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("audio.backend", "malgo")
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.capture_device", "")
	v.SetDefault("audio.freq", 48000)
	v.SetDefault("audio.format", "s16le")
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.samples", audiodev.DefaultSamples)
	v.SetDefault("audio.allowed_changes", "none")
	v.SetDefault("audio.queue_limit", 4<<20)
	v.SetDefault("audio.buffer_size", time.Duration(0))
	v.SetDefault("audio.device_cache_ttl", 30*time.Second)
	v.SetDefault("audio.malgo_backends", []string{})

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", false)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)
}
