// Package conf loads the audiodevice configuration from YAML, environment
// variables and built-in defaults.
package conf

import (
	"embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix prefixes every environment override, e.g. AUDIODEV_AUDIO_BACKEND.
const EnvPrefix = "AUDIODEV"

// Settings is the complete configuration.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Audio   AudioSettings        `mapstructure:"audio" yaml:"audio"`
	Logging logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Sentry  SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
}

// AudioSettings selects the backend and the requested device format.
type AudioSettings struct {
	Backend        string        `mapstructure:"backend" yaml:"backend"`
	Device         string        `mapstructure:"device" yaml:"device"`
	CaptureDevice  string        `mapstructure:"capture_device" yaml:"capture_device"`
	Freq           int           `mapstructure:"freq" yaml:"freq"`
	Format         string        `mapstructure:"format" yaml:"format"`
	Channels       int           `mapstructure:"channels" yaml:"channels"`
	Samples        int           `mapstructure:"samples" yaml:"samples"`
	AllowedChanges string        `mapstructure:"allowed_changes" yaml:"allowed_changes"`
	QueueLimit     int           `mapstructure:"queue_limit" yaml:"queue_limit"`
	BufferSize     time.Duration `mapstructure:"buffer_size" yaml:"buffer_size"`
	DeviceCacheTTL time.Duration `mapstructure:"device_cache_ttl" yaml:"device_cache_ttl"`
	MalgoBackends  []string      `mapstructure:"malgo_backends" yaml:"malgo_backends"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// SentrySettings configures error reporting. Nothing is sent unless Enabled is
// set and a DSN is given.
type SentrySettings struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	DSN         string  `mapstructure:"dsn" yaml:"dsn"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Spec builds the requested device format.
func (a *AudioSettings) Spec() (audiodev.Spec, error) {
	format, err := audiodev.ParseSampleFormat(a.Format)
	if err != nil {
		return audiodev.Spec{}, err
	}
	return audiodev.Spec{
		Freq:     a.Freq,
		Format:   format,
		Channels: a.Channels,
		Samples:  a.Samples,
	}, nil
}

// Allowed returns the properties the subsystem may change when opening.
func (a *AudioSettings) Allowed() (audiodev.ChangeFlags, error) {
	return audiodev.ParseChangeFlags(a.AllowedChanges)
}

// FlagKeys maps command line flag names to the configuration keys they override.
var FlagKeys = map[string]string{
	"debug":          "debug",
	"backend":        "audio.backend",
	"device":         "audio.device",
	"capture-device": "audio.capture_device",
	"freq":           "audio.freq",
	"format":         "audio.format",
	"channels":       "audio.channels",
	"samples":        "audio.samples",
	"allow":          "audio.allowed_changes",
	"metrics":        "metrics.enabled",
	"listen":         "metrics.listen",
	"log-level":      "logging.console.level",
}

// Load reads configuration from path, or from the first config.yaml found in
// DefaultConfigPaths when path is empty. A missing default file is not an
// error; defaults and environment variables still apply. Flags in flags that
// appear in FlagKeys and were set on the command line take precedence.
func Load(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.New(err).
						Component("conf").
						Category(errors.CategoryConfiguration).
						Context("flag", name).
						Build()
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Context("path", path).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	if err := Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// DefaultConfigPaths lists the directories searched for config.yaml, in order.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "audiodevice"))
	}
	return append(paths, "/etc/audiodevice")
}

// DefaultConfig returns the annotated default configuration file.
func DefaultConfig() []byte {
	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		// embedded at build time
		panic(err)
	}
	return data
}

// WriteDefault writes the default configuration to path, refusing to replace
// an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file %s already exists", path).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("path", path).
			Build()
	}
	return writeFileAtomic(path, DefaultConfig())
}

// Dump renders settings as YAML.
func Dump(s *Settings) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_config").
			Build()
	}
	return data, nil
}

// SaveYAMLConfig writes settings to path, replacing the file atomically. Comments
// in the existing file are not preserved.
func SaveYAMLConfig(path string, s *Settings) error {
	data, err := Dump(s)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	fileErr := func(err error, op string) error {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", op).
			Context("path", path).
			Build()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileErr(err, "create_config_dir")
	}

	tmp, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fileErr(err, "create_temp_file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fileErr(err, "write_temp_file")
	}
	if err := tmp.Close(); err != nil {
		return fileErr(err, "close_temp_file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fileErr(err, "rename_config")
	}
	return nil
}
