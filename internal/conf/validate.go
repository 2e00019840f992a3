package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/tphakala/audiodevice/internal/errors"
)

// backends accepted by audio.backend. Kept here so loading configuration does
// not link the audio drivers.
var backends = []string{"malgo", "oto", "null", "sim"}

var logLevels = []string{"trace", "debug", "info", "warn", "warning", "error"}

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(ve.Errors, "; "))
}

// Validate checks settings for values that would fail later at open time.
func Validate(s *Settings) error {
	var ve ValidationError

	a := &s.Audio
	if !slices.Contains(backends, a.Backend) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("audio.backend %q must be one of %s", a.Backend, strings.Join(backends, ", ")))
	}
	if spec, err := a.Spec(); err != nil {
		ve.Errors = append(ve.Errors, "audio.format: "+err.Error())
	} else if err := spec.Validate(); err != nil {
		ve.Errors = append(ve.Errors, "audio: "+err.Error())
	}
	if _, err := a.Allowed(); err != nil {
		ve.Errors = append(ve.Errors, "audio.allowed_changes: "+err.Error())
	}
	if a.QueueLimit < 0 {
		ve.Errors = append(ve.Errors, "audio.queue_limit must not be negative")
	}
	if a.BufferSize < 0 {
		ve.Errors = append(ve.Errors, "audio.buffer_size must not be negative")
	}

	ve.Errors = append(ve.Errors, validateLogLevels(s)...)

	if s.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(s.Metrics.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("metrics.listen %q: %v", s.Metrics.Listen, err))
		}
	}

	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}
	if s.Sentry.SampleRate < 0 || s.Sentry.SampleRate > 1 {
		ve.Errors = append(ve.Errors, "sentry.sample_rate must be between 0 and 1")
	}

	if len(ve.Errors) == 0 {
		return nil
	}
	return errors.New(ve).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("problems", len(ve.Errors)).
		Build()
}

func validateLogLevels(s *Settings) []string {
	var problems []string
	check := func(key, level string) {
		if level != "" && !slices.Contains(logLevels, strings.ToLower(level)) {
			problems = append(problems, fmt.Sprintf("%s %q is not a log level", key, level))
		}
	}

	l := &s.Logging
	check("logging.default_level", l.DefaultLevel)
	if l.Console != nil {
		check("logging.console.level", l.Console.Level)
	}
	if l.FileOutput != nil {
		check("logging.file_output.level", l.FileOutput.Level)
		if l.FileOutput.Enabled && l.FileOutput.Path == "" {
			problems = append(problems, "logging.file_output.path is required when file output is enabled")
		}
	}
	for module, level := range l.ModuleLevels {
		check("logging.module_levels."+module, level)
	}
	return problems
}
