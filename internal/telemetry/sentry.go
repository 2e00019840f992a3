// Package telemetry reports audio errors to Sentry when the user opts in.
package telemetry

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/audiodevice/internal/conf"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/logger"
)

// FlushTimeout bounds how long Shutdown waits for queued events.
const FlushTimeout = 2 * time.Second

var (
	mu          sync.Mutex
	initialized bool
)

// Options tune Init. Transport is only set by tests.
type Options struct {
	Release   string
	Transport sentry.Transport
	Logger    logger.Logger
}

// Init starts Sentry reporting when settings enable it and routes
// EnhancedErrors to it. It is a no-op otherwise.
func Init(settings conf.SentrySettings, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("telemetry")
	}
	if !settings.Enabled {
		log.Debug("sentry telemetry disabled")
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Transport:        opts.Transport,
		SampleRate:       settings.SampleRate,
		Environment:      settings.Environment,
		Release:          opts.Release,
		AttachStacktrace: false,
		ServerName:       "",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized = true
	log.Info("sentry telemetry enabled", logger.String("environment", settings.Environment))
	return nil
}

// Shutdown detaches the error reporter and flushes queued events.
func Shutdown() bool {
	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		return true
	}
	errors.SetTelemetryReporter(nil)
	initialized = false
	return sentry.Flush(FlushTimeout)
}

// applyPrivacyFilters strips host and user identity from outgoing events.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
