// Package runtime holds the process-wide state shared by every command: build
// metadata, the loaded settings, logging, metrics and backend selection.
package runtime

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/audiodev/backend"
	"github.com/tphakala/audiodevice/internal/buildinfo"
	"github.com/tphakala/audiodevice/internal/conf"
	"github.com/tphakala/audiodevice/internal/logger"
	"github.com/tphakala/audiodevice/internal/observability"
	"github.com/tphakala/audiodevice/internal/telemetry"
)

// Command annotations that let a command run without loaded settings or
// without the services New builds.
const (
	SkipConfig  = "audiodevice/skip-config"
	SkipRuntime = "audiodevice/skip-runtime"
)

// Context contains build metadata that is not user-configurable plus the
// services built from the loaded settings.
type Context struct {
	Build *buildinfo.Info

	// RunID identifies this process in logs and telemetry.
	RunID uuid.UUID

	Settings *conf.Settings
	Log      logger.Logger
	Metrics  *observability.Metrics

	central *logger.CentralLogger
}

// Option customizes New.
type Option func(*options)

type options struct {
	console   io.Writer
	transport sentry.Transport
}

// WithConsole redirects console logging, mainly for tests.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithTelemetryTransport sends Sentry events through t instead of the network.
func WithTelemetryTransport(t sentry.Transport) Option {
	return func(o *options) { o.transport = t }
}

// New sets up logging, metrics and telemetry for settings.
func New(build *buildinfo.Info, settings *conf.Settings, opts ...Option) (*Context, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var logOpts []logger.Option
	if o.console != nil {
		logOpts = append(logOpts, logger.WithConsoleWriter(o.console))
	}
	central, err := logger.NewCentralLogger(&settings.Logging, logOpts...)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(central)

	c := &Context{
		Build:    build,
		RunID:    uuid.New(),
		Settings: settings,
		central:  central,
	}
	c.Log = central.Module("main").With(logger.String("run_id", c.RunID.String()))

	m, err := observability.NewMetrics()
	if err != nil {
		_ = central.Close()
		return nil, err
	}
	c.Metrics = m

	if err := telemetry.Init(settings.Sentry, telemetry.Options{
		Release:   build.Release(),
		Transport: o.transport,
		Logger:    central.Module("telemetry"),
	}); err != nil {
		c.Log.Warn("sentry telemetry unavailable", logger.Error(err))
	}

	c.Log.Debug("runtime initialized",
		logger.String("version", build.Version()),
		logger.String("backend", settings.Audio.Backend))
	return c, nil
}

// OpenBackend constructs the configured audio subsystem.
func (c *Context) OpenBackend() (backend.Subsystem, error) {
	a := &c.Settings.Audio
	return backend.New(backend.Config{
		Name:           a.Backend,
		MalgoBackends:  a.MalgoBackends,
		DeviceCacheTTL: a.DeviceCacheTTL,
		BufferSize:     a.BufferSize,
		QueueLimit:     a.QueueLimit,
		Logger:         c.central.Module("audiodev"),
	})
}

// DeviceOptions returns the audiodev options every device should be opened with.
func (c *Context) DeviceOptions() []audiodev.Option {
	return []audiodev.Option{
		audiodev.WithLogger(c.central.Module("audiodev")),
		audiodev.WithMetrics(c.Metrics.Device),
	}
}

// Module returns a logger for a command.
func (c *Context) Module(name string) logger.Logger {
	return c.central.Module(name)
}

// Serve runs fn alongside the metrics endpoint when one is enabled. The
// endpoint stops once fn returns; the first error from either is returned.
// fn's context carries the run id as trace id, and SIGHUP rotates log files
// while fn runs.
func (c *Context) Serve(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(logger.WithTraceID(ctx, c.RunID.String()))
	defer cancel()

	hup := make(chan os.Signal, 1)
	if len(rotateSignals) > 0 {
		signal.Notify(hup, rotateSignals...)
		defer signal.Stop(hup)
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.Settings.Metrics.Enabled {
		endpoint := observability.NewEndpoint(c.Settings.Metrics.Listen, c.Metrics)
		g.Go(func() error { return endpoint.Run(gctx) })
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := c.central.Rotate(); err != nil {
					c.Log.Warn("log rotation failed", logger.Error(err))
				}
			}
		}
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}

// Close flushes telemetry and closes log files.
func (c *Context) Close() error {
	telemetry.Shutdown()
	return c.central.Close()
}
