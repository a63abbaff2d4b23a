// Package compute provides a local execution context and the lazily
// evaluated collections that run on it.
//
// A Context owns a worker pool size, a logger and metric instruments.
// Collections created from it describe work; nothing runs until an action
// such as ForEach is called. Closing the context releases it, after which
// every action fails with ErrClosed.
package compute

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/lguimbarda/parflow/flow/core"
	"github.com/lguimbarda/parflow/flow/observe"
	"github.com/lguimbarda/parflow/internal/logging"
)

// Namespace is the logging namespace of the compute engine.
const Namespace = "parflow"

const meterName = "github.com/lguimbarda/parflow/flow/compute"

// Runner is what collections need from their context.
type Runner interface {
	Parallelism() int
	BufferSize() int
	ID() string
	AppName() string
	Logger() zerolog.Logger
	Recorder(stage string) *observe.Recorder
	Err() error
	Close() error
}

// Option configures a Context.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	levels     *logging.Levels
	quietNS    string
	quietLevel zerolog.Level
	provider   metric.MeterProvider
}

// WithLogger sets the base logger. Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLevels shares a namespace level table with the caller.
func WithLevels(l *logging.Levels) Option {
	return func(o *options) { o.levels = l }
}

// WithQuietNamespace sets the minimum level applied to ns at startup.
// Defaults to warn for Namespace.
func WithQuietNamespace(ns string, level zerolog.Level) Option {
	return func(o *options) {
		o.quietNS = ns
		o.quietLevel = level
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.provider = mp }
}

// Context is a local compute context.
type Context struct {
	cfg         Config
	id          string
	parallelism int
	logger      zerolog.Logger
	counter     metric.Int64Counter

	mu      sync.Mutex
	closers []func() error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a context from cfg. Any failure is returned as an *InitError.
func New(ctx context.Context, cfg Config, opts ...Option) (*Context, error) {
	o := options{
		logger:     zerolog.Nop(),
		quietNS:    Namespace,
		quietLevel: zerolog.WarnLevel,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.levels == nil {
		o.levels = logging.NewLevels()
	}
	if o.provider == nil {
		o.provider = otel.GetMeterProvider()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{AppName: cfg.AppName, Err: pkgerrors.Wrap(err, "invalid config")}
	}
	n, _ := ParseMaster(cfg.Master)
	if cfg.BufferSize == 0 {
		cfg.BufferSize = core.DefaultBufferSize
	}
	if err := ctx.Err(); err != nil {
		return nil, &InitError{AppName: cfg.AppName, Err: pkgerrors.WithStack(err)}
	}

	if o.quietNS != "" {
		o.levels.Set(o.quietNS, o.quietLevel)
	}

	counter, err := observe.NewElementCounter(o.provider.Meter(meterName))
	if err != nil {
		return nil, &InitError{AppName: cfg.AppName, Err: pkgerrors.Wrap(err, "create element counter")}
	}

	c := &Context{
		cfg:         cfg,
		id:          uuid.NewString(),
		parallelism: n,
		counter:     counter,
	}
	c.logger = o.levels.Named(o.logger, Namespace+".compute").With().
		Str("app", cfg.AppName).
		Str("app_id", c.id).
		Logger()

	c.logger.Info().
		Str("master", cfg.Master).
		Int("parallelism", n).
		Msg("compute context started")
	return c, nil
}

// Parallelism is the number of workers actions run on.
func (c *Context) Parallelism() int {
	return c.parallelism
}

// BufferSize is the channel buffer size between stages.
func (c *Context) BufferSize() int {
	return c.cfg.BufferSize
}

// ID is the unique application id of this context.
func (c *Context) ID() string {
	return c.id
}

// AppName is the configured application name.
func (c *Context) AppName() string {
	return c.cfg.AppName
}

// Logger returns the context logger.
func (c *Context) Logger() zerolog.Logger {
	return c.logger
}

// Recorder returns an element recorder for stage.
func (c *Context) Recorder(stage string) *observe.Recorder {
	return observe.NewRecorder(c.counter, stage)
}

// Err returns ErrClosed once the context has been closed.
func (c *Context) Err() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// OnClose registers fn to run when the context is closed. Functions run in
// reverse registration order.
func (c *Context) OnClose(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, fn)
}

// Close releases the context. Only the first call has an effect; later
// calls return the same error.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		closers := c.closers
		c.closers = nil
		c.mu.Unlock()

		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)

		c.logger.Info().Err(c.closeErr).Msg("compute context closed")
	})
	return c.closeErr
}
