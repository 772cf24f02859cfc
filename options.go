package labelkit

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/codec"
	"github.com/hupe1980/labelkit/engine"
	"github.com/hupe1980/labelkit/resource"
)

const (
	// DefaultTop is the default number of markers kept per label pair.
	DefaultTop = 20

	// DefaultQuantile is the default score quantile.
	DefaultQuantile = 0.8
)

type options struct {
	engine           engine.Engine
	registry         *buffer.Registry
	codec            codec.Codec
	resources        resource.Config
	metricsCollector MetricsCollector
	logger           *Logger
	strict           bool
	debug            bool
}

// Option configures a Session.
type Option func(*options)

// WithEngine sets the compute engine. The session closes it on Close.
//
// An in-process engine must read memory through the session's registry:
//
//	reg := buffer.NewRegistry()
//	s := labelkit.New(labelkit.WithRegistry(reg), labelkit.WithEngine(native.New(reg)))
func WithEngine(e engine.Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithRegistry sets the buffer registry. A registry passed here is not closed
// by the session.
func WithRegistry(reg *buffer.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithCodec configures the codec used for bundle manifests.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithResourceConfig sets memory, worker and IO limits for the default
// registry and engine.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resources = cfg
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &labelkit.BasicMetricsCollector{}
//	s := labelkit.New(labelkit.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
//	fmt.Printf("Cells: %d, Avg latency: %dns\n", stats.ClassifiedCells, stats.ClassifyAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithStrictFeatures rejects primary feature lists with repeated identifiers
// instead of resolving repeats to their first column.
func WithStrictFeatures() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithDebug makes the default registry panic on double releases.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

type buildOptions struct {
	top int
}

// BuildOption configures a reference build.
type BuildOption func(*buildOptions)

// WithTop sets how many markers are kept per ordered label pair.
func WithTop(top int) BuildOption {
	return func(o *buildOptions) {
		o.top = top
	}
}

func applyBuildOptions(optFns []BuildOption) (buildOptions, error) {
	o := buildOptions{top: DefaultTop}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.top <= 0 {
		return o, fmt.Errorf("%w: top must be positive, got %d", ErrInvalidArgument, o.top)
	}
	return o, nil
}

type classifyOptions struct {
	quantile float64
	out      *buffer.Buffer
}

// ClassifyOption configures classification and label integration.
type ClassifyOption func(*classifyOptions)

// WithQuantile sets the score quantile, in (0, 1].
func WithQuantile(q float64) ClassifyOption {
	return func(o *classifyOptions) {
		o.quantile = q
	}
}

// WithOutputBuffer makes the call write its results into buf, an Int32
// buffer with one element per cell. The returned slice is a view over buf,
// which stays owned by the caller.
func WithOutputBuffer(buf *buffer.Buffer) ClassifyOption {
	return func(o *classifyOptions) {
		o.out = buf
	}
}

func applyClassifyOptions(optFns []ClassifyOption) (classifyOptions, error) {
	o := classifyOptions{quantile: DefaultQuantile}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if !(o.quantile > 0 && o.quantile <= 1) {
		return o, fmt.Errorf("%w: quantile must be in (0, 1], got %v", ErrInvalidArgument, o.quantile)
	}
	return o, nil
}

// checkOutput validates a caller-supplied output buffer for n cells.
func checkOutput(call string, out *buffer.Buffer, n int) error {
	if out == nil {
		return nil
	}
	if out.Released() {
		return fmt.Errorf("%w: output buffer released", ErrInvalidHandle)
	}
	if out.Type() != buffer.Int32 {
		return fmt.Errorf("%w: output buffer must be %s, got %s", ErrInvalidArgument, buffer.Int32, out.Type())
	}
	if out.Len() != n {
		return mismatch(call, "output", n, out.Len())
	}
	return nil
}
