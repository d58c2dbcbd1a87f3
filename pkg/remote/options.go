package remote

import (
	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/metrics"
)

// SendFunc hands one outbound message to the transport.
type SendFunc func(msg any) error

type options struct {
	logger  zerolog.Logger
	metrics *metrics.RPC
}

// Option configures a Proxy or Endpoint.
type Option func(*options)

// WithLogger sets the logger used for warnings and continuation failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records traffic on m.
func WithMetrics(m *metrics.RPC) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
