package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/layers"
	"github.com/rexliu/geonb/pkg/metrics"
)

// VisServer publishes layer data that has no visualization URL yet.
type VisServer interface {
	Ingest(ctx context.Context, session, name string, data layers.Data) (string, error)
}

// StateSink receives the map state after every acknowledged mutation.
type StateSink interface {
	Record(sessionID string, state MapState)
}

type options struct {
	logger  zerolog.Logger
	metrics *metrics.RPC
	vis     VisServer
	sink    StateSink
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics counts the session's calls and dispatches.
func WithMetrics(m *metrics.RPC) Option {
	return func(o *options) { o.metrics = m }
}

// WithVisServer sets where raster layer data is published.
func WithVisServer(vis VisServer) Option {
	return func(o *options) { o.vis = vis }
}

// WithStateSink records map state after each acknowledged change.
func WithStateSink(sink StateSink) Option {
	return func(o *options) { o.sink = sink }
}
