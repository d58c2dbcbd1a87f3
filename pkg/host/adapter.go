// Package host wires one session to the channel carrying the map client. It
// owns the session lifecycle and serialises every inbound frame and host-side
// call on a single control flow.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/jsonrpc"
	"github.com/rexliu/geonb/pkg/layers"
	"github.com/rexliu/geonb/pkg/metrics"
	"github.com/rexliu/geonb/pkg/protocol"
	"github.com/rexliu/geonb/pkg/session"
)

var (
	// ErrNoSession indicates the session was shut down without restart.
	ErrNoSession = errors.New("host: no active session")
	// ErrNoChannel indicates an outbound message with no client connected.
	ErrNoChannel = errors.New("host: no channel open")
)

// Names of the layers created on the first channel open.
const (
	BaseLayerName       = "osm_base"
	AnnotationLayerName = "annotation"
)

// Channel carries encoded frames to the client.
type Channel interface {
	Send(frame []byte) error
}

// VisServer is the tile server as seen by the host: session namespaces plus
// layer ingest.
type VisServer interface {
	session.VisServer
	Start(ctx context.Context, sessionID string) error
	Shutdown(ctx context.Context, sessionID string) error
}

// Basemap describes the base layer added on bootstrap.
type Basemap struct {
	URL         string
	Attribution string
}

// Adapter is the transport side of a host process.
type Adapter struct {
	mu        sync.Mutex
	ch        Channel
	sess      *session.Session
	peer      []protocol.Procedure
	bootstrap bool

	basemap Basemap
	vis     VisServer
	sink    session.StateSink
	metrics *metrics.RPC
	logger  zerolog.Logger
	newID   func() string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBasemap sets the tile layer every new session starts with.
func WithBasemap(b Basemap) Option {
	return func(a *Adapter) { a.basemap = b }
}

// WithVisServer sets where raster data is published.
func WithVisServer(v VisServer) Option {
	return func(a *Adapter) { a.vis = v }
}

// WithStateSink records map state after each acknowledged change.
func WithStateSink(sink session.StateSink) Option {
	return func(a *Adapter) { a.sink = sink }
}

// WithMetrics counts calls and dispatches of every session.
func WithMetrics(m *metrics.RPC) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithLogger sets the adapter and session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithIDFunc overrides session id generation.
func WithIDFunc(fn func() string) Option {
	return func(a *Adapter) { a.newID = fn }
}

// New returns an adapter with the bootstrap flag armed.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		bootstrap: true,
		logger:    zerolog.Nop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start creates the first session and opens its namespace on the tile server.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, err := a.newSession()
	if err != nil {
		return err
	}
	a.sess = sess
	a.startVis(ctx, sess.ID())
	return nil
}

// HandleFrame decodes one outer frame and routes it by type.
func (a *Adapter) HandleFrame(ctx context.Context, ch Channel, raw []byte) error {
	var frame jsonrpc.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		a.logger.Error().Err(err).Msg("invalid channel frame")
		return fmt.Errorf("decode frame: %w", err)
	}
	switch frame.Type {
	case jsonrpc.FrameOpen:
		return a.OnOpen(ctx, ch, frame.Data)
	case jsonrpc.FrameMsg:
		a.OnMessage(frame.Data)
		return nil
	case jsonrpc.FrameClose:
		a.OnClose()
		return nil
	default:
		a.logger.Warn().Str("type", string(frame.Type)).Msg("unknown frame type")
		return nil
	}
}

// OnOpen binds the client's protocol, pushes this side's protocol and, on the
// first open of the process, adds the base map and annotation layers.
func (a *Adapter) OnOpen(ctx context.Context, ch Channel, opening json.RawMessage) error {
	procs, err := protocol.Parse(opening)
	if err != nil {
		a.logger.Error().Err(err).Msg("client protocol rejected")
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return ErrNoSession
	}
	a.ch = ch
	a.peer = procs
	if err := a.sess.Bind(procs); err != nil {
		return err
	}
	if err := a.send(jsonrpc.Push{Method: jsonrpc.MethodSetProtocol, Data: a.sess.Protocol()}); err != nil {
		return fmt.Errorf("push protocol: %w", err)
	}
	a.logger.Info().Str("session", a.sess.ID()).Int("procedures", len(procs)).Msg("channel open")

	if a.bootstrap {
		a.bootstrapLayers(ctx)
		a.bootstrap = false
	}
	return nil
}

func (a *Adapter) bootstrapLayers(ctx context.Context) {
	_, err := a.sess.AddLayer(ctx, nil, BaseLayerName, a.basemap.URL, layers.Options{
		LayerType:   "osm",
		System:      true,
		Attribution: a.basemap.Attribution,
	})
	if err != nil {
		a.logger.Error().Err(err).Str("layer", BaseLayerName).Msg("bootstrap layer failed")
	}
	_, err = a.sess.AddLayer(ctx, nil, AnnotationLayerName, "", layers.Options{
		LayerType: layers.LayerTypeAnnotation,
		System:    true,
		ExposeAs:  layers.LayerTypeAnnotation,
	})
	if err != nil {
		a.logger.Error().Err(err).Str("layer", AnnotationLayerName).Msg("bootstrap layer failed")
	}
}

// OnMessage passes one inner message to the session. Protocol errors for a
// request with an id are reported back to the client; everything else is
// logged. It never fails.
func (a *Adapter) OnMessage(raw json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		a.logger.Warn().Msg("message dropped: no active session")
		return
	}
	err := a.sess.Receive(raw)
	if err == nil {
		return
	}
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		a.logger.Error().Err(err).Msg("Error processing msg")
		return
	}
	a.logger.Error().Int("code", int(rpcErr.Code)).Str("error", rpcErr.Message).Msg("JSONRPCError")
	id, ok := requestID(raw)
	if !ok {
		return
	}
	if err := a.sess.Reply(id, rpcErr); err != nil {
		a.logger.Error().Err(err).Stringer("id", id).Msg("error reply failed")
	}
}

// OnClose forgets the channel. Unanswered calls stay pending.
func (a *Adapter) OnClose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ch = nil
	a.logger.Info().Msg("channel closed")
}

// OnShutdown discards the session and its tile server namespace. On restart
// a fresh session is bound to the same channel and client protocol, and the
// next open bootstraps the default layers again.
func (a *Adapter) OnShutdown(ctx context.Context, restart bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess != nil {
		a.stopVis(ctx, a.sess.ID())
		a.sess = nil
	}
	if !restart {
		return nil
	}
	sess, err := a.newSession()
	if err != nil {
		return err
	}
	if a.peer != nil {
		if err := sess.Bind(a.peer); err != nil {
			return err
		}
	}
	a.sess = sess
	a.bootstrap = true
	a.startVis(ctx, sess.ID())
	a.logger.Info().Str("session", sess.ID()).Msg("session restarted")
	return nil
}

// Do runs fn on the adapter's control flow with the active session.
func (a *Adapter) Do(fn func(*session.Session) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return ErrNoSession
	}
	return fn(a.sess)
}

// Connected reports whether a channel is open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch != nil
}

func (a *Adapter) newSession() (*session.Session, error) {
	opts := []session.Option{
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
	}
	if a.vis != nil {
		opts = append(opts, session.WithVisServer(a.vis))
	}
	if a.sink != nil {
		opts = append(opts, session.WithStateSink(a.sink))
	}
	return session.New(a.newID(), a.send, opts...)
}

// send is the session's transport. Callers hold a.mu: it runs from a frame
// handler, from OnOpen or from Do.
func (a *Adapter) send(msg any) error {
	if a.ch == nil {
		return ErrNoChannel
	}
	inner, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	frame, err := json.Marshal(jsonrpc.Frame{Type: jsonrpc.FrameMsg, Data: inner})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return a.ch.Send(frame)
}

func (a *Adapter) startVis(ctx context.Context, id string) {
	if a.vis == nil {
		return
	}
	if err := a.vis.Start(ctx, id); err != nil {
		a.logger.Error().Err(err).Str("session", id).Msg("vis server start failed")
	}
}

func (a *Adapter) stopVis(ctx context.Context, id string) {
	if a.vis == nil {
		return
	}
	if err := a.vis.Shutdown(ctx, id); err != nil {
		a.logger.Error().Err(err).Str("session", id).Msg("vis server shutdown failed")
	}
}

// requestID reports the id to answer an error with. Responses are never
// answered.
func requestID(raw []byte) (jsonrpc.ID, bool) {
	env, err := jsonrpc.Decode(raw)
	if err != nil {
		return jsonrpc.ID{}, false
	}
	return env.ReplyID()
}
