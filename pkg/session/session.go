// Package session holds the map state of one host session and acts as both
// RPC server and RPC client on the channel to the map client. Local state is
// only changed once the client has acknowledged the matching remote action.
//
// A Session is not safe for concurrent use. Callers serialise Receive and the
// outbound operations on a single control flow; continuations run inside it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/jsonrpc"
	"github.com/rexliu/geonb/pkg/layers"
	"github.com/rexliu/geonb/pkg/protocol"
	"github.com/rexliu/geonb/pkg/remote"
)

var (
	// ErrNoVisServer indicates data that needs ingest with no server configured.
	ErrNoVisServer = errors.New("session: no visualization server configured")
	// ErrLayerRef indicates a remove_layer argument that names no layer.
	ErrLayerRef = errors.New("session: layer reference must be a name or a named layer")
	// ErrBadCenter indicates a set_center result that is not [x, y, z].
	ErrBadCenter = errors.New("session: malformed center")
)

// Named is anything that carries a layer name.
type Named interface {
	LayerName() string
}

// MapState is the serialized session state returned by get_map_state.
type MapState struct {
	Center []float64      `json:"center,omitempty"`
	Layers []layers.State `json:"layers"`
}

// Session is the controller for one channel.
type Session struct {
	id       string
	endpoint *remote.Endpoint
	center   []float64
	layers   *layers.Collection
	opts     options
	logger   zerolog.Logger
}

// New builds a session that writes outbound messages through send.
func New(id string, send remote.SendFunc, opts ...Option) (*Session, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		id:     id,
		layers: layers.NewCollection(),
		opts:   o,
		logger: o.logger.With().Str("session", id).Logger(),
	}
	reg := protocol.Build(designated, declarations())
	endpoint, err := remote.NewEndpoint(reg, s.handlers(), send,
		remote.WithLogger(s.logger), remote.WithMetrics(o.metrics))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	s.endpoint = endpoint
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Protocol returns the procedures this session exposes. The same slice is
// returned on every call.
func (s *Session) Protocol() []protocol.Procedure { return s.endpoint.Protocol() }

// Bind installs a proxy for the client's procedures.
func (s *Session) Bind(procs []protocol.Procedure) error { return s.endpoint.Bind(procs) }

// Bound reports whether the client's protocol is known.
func (s *Session) Bound() bool { return s.endpoint.Proxy() != nil }

// Receive routes one inbound message.
func (s *Session) Receive(raw []byte) error { return s.endpoint.Receive(raw) }

// DispatchRequest runs an inbound request.
func (s *Session) DispatchRequest(req jsonrpc.Request) error { return s.endpoint.DispatchRequest(req) }

// DispatchResponse settles an outbound call.
func (s *Session) DispatchResponse(resp jsonrpc.Response) { s.endpoint.DispatchResponse(resp) }

// Reply sends an error response for request id.
func (s *Session) Reply(id jsonrpc.ID, rpcErr *jsonrpc.Error) error { return s.endpoint.Reply(id, rpcErr) }

// Pending returns the number of unanswered outbound calls.
func (s *Session) Pending() int {
	if p := s.endpoint.Proxy(); p != nil {
		return p.Pending()
	}
	return 0
}

// Center returns the acknowledged viewport.
func (s *Session) Center() ([]float64, bool) {
	if s.center == nil {
		return nil, false
	}
	return append([]float64(nil), s.center...), true
}

// Layers returns the acknowledged layer collection.
func (s *Session) Layers() *layers.Collection { return s.layers }

// MapState serializes the session. The center is only present once set.
func (s *Session) MapState() MapState {
	st := MapState{Layers: s.layers.Serialize()}
	if s.center != nil {
		st.Center = append([]float64(nil), s.center...)
	}
	return st
}

// SetCenter asks the client to move the map and stores the viewport it
// reports back.
func (s *Session) SetCenter(x, y, z float64) (*remote.Deferred, error) {
	d, err := s.endpoint.Invoke(RemoteSetCenter, []any{x, y, z}, nil)
	if err != nil {
		return nil, err
	}
	return d.Then(func(result json.RawMessage) error {
		var center []float64
		if err := json.Unmarshal(result, &center); err != nil || len(center) != 3 {
			return fmt.Errorf("%w: %s", ErrBadCenter, result)
		}
		s.center = center
		s.record()
		return nil
	}, s.rpcError, s.callbackError), nil
}

// AddLayer resolves a layer for data, publishes raster data that has no
// visualization URL and asks the client to add it. The layer joins the
// collection once the client acknowledges.
func (s *Session) AddLayer(ctx context.Context, data layers.Data, name, visURL string, opts layers.Options) (*remote.Deferred, error) {
	layer, err := s.layers.Prepare(data, name, visURL, opts)
	if err != nil {
		return nil, err
	}
	if layer.NeedsIngest() {
		if s.opts.vis == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoVisServer, layer.Name)
		}
		resolved, err := s.opts.vis.Ingest(ctx, s.id, layer.Name, layer.Data)
		if err != nil {
			return nil, err
		}
		layer.VisURL = resolved
	}

	var wireURL any
	if layer.VisURL != "" {
		wireURL = layer.VisURL
	}
	visOptions := layer.VisOptions
	if visOptions == nil {
		visOptions = map[string]any{}
	}
	queryParams := layer.QueryParams
	if queryParams == nil {
		queryParams = map[string]any{}
	}
	d, err := s.endpoint.Invoke(RemoteAddLayer, []any{layer.Name, wireURL, visOptions, queryParams}, nil)
	if err != nil {
		return nil, err
	}
	return d.Then(func(result json.RawMessage) error {
		var resolved string
		if json.Unmarshal(result, &resolved) == nil && resolved != "" && layer.Kind != layers.KindAnnotation {
			layer.VisURL = resolved
		}
		if err := s.layers.Append(layer); err != nil {
			return err
		}
		s.record()
		return nil
	}, s.rpcError, s.callbackError), nil
}

// RemoveLayer accepts a layer name or any Named value.
func (s *Session) RemoveLayer(ref any) (*remote.Deferred, error) {
	var name string
	switch v := ref.(type) {
	case string:
		name = v
	case Named:
		name = v.LayerName()
	default:
		return nil, fmt.Errorf("%w: %T", ErrLayerRef, ref)
	}
	d, err := s.endpoint.Invoke(RemoteRemoveLayer, []any{name}, nil)
	if err != nil {
		return nil, err
	}
	return d.Then(func(json.RawMessage) error {
		if err := s.layers.Remove(name); err != nil {
			return err
		}
		s.record()
		return nil
	}, s.rpcError, s.callbackError), nil
}

// AddAnnotation asks the client to draw an annotation. The client's returned
// metadata is merged into meta before the annotation is stored.
func (s *Session) AddAnnotation(annType string, coords any, meta map[string]any) (*remote.Deferred, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	rawCoords, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("encode coordinates: %w", err)
	}
	if _, err := layers.NewAnnotation(annType, rawCoords, meta); err != nil {
		return nil, err
	}
	d, err := s.endpoint.Invoke(RemoteAddAnnotation, []any{annType, []any{coords}, meta}, nil)
	if err != nil {
		return nil, err
	}
	return d.Then(func(result json.RawMessage) error {
		var returned map[string]any
		if len(result) > 0 {
			if err := json.Unmarshal(result, &returned); err != nil {
				return fmt.Errorf("decode annotation meta: %w", err)
			}
		}
		for k, v := range returned {
			meta[k] = v
		}
		_, err := s.AddAnnotationFromClient(annType, rawCoords, meta)
		return err
	}, s.rpcError, s.callbackError), nil
}

// AddAnnotationFromClient stores an annotation on the annotation layer.
// Storing the same meta id twice keeps one annotation.
func (s *Session) AddAnnotationFromClient(annType string, coords json.RawMessage, meta map[string]any) (bool, error) {
	ann, err := layers.NewAnnotation(annType, coords, meta)
	if err != nil {
		return false, err
	}
	if err := s.layers.AddAnnotation(ann); err != nil {
		return false, err
	}
	s.record()
	return true, nil
}

func (s *Session) record() {
	if s.opts.sink != nil {
		s.opts.sink.Record(s.id, s.MapState())
	}
}

func (s *Session) rpcError(rej *jsonrpc.Error) error {
	s.logger.Error().Int("code", int(rej.Code)).Str("error", rej.Message).Msg("JSONRPCError")
	return nil
}

func (s *Session) callbackError(err error) {
	s.logger.Error().Err(err).Msg("callback error")
}
