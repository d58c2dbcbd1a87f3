// Package peer implements the map client's half of the channel without a
// browser: it keeps a viewport and a layer list, answers the host's calls and
// can call the host back. It backs the attach command and end-to-end tests.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/jsonrpc"
	"github.com/rexliu/geonb/pkg/protocol"
	"github.com/rexliu/geonb/pkg/remote"
	"github.com/rexliu/geonb/pkg/session"
)

var (
	// ErrLayerExists indicates an add_layer for a name already shown.
	ErrLayerExists = errors.New("peer: layer exists")
	// ErrNoSuchLayer indicates a remove_layer for a name not shown.
	ErrNoSuchLayer = errors.New("peer: no such layer")
)

// SendFunc writes one encoded frame to the host.
type SendFunc func(frame []byte) error

// Peer is a headless map client.
type Peer struct {
	mu       sync.Mutex
	endpoint *remote.Endpoint
	send     SendFunc
	logger   zerolog.Logger

	center  []float64
	layers  []string
	notes   int
	readyMu sync.Once
	ready   chan struct{}
}

// New builds a peer writing frames through send.
func New(send SendFunc, logger zerolog.Logger) (*Peer, error) {
	p := &Peer{send: send, logger: logger, ready: make(chan struct{})}
	reg := protocol.Build(designated, declarations())
	endpoint, err := remote.NewEndpoint(reg, p.handlers(), p.sendMsg, remote.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	p.endpoint = endpoint
	return p, nil
}

var designated = []string{
	session.RemoteSetCenter,
	session.RemoteAddLayer,
	session.RemoteRemoveLayer,
	session.RemoteAddAnnotation,
}

func declarations() []protocol.Procedure {
	return []protocol.Procedure{
		protocol.Declare(session.RemoteSetCenter, protocol.Required("x", "y", "z")),
		protocol.Declare(session.RemoteAddLayer, protocol.Required("layer_name", "vis_url", "vis_options", "query_params")),
		protocol.Declare(session.RemoteRemoveLayer, protocol.Required("layer_name")),
		protocol.Declare(session.RemoteAddAnnotation, protocol.Required("ann_type", "coords", "meta")),
	}
}

// Protocol returns the procedures the peer exposes.
func (p *Peer) Protocol() []protocol.Procedure { return p.endpoint.Protocol() }

// Open announces the peer's protocol to the host.
func (p *Peer) Open() error {
	data, err := json.Marshal(p.Protocol())
	if err != nil {
		return err
	}
	return p.writeFrame(jsonrpc.Frame{Type: jsonrpc.FrameOpen, Data: data})
}

// Close tells the host the channel is going away.
func (p *Peer) Close() error {
	return p.writeFrame(jsonrpc.Frame{Type: jsonrpc.FrameClose})
}

// Ready is closed once the host has pushed its protocol.
func (p *Peer) Ready() <-chan struct{} { return p.ready }

// HandleFrame processes one frame from the host.
func (p *Peer) HandleFrame(raw []byte) error {
	var frame jsonrpc.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if frame.Type != jsonrpc.FrameMsg {
		return nil
	}
	env, err := jsonrpc.Decode(frame.Data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if push, ok := asProtocolPush(env); ok {
		procs, err := protocol.Parse(push)
		if err != nil {
			return err
		}
		if err := p.endpoint.Bind(procs); err != nil {
			return err
		}
		p.readyMu.Do(func() { close(p.ready) })
		return nil
	}
	err = p.endpoint.Receive(frame.Data)
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		if id, ok := env.ReplyID(); ok {
			return p.endpoint.Reply(id, rpcErr)
		}
	}
	return err
}

func asProtocolPush(env jsonrpc.Envelope) (json.RawMessage, bool) {
	if _, hasID := env["id"]; hasID {
		return nil, false
	}
	var method string
	if err := json.Unmarshal(env["method"], &method); err != nil || method != jsonrpc.MethodSetProtocol {
		return nil, false
	}
	return env["data"], true
}

// Call invokes a host procedure and waits for its result. It must not be
// called from the goroutine that feeds HandleFrame.
func (p *Peer) Call(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	p.mu.Lock()
	d, err := p.endpoint.Invoke(name, args, nil)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.Wait(ctx)
}

// MapState fetches the host's map state.
func (p *Peer) MapState(ctx context.Context) (session.MapState, error) {
	raw, err := p.Call(ctx, session.ProcGetMapState)
	if err != nil {
		return session.MapState{}, err
	}
	var st session.MapState
	if err := json.Unmarshal(raw, &st); err != nil {
		return session.MapState{}, fmt.Errorf("decode map state: %w", err)
	}
	return st, nil
}

// Draw reports an annotation drawn on the client.
func (p *Peer) Draw(ctx context.Context, annType string, coords any, meta map[string]any) error {
	_, err := p.Call(ctx, session.ProcAddAnnotationFromClient, annType, coords, meta)
	return err
}

// Layers returns the names of the layers shown, in order.
func (p *Peer) Layers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.layers...)
}

// Center returns the viewport.
func (p *Peer) Center() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.center...)
}

func (p *Peer) sendMsg(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writeFrame(jsonrpc.Frame{Type: jsonrpc.FrameMsg, Data: data})
}

func (p *Peer) writeFrame(frame jsonrpc.Frame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return p.send(raw)
}
