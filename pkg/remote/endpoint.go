package remote

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rexliu/geonb/pkg/jsonrpc"
	"github.com/rexliu/geonb/pkg/protocol"
)

// ErrNotBound is returned when calling out before the peer's protocol is known.
var ErrNotBound = errors.New("remote: peer protocol not bound")

// Handler implements one exposed procedure. args holds one value per required
// key in declared order; kwargs holds the optional keys that were sent.
type Handler func(args []json.RawMessage, kwargs map[string]json.RawMessage) (any, error)

// Endpoint is one side of a channel: it serves the local registry and calls
// the peer through a Proxy once the peer's protocol is bound.
type Endpoint struct {
	registry *protocol.Registry
	handlers map[string]Handler
	send     SendFunc
	proxy    *Proxy
	opts     []Option
	o        options
}

// NewEndpoint checks that every procedure in reg has a handler.
func NewEndpoint(reg *protocol.Registry, handlers map[string]Handler, send SendFunc, opts ...Option) (*Endpoint, error) {
	if send == nil {
		return nil, errors.New("remote: nil send func")
	}
	err := reg.Validate(func(name string) bool {
		_, ok := handlers[name]
		return ok
	})
	if err != nil {
		return nil, err
	}
	return &Endpoint{
		registry: reg,
		handlers: handlers,
		send:     send,
		opts:     opts,
		o:        buildOptions(opts),
	}, nil
}

// Protocol returns the local descriptor list.
func (e *Endpoint) Protocol() []protocol.Procedure {
	return e.registry.List()
}

// Bind replaces the proxy with one built from the peer's descriptors. Calls
// still pending on a previous proxy stay pending.
func (e *Endpoint) Bind(procs []protocol.Procedure) error {
	proxy, err := NewProxy(e.send, procs, e.opts...)
	if err != nil {
		return err
	}
	e.proxy = proxy
	return nil
}

// Proxy returns the bound proxy, or nil before Bind.
func (e *Endpoint) Proxy() *Proxy {
	return e.proxy
}

// Invoke calls out through the bound proxy.
func (e *Endpoint) Invoke(name string, args []any, kwargs map[string]any) (*Deferred, error) {
	if e.proxy == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	return e.proxy.Invoke(name, args, kwargs)
}

// Receive classifies one inbound message and routes it. Protocol failures are
// returned as *jsonrpc.Error for the transport to report.
func (e *Endpoint) Receive(raw []byte) error {
	env, err := jsonrpc.Decode(raw)
	if err != nil {
		return e.count(err)
	}
	switch jsonrpc.Classify(env) {
	case jsonrpc.KindRequest:
		req, err := env.Request()
		if err != nil {
			return e.count(err)
		}
		return e.DispatchRequest(req)
	case jsonrpc.KindResponse:
		e.DispatchResponse(env.Response())
		return nil
	default:
		return e.count(jsonrpc.ParseError("could not parse msg: %s", raw))
	}
}

// DispatchRequest runs a local procedure for an inbound request and sends
// the result back. Requests without an id get no reply.
func (e *Endpoint) DispatchRequest(req jsonrpc.Request) error {
	proc, ok := e.registry.Lookup(req.Method)
	if !ok {
		return e.count(jsonrpc.MethodNotFound("Method not allowed: %s", req.Method))
	}
	args, kwargs, err := proc.Reconcile(req.Params)
	if err != nil {
		return e.count(err)
	}
	e.o.metrics.Dispatch(req.Method)
	result, err := e.call(e.handlers[req.Method], args, kwargs)
	if err != nil {
		return e.count(jsonrpc.AsError(err))
	}
	if req.ID.IsZero() {
		return nil
	}
	resp, err := jsonrpc.BuildResult(result, nil, req.ID)
	if err != nil {
		return e.count(err)
	}
	if err := e.send(resp); err != nil {
		return fmt.Errorf("send result for %s: %w", req.Method, err)
	}
	return nil
}

// DispatchResponse settles the matching outbound call.
func (e *Endpoint) DispatchResponse(resp jsonrpc.Response) {
	if e.proxy == nil {
		e.o.logger.Warn().Stringer("id", resp.ID).Msg("response before peer protocol was bound")
		return
	}
	e.proxy.Resolve(resp)
}

// Reply reports a protocol error for request id back to the peer.
func (e *Endpoint) Reply(id jsonrpc.ID, rpcErr *jsonrpc.Error) error {
	resp, err := jsonrpc.BuildResult(nil, rpcErr, id)
	if err != nil {
		return err
	}
	return e.send(resp)
}

func (e *Endpoint) call(h Handler, args []json.RawMessage, kwargs map[string]json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return h(args, kwargs)
}

func (e *Endpoint) count(err error) error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		e.o.metrics.Error(int(rpcErr.Code))
	}
	return err
}

// Arg decodes one handler argument, reporting failures as InvalidParams.
func Arg(raw json.RawMessage, key string, out any) error {
	if len(raw) == 0 {
		return jsonrpc.InvalidParams("missing value for %s", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return jsonrpc.InvalidParams("invalid value for %s: %v", key, err)
	}
	return nil
}
