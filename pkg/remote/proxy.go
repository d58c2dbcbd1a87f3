package remote

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rexliu/geonb/pkg/jsonrpc"
	"github.com/rexliu/geonb/pkg/protocol"
)

var (
	// ErrUnknownProcedure indicates a call to a name the peer does not expose.
	ErrUnknownProcedure = errors.New("remote: unknown procedure")
	// ErrArity indicates a call whose arguments do not fit the descriptor.
	ErrArity = errors.New("remote: arity mismatch")
)

// Proxy calls procedures exposed by the remote peer.
type Proxy struct {
	send    SendFunc
	procs   map[string]protocol.Procedure
	pending *PendingTable
	opts    options
}

// NewProxy validates every descriptor and indexes one stub per procedure.
func NewProxy(send SendFunc, procs []protocol.Procedure, opts ...Option) (*Proxy, error) {
	if send == nil {
		return nil, errors.New("remote: nil send func")
	}
	p := &Proxy{
		send:    send,
		procs:   make(map[string]protocol.Procedure, len(procs)),
		pending: NewPendingTable(),
		opts:    buildOptions(opts),
	}
	for _, proc := range procs {
		if err := proc.Validate(); err != nil {
			return nil, err
		}
		p.procs[proc.Name] = proc
	}
	return p, nil
}

// Procedures returns the callable names, sorted.
func (p *Proxy) Procedures() []string {
	names := make([]string, 0, len(p.procs))
	for name := range p.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the peer exposes name.
func (p *Proxy) Has(name string) bool {
	_, ok := p.procs[name]
	return ok
}

// Pending returns the number of unsettled calls.
func (p *Proxy) Pending() int {
	return p.pending.Len()
}

// Call invokes name with positional arguments only.
func (p *Proxy) Call(name string, args ...any) (*Deferred, error) {
	return p.Invoke(name, args, nil)
}

// Invoke calls name on the peer. Positional args fill the required keys and
// then the optional keys in declared order; kwargs fill keys by name. The
// returned Deferred is registered before the request is sent, so a reply
// delivered during send still finds it.
func (p *Proxy) Invoke(name string, args []any, kwargs map[string]any) (*Deferred, error) {
	proc, ok := p.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, name)
	}
	params, err := buildParams(proc, args, kwargs)
	if err != nil {
		return nil, err
	}

	req := jsonrpc.BuildRequest(name, params)
	d := newDeferred(req.ID, name, p.failureLogger(name, req.ID))
	p.pending.Insert(d)
	p.opts.metrics.Call(name)
	if err := p.send(req); err != nil {
		p.pending.Take(req.ID)
		p.opts.metrics.Abandoned()
		return nil, fmt.Errorf("send %s: %w", name, err)
	}
	return d, nil
}

// Resolve settles the pending call matching resp. Responses for unknown ids
// are logged and dropped.
func (p *Proxy) Resolve(resp jsonrpc.Response) {
	d, ok := p.pending.Take(resp.ID)
	if !ok {
		p.opts.logger.Warn().Stringer("id", resp.ID).Msg("could not find deferred for response")
		p.opts.metrics.Settled("unknown")
		return
	}
	var err error
	if resp.Error != nil {
		err = d.Reject(resp.Error)
		p.opts.metrics.Settled("rejected")
	} else {
		err = d.Fulfill(resp.Result)
		p.opts.metrics.Settled("fulfilled")
	}
	if err != nil {
		p.opts.logger.Error().Err(err).Stringer("id", resp.ID).Msg("settle failed")
	}
}

func (p *Proxy) failureLogger(method string, id jsonrpc.ID) FailureFunc {
	logger := p.opts.logger
	return func(err error) {
		logger.Error().Err(err).Str("method", method).Stringer("id", id).Msg("callback error")
	}
}

func buildParams(proc protocol.Procedure, args []any, kwargs map[string]any) ([]jsonrpc.Param, error) {
	required, optional := proc.Arity()
	total := len(args) + len(kwargs)
	if total < required || total > required+optional {
		return nil, fmt.Errorf("%w: protocol %s has an arity of %d (+%d optional), called with %d",
			ErrArity, proc.Name, required, optional, total)
	}

	keys := make([]string, 0, required+optional)
	known := make(map[string]bool, required+optional)
	for _, param := range proc.Required {
		keys = append(keys, param.Key)
		known[param.Key] = true
	}
	for _, param := range proc.Optional {
		keys = append(keys, param.Key)
		known[param.Key] = true
	}

	values := make(map[string]any, total)
	for i, arg := range args {
		values[keys[i]] = arg
	}
	for key, value := range kwargs {
		if !known[key] {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrArity, proc.Name, key)
		}
		if _, dup := values[key]; dup {
			return nil, fmt.Errorf("%w: %s got multiple values for %q", ErrArity, proc.Name, key)
		}
		values[key] = value
	}

	params := make([]jsonrpc.Param, 0, total)
	for _, spec := range proc.Required {
		value, ok := values[spec.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %s missing required %q", ErrArity, proc.Name, spec.Key)
		}
		param, err := jsonrpc.NewParam(spec.Key, value, true)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	for _, spec := range proc.Optional {
		value, ok := values[spec.Key]
		if !ok {
			continue
		}
		param, err := jsonrpc.NewParam(spec.Key, value, false)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, nil
}
