package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rexliu/geonb/pkg/jsonrpc"
)

var (
	// ErrAlreadySettled is returned by a second Fulfill or Reject.
	ErrAlreadySettled = errors.New("remote: deferred already settled")
	// ErrContinuationPanic wraps a panic recovered from a continuation.
	ErrContinuationPanic = errors.New("remote: continuation panicked")
)

// State is the settlement state of a Deferred.
type State int

const (
	StatePending State = iota
	StateFulfilled
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateFulfilled:
		return "fulfilled"
	case StateRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// FulfillFunc receives the raw result of a fulfilled call.
type FulfillFunc func(result json.RawMessage) error

// RejectFunc receives the error object of a rejected call.
type RejectFunc func(rejection *jsonrpc.Error) error

// FailureFunc receives any error or panic raised by the other two.
type FailureFunc func(err error)

type continuation struct {
	onFulfilled FulfillFunc
	onRejected  RejectFunc
	onFailure   FailureFunc
}

// Deferred is the eventual outcome of one outbound call. It settles exactly
// once. Continuations attached before settlement run in attachment order when
// it settles; continuations attached afterwards run immediately. Both happen
// on the goroutine that settles or attaches, which is the channel's single
// control flow.
type Deferred struct {
	id     jsonrpc.ID
	method string

	mu        sync.Mutex
	state     State
	result    json.RawMessage
	rejection *jsonrpc.Error
	conts     []continuation
	done      chan struct{}

	fallback FailureFunc
}

func newDeferred(id jsonrpc.ID, method string, fallback FailureFunc) *Deferred {
	if fallback == nil {
		fallback = func(error) {}
	}
	return &Deferred{
		id:       id,
		method:   method,
		done:     make(chan struct{}),
		fallback: fallback,
	}
}

// ID returns the correlation id.
func (d *Deferred) ID() jsonrpc.ID { return d.id }

// Method returns the remote procedure name.
func (d *Deferred) Method() string { return d.method }

// State returns the current state.
func (d *Deferred) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Done is closed once the deferred settles.
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Fulfill settles the deferred with a result.
func (d *Deferred) Fulfill(result json.RawMessage) error {
	return d.settle(StateFulfilled, result, nil)
}

// Reject settles the deferred with an error object.
func (d *Deferred) Reject(rejection *jsonrpc.Error) error {
	if rejection == nil {
		rejection = jsonrpc.InternalError("rejected without error object")
	}
	return d.settle(StateRejected, nil, rejection)
}

func (d *Deferred) settle(state State, result json.RawMessage, rejection *jsonrpc.Error) error {
	d.mu.Lock()
	if d.state != StatePending {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadySettled, d.id)
	}
	d.state = state
	d.result = result
	d.rejection = rejection
	conts := d.conts
	d.conts = nil
	close(d.done)
	d.mu.Unlock()

	for _, c := range conts {
		d.run(c)
	}
	return nil
}

// Then attaches a continuation. onFailure receives whatever error or panic
// escapes onFulfilled or onRejected; when nil, the owner's default failure
// handler is used, so no continuation is ever left without one.
func (d *Deferred) Then(onFulfilled FulfillFunc, onRejected RejectFunc, onFailure FailureFunc) *Deferred {
	c := continuation{onFulfilled: onFulfilled, onRejected: onRejected, onFailure: onFailure}
	if c.onFailure == nil {
		c.onFailure = d.fallback
	}
	d.mu.Lock()
	if d.state == StatePending {
		d.conts = append(d.conts, c)
		d.mu.Unlock()
		return d
	}
	d.mu.Unlock()
	d.run(c)
	return d
}

func (d *Deferred) run(c continuation) {
	d.mu.Lock()
	state, result, rejection := d.state, d.result, d.rejection
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.onFailure(fmt.Errorf("%w: %v", ErrContinuationPanic, r))
		}
	}()
	var err error
	switch state {
	case StateFulfilled:
		if c.onFulfilled != nil {
			err = c.onFulfilled(result)
		}
	case StateRejected:
		if c.onRejected != nil {
			err = c.onRejected(rejection)
		}
	}
	if err != nil {
		c.onFailure(err)
	}
}

// Wait blocks until the deferred settles or ctx is done. A rejection is
// returned as the *jsonrpc.Error. Wait must not be called from the goroutine
// that delivers responses.
func (d *Deferred) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRejected {
		return nil, d.rejection
	}
	return d.result, nil
}
