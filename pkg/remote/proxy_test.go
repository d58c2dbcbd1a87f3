package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/jsonrpc"
	"github.com/rexliu/geonb/pkg/protocol"
)

type recorder struct {
	sent []any
	err  error
}

func (r *recorder) send(msg any) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) lastRequest(t *testing.T) jsonrpc.Request {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatal("nothing sent")
	}
	req, ok := r.sent[len(r.sent)-1].(jsonrpc.Request)
	if !ok {
		t.Fatalf("expected request, got %T", r.sent[len(r.sent)-1])
	}
	return req
}

func newTestProxy(t *testing.T, rec *recorder, logs *bytes.Buffer) *Proxy {
	t.Helper()
	procs := []protocol.Procedure{
		protocol.Declare("f", protocol.Required("x"), protocol.Optional("y", 0)),
		protocol.Declare("g", protocol.Required("a", "b"), protocol.Optional("c", nil)),
	}
	var opts []Option
	if logs != nil {
		opts = append(opts, WithLogger(zerolog.New(logs)))
	}
	p, err := NewProxy(rec.send, procs, opts...)
	if err != nil {
		t.Fatalf("new proxy: %v", err)
	}
	return p
}

func TestNewProxyRejectsMalformed(t *testing.T) {
	rec := &recorder{}
	_, err := NewProxy(rec.send, []protocol.Procedure{{Name: "f", Required: []protocol.Param{}}})
	if !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	_, err = NewProxy(rec.send, []protocol.Procedure{{Name: "f", Required: []protocol.Param{{}}, Optional: []protocol.Param{}}})
	if !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("expected ErrMalformed for keyless param, got %v", err)
	}
}

func TestInvokeArity(t *testing.T) {
	cases := []struct {
		name string
		args []any
		ok   bool
	}{
		{"one", []any{1}, false},
		{"two", []any{1, 2}, true},
		{"three", []any{1, 2, 3}, true},
		{"four", []any{1, 2, 3, 4}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			p := newTestProxy(t, rec, nil)
			_, err := p.Invoke("g", tc.args, nil)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrArity) {
					t.Fatalf("expected ErrArity, got %v", err)
				}
				if len(rec.sent) != 0 {
					t.Fatal("nothing may be sent on arity failure")
				}
			}
		})
	}
}

func TestInvokeWireParams(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(t, rec, nil)
	d, err := p.Invoke("f", []any{1}, map[string]any{"y": 2})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	req := rec.lastRequest(t)
	if req.ID != d.ID() || req.Method != "f" {
		t.Fatalf("unexpected request: %+v", req)
	}
	raw, err := json.Marshal(req.Params)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"key":"x","value":1,"required":true},{"key":"y","value":2,"required":false}]`
	if string(raw) != want {
		t.Fatalf("unexpected params:\n%s\nwant\n%s", raw, want)
	}
	if p.Pending() != 1 || d.State() != StatePending {
		t.Fatalf("expected one pending call, got %d (%s)", p.Pending(), d.State())
	}
}

func TestInvokeOmitsAbsentOptional(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(t, rec, nil)
	if _, err := p.Invoke("f", []any{1}, nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if params := rec.lastRequest(t).Params; len(params) != 1 || params[0].Key != "x" {
		t.Fatalf("expected only x on the wire, got %+v", params)
	}
}

func TestInvokeKeywordErrors(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(t, rec, nil)
	if _, err := p.Invoke("f", []any{1}, map[string]any{"nope": 1}); !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity for unknown key, got %v", err)
	}
	if _, err := p.Invoke("f", []any{1}, map[string]any{"x": 1}); !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity for duplicate key, got %v", err)
	}
	if _, err := p.Invoke("f", nil, map[string]any{"x": 1}); err != nil {
		t.Fatalf("required key by keyword should be accepted: %v", err)
	}
	if _, err := p.Invoke("missing", nil, nil); !errors.Is(err, ErrUnknownProcedure) {
		t.Fatalf("expected ErrUnknownProcedure, got %v", err)
	}
}

func TestInvokeSendFailureLeavesNothingPending(t *testing.T) {
	rec := &recorder{err: errors.New("channel closed")}
	p := newTestProxy(t, rec, nil)
	if _, err := p.Call("f", 1); err == nil {
		t.Fatal("expected send error")
	}
	if p.Pending() != 0 {
		t.Fatalf("expected no pending entries, got %d", p.Pending())
	}
}

func TestResolveFulfillsAndRejects(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(t, rec, nil)

	ok, _ := p.Call("f", 1)
	bad, _ := p.Call("f", 2)

	var got string
	ok.Then(func(result json.RawMessage) error {
		return json.Unmarshal(result, &got)
	}, nil, nil)
	var rejected *jsonrpc.Error
	bad.Then(nil, func(rej *jsonrpc.Error) error {
		rejected = rej
		return nil
	}, nil)

	p.Resolve(jsonrpc.Response{ID: ok.ID(), Result: json.RawMessage(`"done"`)})
	p.Resolve(jsonrpc.Response{ID: bad.ID(), Error: jsonrpc.ServerError("boom")})

	if got != "done" || ok.State() != StateFulfilled {
		t.Fatalf("expected fulfilled with done, got %q (%s)", got, ok.State())
	}
	if rejected == nil || rejected.Message != "boom" || bad.State() != StateRejected {
		t.Fatalf("expected rejection boom, got %+v (%s)", rejected, bad.State())
	}
	if p.Pending() != 0 {
		t.Fatalf("settled entries must be removed, %d left", p.Pending())
	}
}

func TestResolveUnknownIDWarns(t *testing.T) {
	var logs bytes.Buffer
	rec := &recorder{}
	p := newTestProxy(t, rec, &logs)
	d, _ := p.Call("f", 1)

	p.Resolve(jsonrpc.Response{ID: jsonrpc.StringID("nope"), Result: json.RawMessage(`1`)})
	if d.State() != StatePending {
		t.Fatal("unrelated deferred must stay pending")
	}
	if !strings.Contains(logs.String(), `"level":"warn"`) || !strings.Contains(logs.String(), "nope") {
		t.Fatalf("expected warning about id nope, got %s", logs.String())
	}

	logs.Reset()
	p.Resolve(jsonrpc.Response{ID: d.ID(), Result: json.RawMessage(`1`)})
	p.Resolve(jsonrpc.Response{ID: d.ID(), Result: json.RawMessage(`2`)})
	if !strings.Contains(logs.String(), d.ID().String()) {
		t.Fatalf("duplicate response should warn, got %s", logs.String())
	}
}

func TestDeferredOneShot(t *testing.T) {
	d := newDeferred(jsonrpc.StringID("1"), "f", nil)
	if err := d.Fulfill(json.RawMessage(`1`)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := d.Fulfill(json.RawMessage(`2`)); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	if err := d.Reject(jsonrpc.ServerError("x")); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	res, err := d.Wait(context.Background())
	if err != nil || string(res) != "1" {
		t.Fatalf("expected first result to stick, got %s %v", res, err)
	}
}

func TestDeferredContinuationOrder(t *testing.T) {
	d := newDeferred(jsonrpc.StringID("1"), "f", nil)
	var order []string
	d.Then(func(json.RawMessage) error { order = append(order, "before-1"); return nil }, nil, nil)
	d.Then(func(json.RawMessage) error { order = append(order, "before-2"); return nil }, nil, nil)
	_ = d.Fulfill(nil)
	d.Then(func(json.RawMessage) error { order = append(order, "after"); return nil }, nil, nil)
	want := []string{"before-1", "before-2", "after"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, order)
	}
}

func TestDeferredFailureContinuation(t *testing.T) {
	var fallback []error
	d := newDeferred(jsonrpc.StringID("1"), "f", func(err error) { fallback = append(fallback, err) })

	var explicit error
	d.Then(func(json.RawMessage) error { return errors.New("bad mutation") }, nil, func(err error) { explicit = err })
	d.Then(func(json.RawMessage) error { panic("boom") }, nil, nil)
	_ = d.Fulfill(nil)

	if explicit == nil || explicit.Error() != "bad mutation" {
		t.Fatalf("expected explicit failure handler to run, got %v", explicit)
	}
	if len(fallback) != 1 || !errors.Is(fallback[0], ErrContinuationPanic) {
		t.Fatalf("expected recovered panic in fallback, got %v", fallback)
	}
}

func TestDeferredWait(t *testing.T) {
	d := newDeferred(jsonrpc.StringID("1"), "f", nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = d.Reject(jsonrpc.ServerError("nope"))
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := d.Wait(ctx)
	if !jsonrpc.IsCode(err, jsonrpc.CodeServerError) {
		t.Fatalf("expected server error rejection, got %v", err)
	}

	pending := newDeferred(jsonrpc.StringID("2"), "f", nil)
	short, cancelShort := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancelShort()
	if _, err := pending.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
