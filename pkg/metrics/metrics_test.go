package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRPCCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Call("set_center")
	m.Call("add_layer")
	m.Settled("fulfilled")
	m.Settled("unknown")
	m.Error(-32601)

	if got := testutil.ToFloat64(m.pending); got != 1 {
		t.Fatalf("expected 1 pending, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("set_center")); got != 1 {
		t.Fatalf("expected 1 set_center call, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("-32601")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestNilRPCIsNoop(t *testing.T) {
	var m *RPC
	m.Call("x")
	m.Dispatch("x")
	m.Error(1)
	m.Settled("fulfilled")
	m.Abandoned()
}

func TestDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
