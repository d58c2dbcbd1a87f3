package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/ipc"
)

func TestRelayCopiesFrames(t *testing.T) {
	var in bytes.Buffer
	for _, f := range []string{`{"type":"open","data":[]}`, `{"type":"close"}`} {
		if err := ipc.WriteFrame(&in, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	want := append([]byte(nil), in.Bytes()...)

	var out bytes.Buffer
	if err := relay(&in, &out, "stdin", zerolog.Nop()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("relayed bytes differ: %q vs %q", out.Bytes(), want)
	}
}

func TestRelayTruncatedFrame(t *testing.T) {
	in := bytes.NewReader([]byte{10, 0, 0, 0, '{'})
	var out bytes.Buffer
	if err := relay(in, &out, "stdin", zerolog.Nop()); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}
