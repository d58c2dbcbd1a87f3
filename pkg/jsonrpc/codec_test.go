package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Kind
	}{
		{"request", `{"id":"1","method":"set_center","params":[]}`, KindRequest},
		{"request without id", `{"method":"notify"}`, KindRequest},
		{"result", `{"id":"1","result":[1,2,3],"error":null}`, KindResponse},
		{"error only", `{"id":"1","error":{"code":-32601,"message":"nope"}}`, KindResponse},
		{"both null", `{"id":"1","result":null,"error":null}`, KindResponse},
		{"null method", `{"id":"1","method":null}`, KindMalformed},
		{"id only", `{"id":"1"}`, KindMalformed},
		{"empty", `{}`, KindMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := Classify(env); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `"text"`, `null`, `{`} {
		_, err := Decode([]byte(raw))
		if !IsCode(err, CodeParseError) {
			t.Fatalf("%s: expected parse error, got %v", raw, err)
		}
	}
}

func TestBuildRequestClassifiesAsRequest(t *testing.T) {
	p, err := NewParam("x", 1, true)
	if err != nil {
		t.Fatalf("param: %v", err)
	}
	req := BuildRequest("f", []Param{p})
	if req.ID.IsZero() {
		t.Fatal("expected allocated id")
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if Classify(env) != KindRequest {
		t.Fatalf("expected request, got %s", Classify(env))
	}
	got, err := env.Request()
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got.ID != req.ID || got.Method != "f" || len(got.Params) != 1 || string(got.Params[0].Value) != "1" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestBuildResultClassifiesAsResponse(t *testing.T) {
	for _, tc := range []struct {
		name   string
		result any
		err    *Error
	}{
		{"result", map[string]any{"ok": true}, nil},
		{"error", nil, MethodNotFound("Method not allowed")},
		{"degenerate", nil, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := BuildResult(tc.result, tc.err, StringID("abc"))
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			raw, err := json.Marshal(resp)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			env, err := Decode(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if Classify(env) != KindResponse {
				t.Fatalf("expected response for %s", raw)
			}
			back := env.Response()
			if back.ID != StringID("abc") {
				t.Fatalf("unexpected id %q", back.ID)
			}
			if (back.Error != nil) != (tc.err != nil) {
				t.Fatalf("error presence mismatch: %+v", back.Error)
			}
		})
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[ID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestAsError(t *testing.T) {
	orig := InvalidParams("missing x")
	if got := AsError(orig); got != orig {
		t.Fatalf("expected protocol error unchanged, got %v", got)
	}
	wrapped := AsError(errors.New("disk full"))
	if wrapped.Code != CodeServerError || wrapped.Message != "disk full" {
		t.Fatalf("unexpected wrap: %+v", wrapped)
	}
	if AsError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestEnvelopeIDKeepsLiteral(t *testing.T) {
	cases := []struct {
		raw  string
		wire string
	}{
		{`{"id":7,"method":"get_map_state"}`, `7`},
		{`{"id":"7","method":"get_map_state"}`, `"7"`},
		{`{"id": 1.5e3 ,"method":"get_map_state"}`, `1.5e3`},
	}
	for _, tc := range cases {
		env, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		id, ok := env.ID()
		if !ok {
			t.Fatalf("%s: expected id", tc.raw)
		}
		resp, err := BuildResult(true, nil, id)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		out, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		want := `{"id":` + tc.wire + `,"result":true,"error":null}`
		if string(out) != want {
			t.Fatalf("expected %s, got %s", want, out)
		}
	}
}

func TestIDRoundTrip(t *testing.T) {
	var resp Response
	if err := json.Unmarshal([]byte(`{"id":42,"result":null,"error":null}`), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID == StringID("42") || resp.ID.String() != "42" {
		t.Fatalf("numeric id must stay distinct from string id, got %+v", resp.ID)
	}
	if err := json.Unmarshal([]byte(`{"id":null,"result":1}`), &resp); err != nil || !resp.ID.IsZero() {
		t.Fatalf("expected zero id for null, got %+v %v", resp.ID, err)
	}
	out, _ := json.Marshal(Response{})
	if string(out) != `{"id":null,"result":null,"error":null}` {
		t.Fatalf("unexpected zero response %s", out)
	}
}

func TestMalformedErrorObjectBecomesInternalError(t *testing.T) {
	for _, raw := range []string{
		`{"id":"a","result":null,"error":"boom"}`,
		`{"id":"a","error":{"code":"bad"}}`,
		`{"id":"a","error":[1]}`,
	} {
		env, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if Classify(env) != KindResponse {
			t.Fatalf("%s: expected response", raw)
		}
		resp := env.Response()
		if resp.Error == nil || resp.Error.Code != CodeInternalError {
			t.Fatalf("%s: expected internal error rejection, got %+v", raw, resp.Error)
		}
		if resp.ID != StringID("a") {
			t.Fatalf("%s: unexpected id %v", raw, resp.ID)
		}
	}
}

func TestReplyID(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{`{"id":"r","method":"nope"}`, true},
		{`{"id":"r"}`, true},
		{`{"id":"r","result":null,"error":"boom"}`, false},
		{`{"method":"notify"}`, false},
	}
	for _, tc := range cases {
		env, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, ok := env.ReplyID(); ok != tc.ok {
			t.Fatalf("%s: expected reply id presence %v", tc.raw, tc.ok)
		}
	}
}
