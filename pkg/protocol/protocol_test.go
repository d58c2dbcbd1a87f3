package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/rexliu/geonb/pkg/jsonrpc"
)

func testDeclarations() []Procedure {
	return []Procedure{
		Declare("get_map_state", nil),
		Declare("set_center", Required("x", "y", "z")),
		Declare("add_annotation_from_client", Required("ann_type", "coords"), Optional("meta", nil)),
		Declare("internal_only", Required("a")),
	}
}

func TestBuildOrderAndSkip(t *testing.T) {
	reg := Build([]string{"set_center", "missing", "add_annotation_from_client", "get_map_state", "set_center"}, testDeclarations())
	var names []string
	for _, p := range reg.List() {
		names = append(names, p.Name)
	}
	want := []string{"set_center", "add_annotation_from_client", "get_map_state"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	if reg.Has("internal_only") || reg.Has("missing") {
		t.Fatal("undesignated or undeclared names must not be exposed")
	}
}

func TestListIsStable(t *testing.T) {
	reg := Build([]string{"set_center", "get_map_state"}, testDeclarations())
	a, b := reg.List(), reg.List()
	if len(a) == 0 || &a[0] != &b[0] {
		t.Fatal("expected the cached slice on every call")
	}
}

func TestRequiredPrecedeOptionalOnWire(t *testing.T) {
	reg := Build([]string{"add_annotation_from_client"}, testDeclarations())
	raw, err := json.Marshal(reg.List())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"procedure":"add_annotation_from_client","required":[{"key":"ann_type"},{"key":"coords"}],"optional":[{"key":"meta","default":null}]}]`
	if string(raw) != want {
		t.Fatalf("unexpected wire form:\n%s\nwant\n%s", raw, want)
	}
}

func TestOptionalAlwaysCarriesDefault(t *testing.T) {
	cases := []struct {
		proc Procedure
		want string
	}{
		{Declare("f", Required("x"), Optional("w", nil)), `{"procedure":"f","required":[{"key":"x"}],"optional":[{"key":"w","default":null}]}`},
		{Declare("g", nil, Optional("n", 0), Optional("s", "")), `{"procedure":"g","required":[],"optional":[{"key":"n","default":0},{"key":"s","default":""}]}`},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.proc)
		if err != nil {
			t.Fatalf("marshal %s: %v", tc.proc.Name, err)
		}
		if string(raw) != tc.want {
			t.Fatalf("unexpected wire form:\n%s\nwant\n%s", raw, tc.want)
		}
		back, err := Parse([]byte("[" + string(raw) + "]"))
		if err != nil {
			t.Fatalf("parse %s: %v", tc.proc.Name, err)
		}
		if back[0].Name != tc.proc.Name || len(back[0].Optional) != len(tc.proc.Optional) {
			t.Fatalf("unexpected parsed procedure %+v", back[0])
		}
	}
}

func TestValidateAgainstImplemented(t *testing.T) {
	reg := Build([]string{"set_center", "get_map_state"}, testDeclarations())
	err := reg.Validate(func(name string) bool { return name == "set_center" })
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented, got %v", err)
	}
	if err := reg.Validate(func(string) bool { return true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		procs, err := Parse([]byte(`[{"procedure":"f","required":[{"key":"x"}],"optional":[{"key":"y","default":0}]}]`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if r, o := procs[0].Arity(); r != 1 || o != 1 {
			t.Fatalf("unexpected arity %d/%d", r, o)
		}
	})
	for name, raw := range map[string]string{
		"missing optional": `[{"procedure":"f","required":[]}]`,
		"missing required": `[{"procedure":"f","optional":[]}]`,
		"keyless param":    `[{"procedure":"f","required":[{"value":1}],"optional":[]}]`,
		"no name":          `[{"required":[],"optional":[]}]`,
		"not a list":       `{"procedure":"f"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	p := Declare("f", Required("x", "y"), Optional("z", 0))
	params := []jsonrpc.Param{
		{Key: "y", Value: json.RawMessage(`2`), Required: true},
		{Key: "x", Value: json.RawMessage(`1`), Required: true},
		{Key: "z", Value: json.RawMessage(`3`)},
	}
	args, kwargs, err := p.Reconcile(params)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if string(args[0]) != "1" || string(args[1]) != "2" {
		t.Fatalf("positional args out of declared order: %s %s", args[0], args[1])
	}
	if string(kwargs["z"]) != "3" {
		t.Fatalf("expected keyword z, got %v", kwargs)
	}

	_, _, err = p.Reconcile(params[:1])
	if !jsonrpc.IsCode(err, jsonrpc.CodeInvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
}
