// Package protocol describes the procedures one side of a channel exposes to
// the other. Descriptors are declared by hand, assembled once into a Registry
// and validated against the procedures actually implemented.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rexliu/geonb/pkg/jsonrpc"
)

var (
	// ErrMalformed indicates a descriptor that is missing a list or a key.
	ErrMalformed = errors.New("protocol: malformed descriptor")
	// ErrUnimplemented indicates a listed procedure with no local handler.
	ErrUnimplemented = errors.New("protocol: procedure not implemented")
)

// Param describes one parameter. Default is only meaningful for
// optional parameters.
type Param struct {
	Key     string `json:"key"`
	Default any    `json:"default,omitempty"`
}

// Procedure is the callable shape of one procedure.
type Procedure struct {
	Name     string  `json:"procedure"`
	Required []Param `json:"required"`
	Optional []Param `json:"optional"`
}

type requiredEntry struct {
	Key string `json:"key"`
}

type optionalEntry struct {
	Key     string `json:"key"`
	Default any    `json:"default"`
}

// MarshalJSON writes required entries as bare keys and optional entries
// with their default, null included.
func (p Procedure) MarshalJSON() ([]byte, error) {
	var required []requiredEntry
	if p.Required != nil {
		required = make([]requiredEntry, 0, len(p.Required))
		for _, arg := range p.Required {
			required = append(required, requiredEntry{Key: arg.Key})
		}
	}
	var optional []optionalEntry
	if p.Optional != nil {
		optional = make([]optionalEntry, 0, len(p.Optional))
		for _, arg := range p.Optional {
			optional = append(optional, optionalEntry{Key: arg.Key, Default: arg.Default})
		}
	}
	return json.Marshal(struct {
		Name     string          `json:"procedure"`
		Required []requiredEntry `json:"required"`
		Optional []optionalEntry `json:"optional"`
	}{p.Name, required, optional})
}

// Arity returns the required and optional parameter counts.
func (p Procedure) Arity() (required, optional int) {
	return len(p.Required), len(p.Optional)
}

// Validate checks that both parameter lists are defined and every entry has a key.
func (p Procedure) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing procedure name", ErrMalformed)
	}
	if p.Required == nil {
		return fmt.Errorf("%w: %s must define required arguments", ErrMalformed, p.Name)
	}
	if p.Optional == nil {
		return fmt.Errorf("%w: %s must define optional arguments", ErrMalformed, p.Name)
	}
	for i, arg := range p.Required {
		if arg.Key == "" {
			return fmt.Errorf("%w: %s required[%d] does not have a key", ErrMalformed, p.Name, i)
		}
	}
	for i, arg := range p.Optional {
		if arg.Key == "" {
			return fmt.Errorf("%w: %s optional[%d] does not have a key", ErrMalformed, p.Name, i)
		}
	}
	return nil
}

// Reconcile maps inbound params onto this procedure: one positional value per
// required key in declared order, plus keyword values for the optional keys
// that are present. A missing required key is InvalidParams.
func (p Procedure) Reconcile(params []jsonrpc.Param) ([]json.RawMessage, map[string]json.RawMessage, error) {
	byKey := make(map[string]json.RawMessage, len(params))
	for _, param := range params {
		byKey[param.Key] = param.Value
	}
	args := make([]json.RawMessage, 0, len(p.Required))
	for _, req := range p.Required {
		value, ok := byKey[req.Key]
		if !ok {
			return nil, nil, jsonrpc.InvalidParams("missing required params for method: %s", p.Name)
		}
		args = append(args, value)
	}
	kwargs := make(map[string]json.RawMessage)
	for _, opt := range p.Optional {
		if value, ok := byKey[opt.Key]; ok {
			kwargs[opt.Key] = value
		}
	}
	return args, kwargs, nil
}

// Required builds a required parameter list.
func Required(keys ...string) []Param {
	out := make([]Param, 0, len(keys))
	for _, key := range keys {
		out = append(out, Param{Key: key})
	}
	return out
}

// Optional builds one optional parameter.
func Optional(key string, def any) Param {
	return Param{Key: key, Default: def}
}

// Declare builds a Procedure with both lists always defined.
func Declare(name string, required []Param, optional ...Param) Procedure {
	if required == nil {
		required = []Param{}
	}
	if optional == nil {
		optional = []Param{}
	}
	return Procedure{Name: name, Required: required, Optional: optional}
}

// Parse decodes a peer's descriptor list, rejecting malformed entries.
func Parse(raw []byte) ([]Procedure, error) {
	var procs []Procedure
	if err := json.Unmarshal(raw, &procs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, p := range procs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return procs, nil
}
