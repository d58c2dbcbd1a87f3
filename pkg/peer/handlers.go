package peer

import (
	"encoding/json"
	"fmt"

	"github.com/rexliu/geonb/pkg/remote"
	"github.com/rexliu/geonb/pkg/session"
)

// Handlers run with p.mu held.
func (p *Peer) handlers() map[string]remote.Handler {
	return map[string]remote.Handler{
		session.RemoteSetCenter: func(args []json.RawMessage, _ map[string]json.RawMessage) (any, error) {
			center := make([]float64, 3)
			for i, key := range []string{"x", "y", "z"} {
				if err := remote.Arg(args[i], key, &center[i]); err != nil {
					return nil, err
				}
			}
			p.center = center
			return center, nil
		},
		session.RemoteAddLayer: func(args []json.RawMessage, _ map[string]json.RawMessage) (any, error) {
			var name string
			if err := remote.Arg(args[0], "layer_name", &name); err != nil {
				return nil, err
			}
			for _, existing := range p.layers {
				if existing == name {
					return nil, fmt.Errorf("%w: %s", ErrLayerExists, name)
				}
			}
			p.layers = append(p.layers, name)
			p.logger.Debug().Str("layer", name).Msg("layer added")
			return args[1], nil
		},
		session.RemoteRemoveLayer: func(args []json.RawMessage, _ map[string]json.RawMessage) (any, error) {
			var name string
			if err := remote.Arg(args[0], "layer_name", &name); err != nil {
				return nil, err
			}
			for i, existing := range p.layers {
				if existing == name {
					p.layers = append(p.layers[:i], p.layers[i+1:]...)
					return true, nil
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrNoSuchLayer, name)
		},
		session.RemoteAddAnnotation: func(args []json.RawMessage, _ map[string]json.RawMessage) (any, error) {
			var meta map[string]any
			if err := remote.Arg(args[2], "meta", &meta); err != nil {
				return nil, err
			}
			p.notes++
			return map[string]any{"id": p.notes, "rgb": "#b0de5c"}, nil
		},
	}
}
