package session

import (
	"encoding/json"

	"github.com/rexliu/geonb/pkg/remote"
)

func (s *Session) handlers() map[string]remote.Handler {
	return map[string]remote.Handler{
		ProcGetProtocol: func([]json.RawMessage, map[string]json.RawMessage) (any, error) {
			return s.Protocol(), nil
		},
		ProcSetCenter: func(args []json.RawMessage, _ map[string]json.RawMessage) (any, error) {
			var x, y, z float64
			if err := remote.Arg(args[0], "x", &x); err != nil {
				return nil, err
			}
			if err := remote.Arg(args[1], "y", &y); err != nil {
				return nil, err
			}
			if err := remote.Arg(args[2], "z", &z); err != nil {
				return nil, err
			}
			if _, err := s.SetCenter(x, y, z); err != nil {
				return nil, err
			}
			return true, nil
		},
		ProcAddAnnotationFromClient: func(args []json.RawMessage, _ map[string]json.RawMessage) (any, error) {
			var annType string
			if err := remote.Arg(args[0], "ann_type", &annType); err != nil {
				return nil, err
			}
			var meta map[string]any
			if err := remote.Arg(args[2], "meta", &meta); err != nil {
				return nil, err
			}
			return s.AddAnnotationFromClient(annType, args[1], meta)
		},
		ProcGetMapState: func([]json.RawMessage, map[string]json.RawMessage) (any, error) {
			return s.MapState(), nil
		},
	}
}
