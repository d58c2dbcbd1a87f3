package session

import "github.com/rexliu/geonb/pkg/protocol"

// Procedures this side exposes to the map client.
const (
	ProcGetProtocol             = "get_protocol"
	ProcSetCenter               = "set_center"
	ProcAddAnnotationFromClient = "add_annotation_from_client"
	ProcGetMapState             = "get_map_state"
)

// Procedures the map client is expected to expose.
const (
	RemoteSetCenter     = "set_center"
	RemoteAddLayer      = "add_layer"
	RemoteRemoveLayer   = "remove_layer"
	RemoteAddAnnotation = "add_annotation"
)

var designated = []string{
	ProcGetProtocol,
	ProcSetCenter,
	ProcAddAnnotationFromClient,
	ProcGetMapState,
}

func declarations() []protocol.Procedure {
	return []protocol.Procedure{
		protocol.Declare(ProcGetProtocol, nil),
		protocol.Declare(ProcSetCenter, protocol.Required("x", "y", "z")),
		protocol.Declare(ProcAddAnnotationFromClient, protocol.Required("ann_type", "coords", "meta")),
		protocol.Declare(ProcGetMapState, nil),
	}
}
