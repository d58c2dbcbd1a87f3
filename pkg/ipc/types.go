package ipc

import (
	"context"
	"errors"
)

// ErrClosed is returned when sending on a channel that has gone away.
var ErrClosed = errors.New("ipc: channel closed")

// Channel is one connected client as seen by the frame handler.
type Channel interface {
	Send(frame []byte) error
	Close() error
}

// FrameHandler processes one inbound frame from ch. Returned errors are
// logged; the connection stays open.
type FrameHandler func(ctx context.Context, ch Channel, frame []byte) error

// DisconnectFunc runs once when a channel goes away without being replaced.
type DisconnectFunc func(ch Channel)
