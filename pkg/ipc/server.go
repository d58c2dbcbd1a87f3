// Package ipc carries channel frames between the host and one map client,
// either as length-prefixed frames on a Unix socket or as WebSocket text
// messages. Only one client is attached at a time; a new connection replaces
// the previous one.
package ipc

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// Server accepts client connections.
type Server struct {
	ln           net.Listener
	mu           sync.Mutex
	handler      FrameHandler
	onDisconnect DisconnectFunc
	active       Channel
	closed       bool
	logger       zerolog.Logger
}

// NewServer constructs a server that feeds frames to handler.
func NewServer(handler FrameHandler, logger zerolog.Logger) *Server {
	return &Server{handler: handler, logger: logger}
}

// OnDisconnect installs fn, run when the active client goes away.
func (s *Server) OnDisconnect(fn DisconnectFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = fn
}

// Start begins accepting connections on the Unix socket at endpoint.
func (s *Server) Start(ctx context.Context, endpoint string) error {
	if s == nil {
		return errors.New("nil server")
	}
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return err
	}
	s.Serve(ctx, ln)
	return nil
}

// Serve accepts connections from ln in the background.
func (s *Server) Serve(ctx context.Context, ln net.Listener) {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go s.acceptLoop(ctx, ln)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}
		go s.handleConn(ctx, &socketChannel{conn: conn})
	}
}

func (s *Server) handleConn(ctx context.Context, ch *socketChannel) {
	s.attach(ch)
	defer s.detach(ch)
	for {
		payload, err := ReadFrame(ch.conn)
		if err != nil {
			return
		}
		s.dispatch(ctx, ch, payload)
	}
}

func (s *Server) dispatch(ctx context.Context, ch Channel, payload []byte) {
	if err := s.handler(ctx, ch, payload); err != nil {
		s.logger.Error().Err(err).Msg("frame handler error")
	}
}

// attach makes ch the active client, closing any previous one.
func (s *Server) attach(ch Channel) {
	s.mu.Lock()
	prev := s.active
	s.active = ch
	s.mu.Unlock()
	if prev != nil {
		s.logger.Info().Msg("replacing connected client")
		_ = prev.Close()
	}
}

func (s *Server) detach(ch Channel) {
	_ = ch.Close()
	s.mu.Lock()
	current := s.active == ch
	if current {
		s.active = nil
	}
	fn := s.onDisconnect
	s.mu.Unlock()
	if current && fn != nil {
		fn(ch)
	}
}

// Connected reports whether a client is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Stop shuts down the listener and the active client.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln, active := s.ln, s.active
	s.mu.Unlock()
	if active != nil {
		_ = active.Close()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type socketChannel struct {
	conn net.Conn
	wmu  sync.Mutex
	once sync.Once
	done bool
}

func (c *socketChannel) Send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.done {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return WriteFrame(c.conn, frame)
}

func (c *socketChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		c.done = true
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Dial connects to a Unix socket server and returns the raw connection for
// use with ReadFrame and WriteFrame.
func Dial(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}
