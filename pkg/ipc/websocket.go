package ipc

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocket returns an HTTP handler that attaches each upgraded connection as
// the active client. Every text message is one frame.
func (s *Server) WebSocket() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn.SetReadLimit(MaxFrameSize)
		ch := &wsChannel{conn: conn}
		s.attach(ch)
		defer s.detach(ch)
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			s.dispatch(r.Context(), ch, payload)
		}
	})
}

type wsChannel struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	once sync.Once
	done bool
}

func (c *wsChannel) Send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.done {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		c.done = true
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "closing"),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}
