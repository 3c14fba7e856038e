package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// session is one websocket connection. It ends on the first pump error.
type session struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	done   chan struct{}
	ended  bool
	reason error
}

func newSession(conn *websocket.Conn, buffer int) *session {
	return &session{conn: conn, send: make(chan []byte, buffer), done: make(chan struct{})}
}

func (s *session) trySend(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrNotConnected
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// abort ends the session from outside the pumps.
func (s *session) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.reason = err
	close(s.done)
}

func (s *session) abortErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// closeErr is returned by the read pump when the server closed the socket.
type closeErr struct {
	reason protocol.CloseReason
	err    error
}

func (e *closeErr) Error() string { return "closed by server: " + string(e.reason) }
func (e *closeErr) Unwrap() error { return e.err }

// serve runs the pumps of conn and returns the server close reason, if
// the server gave one.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) (protocol.CloseReason, error) {
	s := newSession(conn, c.opts.SendBuffer)
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	defer func() {
		s.abort(nil)
		c.mu.Lock()
		if c.session == s {
			c.session = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(gctx, s) })
	g.Go(func() error { return c.writePump(gctx, s) })
	err := g.Wait()

	var ce *closeErr
	if errors.As(err, &ce) {
		return ce.reason, err
	}
	return "", err
}

func (c *Client) readPump(ctx context.Context, s *session) error {
	defer s.abort(nil)
	idle := c.opts.IdleTimeout
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return errors.Wrap(err, "read deadline")
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var wsErr *websocket.CloseError
			if errors.As(err, &wsErr) {
				reason, ok := protocol.DecodeClose(wsErr.Text)
				if !ok && wsErr.Code == websocket.CloseNormalClosure {
					reason = protocol.CloseFinished
				}
				return &closeErr{reason: reason, err: err}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if abortErr := s.abortErr(); abortErr != nil {
				return abortErr
			}
			return errors.Wrap(err, "read")
		}
		msg, err := protocol.DecodeServerMsg(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable server message")
			continue
		}
		switch {
		case msg.Ping != nil:
			pong, err := protocol.EncodePong(*msg.Ping)
			if err != nil {
				return errors.Wrap(err, "encode pong")
			}
			if err := s.trySend(pong); err != nil {
				return errors.Wrap(err, "pong")
			}
		case msg.RpcSettings != nil:
			if d := msg.RpcSettings.IdleTimeout(); d > 0 {
				idle = d
			}
			c.log.Debug().Dur("idle_timeout", idle).Dur("ping_interval", msg.RpcSettings.PingInterval()).Msg("rpc settings")
		case msg.Event != nil:
			c.h.OnEvent(msg.Event)
		}
	}
}

// writePump owns every write on the socket. Only a local Close sends a
// close frame: the server takes it as an intended leave, while a dropped
// socket keeps the member for the reconnect grace period.
func (c *Client) writePump(ctx context.Context, s *session) error {
	for {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
			return nil
		case <-c.closing:
			c.writeClose(s)
			// wait for the server's close frame, but not forever
			_ = s.conn.SetReadDeadline(time.Now().Add(c.opts.WriteTimeout))
			return ErrClosed
		case <-s.done:
			_ = s.conn.Close()
			return s.abortErr()
		case data := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return errors.Wrap(err, "write deadline")
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return errors.Wrap(err, "write")
			}
		}
	}
}

func (c *Client) writeClose(s *session) {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.log.Debug().Err(err).Msg("close frame")
	}
}
