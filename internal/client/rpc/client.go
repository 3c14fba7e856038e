// Package rpc is the client side of the signaling transport: one websocket
// session at a time, heartbeat replies, idle detection and reconnection.
package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("rpc: not connected")
	ErrBackpressure = errors.New("rpc: send buffer full")
	// ErrAbandoned reports that reconnection ran out of time.
	ErrAbandoned = errors.New("rpc: reconnection abandoned")
	ErrClosed    = errors.New("rpc: client closed")
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives what the transport observes. Calls come from the
// transport goroutines, one at a time.
type Handler interface {
	// OnOpen fires for every established session; reconnected is false
	// only for the first one.
	OnOpen(reconnected bool)
	OnEvent(ev protocol.Event)
	// OnLost fires when a session dropped and reconnection starts.
	OnLost(err error)
	// OnClosed fires once, when the transport stops for good. reason is
	// empty for a local close or an abandoned reconnection.
	OnClosed(reason protocol.CloseReason, err error)
}

type reconnectReq struct {
	delay   time.Duration
	backoff *Backoff
}

// Client keeps one signaling session alive.
type Client struct {
	url    string
	opts   Options
	dialer *websocket.Dialer
	h      Handler
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	session *session

	kick    chan reconnectReq
	closing chan struct{}
	once    sync.Once
}

func New(url string, opts Options, h Handler) *Client {
	return &Client{
		url:     url,
		opts:    opts,
		dialer:  &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: opts.DialTimeout},
		h:       h,
		log:     log.With().Str("module", "client.rpc").Logger(),
		kick:    make(chan reconnectReq, 1),
		closing: make(chan struct{}),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Send queues a command on the current session. A full queue drops the
// session so the client reconnects and resynchronizes.
func (c *Client) Send(cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return errors.Wrap(err, "rpc send")
	}
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	if err := s.trySend(data); err != nil {
		if errors.Is(err, ErrBackpressure) {
			c.log.Warn().Str("command", cmd.CommandName()).Msg("send buffer full, dropping session")
			s.abort(err)
		}
		return err
	}
	return nil
}

// Close ends the session and stops reconnecting.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closing) })
}

// Handle returns the reconnect handle of the client.
func (c *Client) Handle() ReconnectHandle { return ReconnectHandle{c: c} }

// Run dials and keeps the session alive until Close, ctx cancellation, a
// terminal close reason from the server or an abandoned reconnection.
func (c *Client) Run(ctx context.Context) error {
	reconnected := false
	for {
		conn, err := c.connect(ctx, reconnected)
		if err != nil {
			return c.finish("", err)
		}
		c.setState(StateOpen)
		c.h.OnOpen(reconnected)

		reason, err := c.serve(ctx, conn)
		switch {
		case ctx.Err() != nil:
			return c.finish("", ctx.Err())
		case c.closed():
			return c.finish("", nil)
		case reason != "" && !reason.Reconnectable():
			c.log.Info().Str("reason", string(reason)).Msg("session closed by server")
			return c.finish(reason, nil)
		}
		c.log.Warn().Err(err).Str("reason", string(reason)).Msg("session lost")
		c.setState(StateReconnecting)
		c.h.OnLost(err)
		reconnected = true
	}
}

func (c *Client) finish(reason protocol.CloseReason, err error) error {
	c.setState(StateClosed)
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	c.h.OnClosed(reason, err)
	return err
}

func (c *Client) closed() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// connect dials, backing off between failures. The first attempt of a
// fresh client is immediate; after a lost session the first delay applies
// unless a reconnect request preempts it.
func (c *Client) connect(ctx context.Context, reconnecting bool) (*websocket.Conn, error) {
	policy := c.opts.Backoff.policy()
	wait := reconnecting
	for {
		if wait {
			if err := c.wait(ctx, policy); err != nil {
				return nil, err
			}
		}
		wait = true
		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		c.log.Warn().Err(err).Msg("dial failed")
	}
}

func (c *Client) wait(ctx context.Context, policy *backoff.ExponentialBackOff) error {
	var timer <-chan time.Time
	if c.opts.AutoReconnect {
		d := policy.NextBackOff()
		if d == backoff.Stop {
			return ErrAbandoned
		}
		c.log.Debug().Dur("delay", d).Msg("reconnect scheduled")
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closing:
			return ErrClosed
		case <-timer:
			return nil
		case req := <-c.kick:
			if req.backoff != nil {
				*policy = *req.backoff.policy()
				d := policy.NextBackOff()
				t := time.NewTimer(d)
				defer t.Stop()
				timer = t.C
				c.log.Debug().Dur("delay", d).Msg("reconnect rescheduled")
				continue
			}
			if req.delay <= 0 {
				return nil
			}
			t := time.NewTimer(req.delay)
			defer t.Stop()
			timer = t.C
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(dctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return conn, nil
}

// ReconnectHandle lets the application reconnect without waiting for the
// backoff. Requests made while a session is open are ignored.
type ReconnectHandle struct {
	c *Client
}

// ReconnectWithDelay reconnects after d, zero meaning now.
func (h ReconnectHandle) ReconnectWithDelay(d time.Duration) {
	h.request(reconnectReq{delay: d})
}

// ReconnectWithBackoff restarts the backoff with b.
func (h ReconnectHandle) ReconnectWithBackoff(b Backoff) {
	h.request(reconnectReq{backoff: &b})
}

func (h ReconnectHandle) request(req reconnectReq) {
	if h.c.State() == StateOpen {
		return
	}
	select {
	case h.c.kick <- req:
	default:
		// replace a request nobody picked up yet
		select {
		case <-h.c.kick:
		default:
		}
		select {
		case h.c.kick <- req:
		default:
		}
	}
}
