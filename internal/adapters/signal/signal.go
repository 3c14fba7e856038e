package signal

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Options tune the WebSocket transport.
type Options struct {
	SendBuffer   int
	ReadLimit    int64
	WriteTimeout time.Duration
	AuthLimit    int
	AuthInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:   64,
		ReadLimit:    1 << 20,
		WriteTimeout: 5 * time.Second,
		AuthLimit:    5,
		AuthInterval: 10 * time.Second,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *AuthRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewAuthRateLimiter(opts.AuthLimit, opts.AuthInterval),
	}
}

// WsSignalConn is the server side of one signaling socket.
type WsSignalConn struct {
	conn    *websocket.Conn
	send    chan core.Frame
	closing chan struct{}

	mu     sync.RWMutex
	closed bool
	reason protocol.CloseReason
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn:    ws,
		send:    make(chan core.Frame, buffer),
		closing: make(chan struct{}),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close asks the write pump to send a close frame carrying reason. It never
// blocks, rooms call it under their lock.
func (c *WsSignalConn) Close(reason protocol.CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	close(c.closing)
}

func (c *WsSignalConn) closeReason() protocol.CloseReason {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal serves /ws/:room/:member?token=..&v=.. . Rejections happen
// after the upgrade so the client sees the close reason.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("conn_id"))
	fid := domain.MemberFID(domain.RoomID(c.Param("room")), domain.MemberID(c.Param("member")))
	lg := log.With().Str("module", "signal").Str("sid", string(sid)).Str("fid", fid.String()).Logger()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		lg.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	if v, err := strconv.Atoi(c.Query("v")); err != nil || v != protocol.Version {
		lg.Warn().Str("v", c.Query("v")).Msg("protocol version mismatch")
		ctl.reject(ws, protocol.CloseRejected)
		return
	}
	if !ctl.limiter.Allow(fid.String()) {
		lg.Warn().Msg("too many authorization attempts")
		ctl.reject(ws, protocol.CloseRejected)
		return
	}
	hb, err := ctl.Orch.Authorize(fid, c.Query("token"))
	if err != nil {
		lg.Warn().Err(err).Msg("authorization failed")
		ctl.reject(ws, protocol.CloseRejected)
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	settings, err := protocol.EncodeRpcSettings(hb.RpcSettings())
	if err != nil {
		lg.Error().Err(err).Msg("encode rpc settings")
		ctl.reject(ws, protocol.CloseInternal)
		return
	}
	_ = conn.TrySend(settings)

	ctx, cancel := context.WithCancel(ctx)
	sess, err := ctl.Orch.Join(sid, fid, conn, hb, cancel)
	if err != nil {
		cancel()
		lg.Warn().Err(err).Msg("join failed")
		ctl.reject(ws, protocol.CloseRejected)
		return
	}

	lg.Info().Msg("signaling session started")
	go ctl.writePump(ctx, conn, sess.Heartbeat())
	go ctl.readPump(ctx, sid, conn, sess.Heartbeat())
}

func (ctl *SignalWSController) reject(ws *websocket.Conn, reason protocol.CloseReason) {
	deadline := time.Now().Add(ctl.opts.WriteTimeout)
	_ = ws.WriteControl(websocket.CloseMessage, closeMessage(reason), deadline)
	_ = ws.Close()
}
