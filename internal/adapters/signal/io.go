package signal

import (
	"context"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn, hb core.Heartbeat) {
	ticker := time.NewTicker(hb.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	var n uint32
	for {
		select {
		case <-ctx.Done():
			// a close requested together with the cancel still goes out
			select {
			case <-c.closing:
				ctl.writeClose(c)
			default:
			}
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-c.closing:
			ctl.writeClose(c)
			return
		case <-ticker.C:
			n++
			ping, err := protocol.EncodePing(n)
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump encode ping")
				return
			}
			if err := ctl.write(c, ping); err != nil {
				return
			}
		case data := <-c.send:
			if err := ctl.write(c, data); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) writeClose(c *WsSignalConn) {
	deadline := time.Now().Add(ctl.opts.WriteTimeout)
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage(c.closeReason()), deadline); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("writePump close frame")
	}
}

func (ctl *SignalWSController) write(c *WsSignalConn, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
		return err
	}
	return nil
}

// readPump feeds frames to the orchestrator. Any frame, pongs included,
// extends the idle deadline.
func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn, hb core.Heartbeat) {
	clean := false
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("clean", clean).Msg("readPump closing")
		ctl.Orch.Closed(sid, clean)
		c.Close(protocol.CloseIdle)
	}()

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(hb.IdleTimeout)); err != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			clean = cleanClose(err)
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := ctl.Orch.OnFrame(sid, data); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("frame rejected")
		}
	}
}
