package rtc

import (
	"context"

	"github.com/rs/zerolog"
)

// pump reads packets from src and forwards them through the gate until ctx
// ends, the source fails or the gate closes.
func pump(ctx context.Context, src PacketSource, g *SendGate, logger *zerolog.Logger) {
	defer func() {
		g.Close()
		if err := src.Close(); err != nil {
			logger.Debug().Err(err).Msg("source close")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("pump ctx done")
			return
		default:
		}
		pkt, err := src.ReadRTP(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("read RTP error, stopping")
			}
			return
		}
		if err := g.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("write RTP error, gate closed")
			return
		}
		if g.State() == GateClosed {
			return
		}
	}
}
