package http

import (
	"context"
	"net/http"

	"github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ConnIDMiddleware tags every request with a fresh id. The signaling
// endpoint uses it as the session id.
func ConnIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("conn_id", uuid.NewString())
		c.Next()
	}
}

// SignalOptions maps the signal config section onto the transport options.
func SignalOptions(cfg config.SignalConfig) signal.Options {
	opts := signal.DefaultOptions()
	if cfg.SendBuffer > 0 {
		opts.SendBuffer = cfg.SendBuffer
	}
	if cfg.ReadLimit > 0 {
		opts.ReadLimit = cfg.ReadLimit
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.AuthInterval > 0 {
		opts.AuthInterval = cfg.AuthInterval
	}
	opts.AuthLimit = cfg.AuthLimit
	return opts
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ConnIDMiddleware())

	ctrl := signal.NewSignalWSController(o, SignalOptions(cfg.Signal))
	r.GET("/ws/:room/:member", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("conn_id")).
			Str("room", c.Param("room")).Str("member", c.Param("member")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": o.Registry.Len()})
	})
	r.GET("/api/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
