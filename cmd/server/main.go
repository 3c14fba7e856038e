package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/huddle/internal/adapters/callback"
	router "github.com/dkeye/huddle/internal/adapters/http"
	"github.com/dkeye/huddle/internal/adapters/specs"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/protocol"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))

	settings := app.DefaultSettings()
	settings.Heartbeat.IdleTimeout = cfg.RPC.IdleTimeout
	settings.Heartbeat.ReconnectTimeout = cfg.RPC.ReconnectTimeout
	settings.Heartbeat.PingInterval = cfg.RPC.PingInterval
	for _, s := range cfg.IceServers {
		settings.IceServers = append(settings.IceServers, protocol.IceServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}

	callbacks := callback.New(cfg.Callback.Timeout, cfg.Callback.MQTTClientID)
	defer callbacks.Close()

	o := orch.New(app.NewRoomManager(settings, app.SimplePolicy{}, callbacks))
	if err := loadRooms(o, cfg.SpecsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to load room specs")
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		o.Shutdown()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}

// loadRooms creates the rooms described in dir.
func loadRooms(o *orch.Orchestrator, dir string) error {
	rooms, err := specs.LoadDir(dir)
	if err != nil {
		return err
	}
	for _, spec := range rooms {
		if err := o.CreateRoom(spec); err != nil {
			return fmt.Errorf("room %s: %w", spec.ID, err)
		}
	}
	log.Info().Str("dir", dir).Int("rooms", len(rooms)).Msg("room specs loaded")
	return nil
}
