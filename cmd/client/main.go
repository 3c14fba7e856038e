package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/huddle/internal/adapters/rtc"
	"github.com/dkeye/huddle/internal/client"
	"github.com/dkeye/huddle/internal/client/rpc"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

type flags struct {
	url    string
	room   string
	member string
	token  string
	muted  bool
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "huddle-client",
		Short:        "Join a room as a member and log what happens to its peers and tracks",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.url, "url", "", "signaling base url (overrides the config file)")
	cmd.Flags().StringVarP(&f.room, "room", "r", "", "room id")
	cmd.Flags().StringVarP(&f.member, "member", "m", "", "member id")
	cmd.Flags().StringVarP(&f.token, "token", "t", "", "member credentials")
	cmd.Flags().BoolVar(&f.muted, "muted", false, "join with outgoing audio muted")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))
	if f.url != "" {
		cfg.URL = f.url
	}
	endpoint, err := rpc.Endpoint(cfg.URL, f.room, f.member, f.token)
	if err != nil {
		return err
	}

	media, err := rtc.NewFactory(nil, rtc.NewLoggerFactory(zerolog.WarnLevel))
	if err != nil {
		return err
	}

	opts := rpc.DefaultOptions()
	opts.AutoReconnect = cfg.Reconnect.Auto
	opts.Backoff = rpc.Backoff{
		InitialDelay: cfg.Reconnect.InitialDelay,
		Multiplier:   cfg.Reconnect.Multiplier,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		MaxElapsed:   cfg.Reconnect.MaxElapsed,
	}

	room := client.NewRoom(context.Background(), media, callbacks(opts))
	if f.muted {
		if err := room.SetMediaMuted(domain.MediaAudio, true); err != nil {
			return err
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		log.Info().Msg("leaving room")
		room.Leave()
	}()

	log.Info().Str("room", f.room).Str("member", f.member).Msg("joining")
	err = room.Join(context.Background(), endpoint, opts)
	select {
	case <-room.Done():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("room did not close in time")
	}
	return err
}

func callbacks(opts rpc.Options) client.Callbacks {
	track := func(msg string) func(client.TrackInfo) {
		return func(t client.TrackInfo) {
			log.Info().Stringer("track", t.ID).Stringer("peer", t.Peer).Str("member", string(t.Member)).
				Str("direction", string(t.Direction)).Str("kind", string(t.Media.Kind)).
				Bool("enabled", t.Enabled).Bool("muted", t.Muted).Msg(msg)
		}
	}
	return client.Callbacks{
		OnConnectionOpened: func(m domain.MemberID) { log.Info().Str("member", string(m)).Msg("connection opened") },
		OnConnectionClosed: func(m domain.MemberID) { log.Info().Str("member", string(m)).Msg("connection closed") },
		OnTrackAdded:       track("track added"),
		OnTrackEnabled:     track("track enabled"),
		OnTrackDisabled:    track("track disabled"),
		OnTrackMuted:       track("track muted"),
		OnTrackUnmuted:     track("track unmuted"),
		OnTrackStopped:     track("track stopped"),
		OnFailedLocalMedia: func(e *client.Error) { log.Warn().Str("kind", string(e.Kind)).Msg(e.Cause) },
		OnError:            func(e *client.Error) { log.Error().Str("kind", string(e.Kind)).Msg(e.Cause) },
		OnConnectionLoss: func(h rpc.ReconnectHandle) {
			log.Warn().Bool("auto", opts.AutoReconnect).Msg("signaling lost")
			if !opts.AutoReconnect {
				h.ReconnectWithBackoff(opts.Backoff)
			}
		},
		OnRoomClosed: func(reason protocol.CloseReason, err error) {
			log.Info().Str("reason", string(reason)).Err(err).Msg("room closed")
		},
	}
}
