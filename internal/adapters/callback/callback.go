package callback

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported callback scheme")
	ErrRejected          = errors.New("callback rejected")
)

// Sender routes lifecycle callbacks by URL scheme.
type Sender struct {
	HTTP *HTTPSender
	MQTT *MQTTSender
}

var _ core.CallbackSender = (*Sender)(nil)

func New(timeout time.Duration, mqttClientID string) *Sender {
	return &Sender{
		HTTP: NewHTTPSender(timeout),
		MQTT: NewMQTTSender(mqttClientID, timeout),
	}
}

func (s *Sender) Send(ctx context.Context, rawURL string, ev core.CallbackEvent) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("callback url %q: %w", rawURL, err)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https":
		err = s.HTTP.Send(ctx, u, body)
	case "mqtt", "mqtts", "tcp", "ssl", "ws", "wss":
		err = s.MQTT.Send(ctx, u, body)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return err
	}
	log.Debug().Str("module", "adapters.callback").Str("fid", ev.FID).Str("event", string(ev.Event)).
		Str("host", u.Host).Msg("callback delivered")
	return nil
}

func (s *Sender) Close() {
	s.MQTT.Close()
}
