package callback

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTSender publishes callbacks to mqtt://host:port/topic URLs. One client
// per broker is kept open.
type MQTTSender struct {
	clientID  string
	timeout   time.Duration
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu      sync.Mutex
	clients map[string]mqtt.Client
}

func NewMQTTSender(clientID string, timeout time.Duration) *MQTTSender {
	return &MQTTSender{
		clientID:  clientID,
		timeout:   timeout,
		newClient: mqtt.NewClient,
		clients:   make(map[string]mqtt.Client),
	}
}

func (s *MQTTSender) Send(ctx context.Context, u *url.URL, body []byte) error {
	topic := strings.TrimPrefix(u.Path, "/")
	if topic == "" {
		return fmt.Errorf("callback url %s has no topic", u.Redacted())
	}
	c, err := s.client(ctx, u)
	if err != nil {
		return err
	}
	if err := wait(ctx, c.Publish(topic, 1, false, body)); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (s *MQTTSender) client(ctx context.Context, u *url.URL) (mqtt.Client, error) {
	broker := brokerURL(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[broker]; ok {
		return c, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(s.clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(s.timeout)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Str("module", "adapters.callback").Str("broker", broker).Err(err).Msg("mqtt connection lost")
	})

	c := s.newClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	s.clients[broker] = c
	return c, nil
}

func (s *MQTTSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for broker, c := range s.clients {
		c.Disconnect(250)
		delete(s.clients, broker)
	}
}

// brokerURL maps the callback scheme onto the one paho dials.
func brokerURL(u *url.URL) string {
	scheme := u.Scheme
	switch scheme {
	case "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	}
	return scheme + "://" + u.Host
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
