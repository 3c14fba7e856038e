package rpc

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pkg/errors"
)

// Backoff configures reconnection delays. A zero MaxElapsed retries forever.
type Backoff struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxElapsed   time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		MaxElapsed:   time.Minute,
	}
}

func (b Backoff) policy() *backoff.ExponentialBackOff {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = b.InitialDelay
	p.Multiplier = b.Multiplier
	p.MaxInterval = b.MaxDelay
	p.MaxElapsedTime = b.MaxElapsed
	p.RandomizationFactor = 0
	p.Reset()
	return p
}

type Options struct {
	// AutoReconnect starts the backoff on its own after a lost session.
	// Without it the client waits for a Reconnect call.
	AutoReconnect bool
	Backoff       Backoff
	SendBuffer    int
	WriteTimeout  time.Duration
	// IdleTimeout applies until the server sends its rpc settings.
	IdleTimeout time.Duration
	DialTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		AutoReconnect: true,
		Backoff:       DefaultBackoff(),
		SendBuffer:    64,
		WriteTimeout:  5 * time.Second,
		IdleTimeout:   10 * time.Second,
		DialTimeout:   5 * time.Second,
	}
}

// Endpoint builds the signaling url of a member from the server base url,
// e.g. ws://host:8080/ws.
func Endpoint(base, room, member, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "signaling url")
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("signaling url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(room) + "/" + url.PathEscape(member)
	q := u.Query()
	q.Set("token", token)
	q.Set("v", strconv.Itoa(protocol.Version))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
