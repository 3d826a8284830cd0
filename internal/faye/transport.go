package faye

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Transport opens channels to the broker. The engine only ever talks to this
// interface, so the strategy is a construction-time choice.
type Transport interface {
	// ConnectionType is the Bayeux connection type the transport speaks.
	ConnectionType() string
	// Open returns a live handle or an error wrapping ErrConnection.
	Open(ctx context.Context) (Conn, error)
}

// Conn is an open handle returned by Transport.Open.
type Conn interface {
	// Exchange sends out and returns the broker's reply. Errors wrap
	// ErrTransport or ErrProtocol.
	Exchange(ctx context.Context, out []Message) ([]Message, error)
	Close() error
}

// NewTransport builds the transport named by kind ("websocket" or
// "long-polling") for endpoint.
func NewTransport(kind, endpoint string) (Transport, error) {
	switch kind {
	case ConnWebSocket, "ws", "":
		return NewWebSocket(wsEndpoint(endpoint)), nil
	case ConnLongPolling, "longpoll", "http":
		return NewLongPoll(httpEndpoint(endpoint)), nil
	default:
		return nil, fmt.Errorf("faye: unknown transport %q", kind)
	}
}

// httpEndpoint converts wss://host/faye → https://host/faye so one endpoint
// setting serves both transports.
func httpEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	switch {
	case strings.HasPrefix(u.Scheme, "wss"):
		u.Scheme = "https"
	case strings.HasPrefix(u.Scheme, "ws"):
		u.Scheme = "http"
	}
	return u.String()
}

func wsEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String()
}
