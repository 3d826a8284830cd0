package faye

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
)

// maxReplySize caps a single long-poll reply body.
const maxReplySize = 1 << 20

// LongPoll sends every exchange as an independent HTTP POST to a fixed
// endpoint. The broker holds /meta/connect requests open until it has data
// or its own timeout elapses.
type LongPoll struct {
	endpoint string
}

// NewLongPoll creates a transport posting to the given http:// or https://
// endpoint.
func NewLongPoll(endpoint string) *LongPoll {
	return &LongPoll{endpoint: endpoint}
}

func (l *LongPoll) ConnectionType() string { return ConnLongPolling }

// Open validates the endpoint and prepares a dedicated HTTP client. No
// request is made until the first exchange.
func (l *LongPoll) Open(ctx context.Context) (Conn, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", ErrConnection, l.endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q is not an http endpoint", ErrConnection, l.endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrConnection, l.endpoint)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &pollConn{
		endpoint: u.String(),
		client:   &http.Client{Transport: transport},
	}, nil
}

type pollConn struct {
	endpoint string
	client   *http.Client
	closed   atomic.Bool
}

// Exchange posts out and decodes the reply. The request deadline comes from ctx.
func (c *pollConn) Exchange(ctx context.Context, out []Message) ([]Message, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: connection closed", ErrTransport)
	}
	data, err := encodeMessages(out)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %v", ErrTransport, c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: POST %s: %d %s", ErrTransport, c.endpoint, resp.StatusCode, string(body))
	}
	return decodeMessages(body)
}

func (c *pollConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.client.CloseIdleConnections()
	}
	return nil
}
