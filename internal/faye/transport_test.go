package faye_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gmtui/gmtui/internal/faye"
	"github.com/gmtui/gmtui/internal/faye/fayetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sinkFunc adapts a function to faye.Sink.
type sinkFunc func(faye.Alert) error

func (f sinkFunc) Deliver(a faye.Alert) error { return f(a) }

// collect returns a sink that records alerts and cancels once n arrive.
func collect(n int, cancel context.CancelFunc) (faye.Sink, func() []string) {
	var mu sync.Mutex
	var got []string
	sink := sinkFunc(func(a faye.Alert) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, a.Body)
		if len(got) >= n {
			cancel()
		}
		return nil
	})
	return sink, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}
}

func runAgainstBroker(t *testing.T, b *fayetest.Broker, tr faye.Transport) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sink, got := collect(1, cancel)
	b.Publish("New message from Alice")

	e := faye.NewEngine(tr, sink, faye.Config{SubjectID: "42", Credential: "secret"}, zerolog.Nop())
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, []string{"New message from Alice"}, got())
	channels := b.Channels()
	require.GreaterOrEqual(t, len(channels), 3)
	assert.Equal(t, []string{faye.ChannelHandshake, faye.ChannelSubscribe, faye.ChannelConnect}, channels[:3])

	sub := b.Received()[1]
	assert.Equal(t, "/user/42", sub.Subscription)
	assert.Equal(t, "client-1", sub.ClientID)
	assert.Equal(t, faye.StateClosed, e.State())
}

func TestWebSocketAgainstBroker(t *testing.T) {
	b := fayetest.NewBroker()
	defer b.Close()
	b.SetToken("secret")
	runAgainstBroker(t, b, faye.NewWebSocket(b.WSURL()))
	assert.Equal(t, faye.ConnWebSocket, b.Received()[2].ConnectionType)
}

func TestLongPollAgainstBroker(t *testing.T) {
	b := fayetest.NewBroker()
	defer b.Close()
	b.SetToken("secret")
	runAgainstBroker(t, b, faye.NewLongPoll(b.URL()))
	assert.Equal(t, faye.ConnLongPolling, b.Received()[2].ConnectionType)
	assert.Equal(t, []string{faye.ConnLongPolling}, b.Received()[0].SupportedConnectionTypes)
}

func TestEngineRehandshakesWhenBrokerForgetsClient(t *testing.T) {
	b := fayetest.NewBroker()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []string
	sink := sinkFunc(func(a faye.Alert) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, a.Body)
		switch len(got) {
		case 1:
			b.Forget()
			b.Publish("second")
		case 2:
			cancel()
		}
		return nil
	})
	b.Publish("first")

	e := faye.NewEngine(faye.NewWebSocket(b.WSURL()), sink, faye.Config{SubjectID: "42"}, zerolog.Nop())
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, []string{"first", "second"}, got)
	handshakes := 0
	for _, ch := range b.Channels() {
		if ch == faye.ChannelHandshake {
			handshakes++
		}
	}
	assert.Equal(t, 2, handshakes)
	assert.Equal(t, uint64(2), e.Stats().Handshakes)
}

func TestWebSocketOpenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + srv.URL[len("http"):] + "/faye"
	srv.Close()

	_, err := faye.NewWebSocket(url).Open(context.Background())
	require.ErrorIs(t, err, faye.ErrConnection)
}

func TestLongPollOpenRejectsBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"ftp://push.example.com/faye", "https://", "::nope"} {
		_, err := faye.NewLongPoll(endpoint).Open(context.Background())
		assert.ErrorIs(t, err, faye.ErrConnection, endpoint)
	}
}

func TestLongPollErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", faye.ErrTransport},
		{"not an array", http.StatusOK, `{"successful": true}`, faye.ErrProtocol},
		{"not json", http.StatusOK, `<html>`, faye.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			conn, err := faye.NewLongPoll(srv.URL).Open(context.Background())
			require.NoError(t, err)
			defer conn.Close()

			_, err = conn.Exchange(context.Background(), []faye.Message{{Channel: faye.ChannelHandshake}})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLongPollExchangeAfterClose(t *testing.T) {
	conn, err := faye.NewLongPoll("http://127.0.0.1:1/faye").Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Exchange(context.Background(), []faye.Message{{Channel: faye.ChannelConnect}})
	require.ErrorIs(t, err, faye.ErrTransport)
}

func TestWebSocketReadTimeout(t *testing.T) {
	b := fayetest.NewBroker()
	defer b.Close()
	b.SetHold(time.Second)

	conn, err := faye.NewWebSocket(b.WSURL()).Open(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	reply, err := conn.Exchange(context.Background(), []faye.Message{{Channel: faye.ChannelHandshake, ID: "1"}})
	require.NoError(t, err)
	clientID := reply[0].ClientID
	_, err = conn.Exchange(context.Background(), []faye.Message{{Channel: faye.ChannelSubscribe, ID: "2", ClientID: clientID, Subscription: "/user/42"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = conn.Exchange(ctx, []faye.Message{{Channel: faye.ChannelConnect, ID: "3", ClientID: clientID}})
	require.ErrorIs(t, err, faye.ErrTransport)
}

func TestNewTransport(t *testing.T) {
	tr, err := faye.NewTransport("websocket", "https://push.groupme.com/faye")
	require.NoError(t, err)
	assert.Equal(t, faye.ConnWebSocket, tr.ConnectionType())

	tr, err = faye.NewTransport("long-polling", "wss://push.groupme.com/faye")
	require.NoError(t, err)
	assert.Equal(t, faye.ConnLongPolling, tr.ConnectionType())

	_, err = faye.NewTransport("carrier-pigeon", "wss://push.groupme.com/faye")
	require.Error(t, err)
}
