// Package fayetest provides an in-process Bayeux broker that speaks the
// GroupMe dialect over both websocket and HTTP long-polling.
package fayetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gmtui/gmtui/internal/faye"
	"github.com/gorilla/websocket"
)

// DefaultHold is how long a connect is held open when nothing is queued.
const DefaultHold = 50 * time.Millisecond

// Broker is a minimal broker. Alerts passed to Publish are delivered on the
// next connect of any subscribed client.
type Broker struct {
	srv  *httptest.Server
	done chan struct{}

	mu         sync.Mutex
	token      string
	hold       time.Duration
	clients    map[string]string // clientId -> subscription
	nextClient int
	pending    []string
	wake       chan struct{}
	received   []faye.Message
}

// NewBroker starts a broker on a loopback httptest server.
func NewBroker() *Broker {
	b := &Broker{
		hold:    DefaultHold,
		done:    make(chan struct{}),
		clients: make(map[string]string),
		wake:    make(chan struct{}),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// URL is the long-poll endpoint.
func (b *Broker) URL() string { return b.srv.URL + "/faye" }

// WSURL is the websocket endpoint.
func (b *Broker) WSURL() string { return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/faye" }

// Close stops the broker and releases held connects.
func (b *Broker) Close() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}
	b.srv.CloseClientConnections()
	b.srv.Close()
}

// SetToken makes subscribe require ext.access_token == token.
func (b *Broker) SetToken(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

// SetHold bounds how long a connect waits for an alert.
func (b *Broker) SetHold(d time.Duration) {
	b.mu.Lock()
	b.hold = d
	b.mu.Unlock()
}

// Publish queues an alert.
func (b *Broker) Publish(alert string) {
	b.mu.Lock()
	b.pending = append(b.pending, alert)
	close(b.wake)
	b.wake = make(chan struct{})
	b.mu.Unlock()
}

// Forget drops every known client, so the next connect is told to handshake.
func (b *Broker) Forget() {
	b.mu.Lock()
	b.clients = make(map[string]string)
	b.mu.Unlock()
}

// Received returns a copy of every message the broker has read.
func (b *Broker) Received() []faye.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]faye.Message(nil), b.received...)
}

// Channels returns the channel of every received message, in order.
func (b *Broker) Channels() []string {
	msgs := b.Received()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Channel
	}
	return out
}

func (b *Broker) serve(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		b.serveWS(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	var msgs []faye.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b.handle(msgs))
}

func (b *Broker) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msgs []faye.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return
		}
		if err := conn.WriteJSON(b.handle(msgs)); err != nil {
			return
		}
	}
}

func (b *Broker) handle(msgs []faye.Message) []faye.Message {
	var reply []faye.Message
	for _, m := range msgs {
		b.mu.Lock()
		b.received = append(b.received, m)
		b.mu.Unlock()

		switch m.Channel {
		case faye.ChannelHandshake:
			reply = append(reply, b.handshake(m))
		case faye.ChannelSubscribe:
			reply = append(reply, b.subscribe(m))
		case faye.ChannelConnect:
			reply = append(reply, b.connect(m)...)
		default:
			reply = append(reply, fail(m, "400::Unknown channel", ""))
		}
	}
	return reply
}

func (b *Broker) handshake(m faye.Message) faye.Message {
	b.mu.Lock()
	b.nextClient++
	id := fmt.Sprintf("client-%d", b.nextClient)
	b.clients[id] = ""
	b.mu.Unlock()

	ok := true
	return faye.Message{
		Channel:                  faye.ChannelHandshake,
		ID:                       m.ID,
		ClientID:                 id,
		Version:                  faye.ProtocolVersion,
		SupportedConnectionTypes: []string{faye.ConnWebSocket, faye.ConnLongPolling},
		Successful:               &ok,
	}
}

func (b *Broker) subscribe(m faye.Message) faye.Message {
	b.mu.Lock()
	_, known := b.clients[m.ClientID]
	authorized := b.token == "" || (m.Ext != nil && m.Ext.AccessToken == b.token)
	if known && authorized {
		b.clients[m.ClientID] = m.Subscription
	}
	b.mu.Unlock()

	if !known {
		return fail(m, "401::Unknown client", faye.ReconnectHandshake)
	}
	if !authorized {
		return fail(m, "401::Unauthorized", "")
	}
	ok := true
	return faye.Message{Channel: faye.ChannelSubscribe, ID: m.ID, ClientID: m.ClientID, Subscription: m.Subscription, Successful: &ok}
}

func (b *Broker) connect(m faye.Message) []faye.Message {
	b.mu.Lock()
	sub, known := b.clients[m.ClientID]
	b.mu.Unlock()
	if !known {
		return []faye.Message{fail(m, "401::Unknown client", faye.ReconnectHandshake)}
	}

	ok := true
	reply := []faye.Message{{Channel: faye.ChannelConnect, ID: m.ID, ClientID: m.ClientID, Successful: &ok}}
	if sub == "" {
		return reply
	}
	for _, alert := range b.await() {
		data, _ := json.Marshal(map[string]any{"type": "line.create", "alert": alert})
		reply = append(reply, faye.Message{Channel: sub, Data: data})
	}
	return reply
}

// await returns queued alerts, waiting up to Hold for one to arrive.
func (b *Broker) await() []string {
	b.mu.Lock()
	hold := b.hold
	b.mu.Unlock()
	timer := time.NewTimer(hold)
	defer timer.Stop()
	for {
		b.mu.Lock()
		if len(b.pending) > 0 {
			out := b.pending
			b.pending = nil
			b.mu.Unlock()
			return out
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return nil
		case <-b.done:
			return nil
		}
	}
}

func fail(m faye.Message, reason, reconnect string) faye.Message {
	ok := false
	out := faye.Message{Channel: m.Channel, ID: m.ID, ClientID: m.ClientID, Successful: &ok, Error: reason}
	if reconnect != "" {
		out.Advice = &faye.Advice{Reconnect: reconnect}
	}
	return out
}
