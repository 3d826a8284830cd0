// Package faye implements the client side of the Bayeux protocol spoken by
// the GroupMe push broker: handshake, subscribe and connect over either a
// persistent websocket or repeated HTTP long-poll requests.
package faye

import (
	"encoding/json"
	"fmt"
)

// Meta channels used by the client.
const (
	ChannelHandshake = "/meta/handshake"
	ChannelSubscribe = "/meta/subscribe"
	ChannelConnect   = "/meta/connect"
)

// Connection types advertised in handshake and connect messages.
const (
	ConnWebSocket   = "websocket"
	ConnLongPolling = "long-polling"
)

// ProtocolVersion is the Bayeux version declared during handshake.
const ProtocolVersion = "1.0"

// Reconnect advice values sent by the broker.
const (
	ReconnectRetry     = "retry"
	ReconnectHandshake = "handshake"
	ReconnectNone      = "none"
)

// Message is one Bayeux message. Requests and replies share the envelope;
// exchanges always carry arrays of messages.
type Message struct {
	Channel                  string          `json:"channel"`
	ID                       string          `json:"id,omitempty"`
	ClientID                 string          `json:"clientId,omitempty"`
	Version                  string          `json:"version,omitempty"`
	SupportedConnectionTypes []string        `json:"supportedConnectionTypes,omitempty"`
	ConnectionType           string          `json:"connectionType,omitempty"`
	Subscription             string          `json:"subscription,omitempty"`
	Successful               *bool           `json:"successful,omitempty"`
	Error                    string          `json:"error,omitempty"`
	Advice                   *Advice         `json:"advice,omitempty"`
	Ext                      *Ext            `json:"ext,omitempty"`
	Data                     json.RawMessage `json:"data,omitempty"`
}

// Advice carries the broker's reconnect instructions.
type Advice struct {
	Reconnect string `json:"reconnect,omitempty"`
	Interval  int    `json:"interval,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}

// Ext is the extension block GroupMe uses to authorize subscriptions.
type Ext struct {
	AccessToken string `json:"access_token,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// OK reports whether the broker marked the message successful.
func (m Message) OK() bool {
	return m.Successful != nil && *m.Successful
}

// IsMeta reports whether the message belongs to a /meta/ channel.
func (m Message) IsMeta() bool {
	return len(m.Channel) >= 6 && m.Channel[:6] == "/meta/"
}

// UserChannel returns the subscription channel for a GroupMe user id.
func UserChannel(subjectID string) string {
	return "/user/" + subjectID
}

// encodeMessages marshals an outbound exchange.
func encodeMessages(msgs []Message) ([]byte, error) {
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrTransport, err)
	}
	return data, nil
}

// decodeMessages parses a broker reply. Anything other than a JSON array of
// objects is a protocol error.
func decodeMessages(data []byte) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrProtocol, err)
	}
	return msgs, nil
}
