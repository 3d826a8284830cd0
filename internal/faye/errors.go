package faye

import "errors"

var (
	// ErrConnection means the transport could not be opened.
	ErrConnection = errors.New("faye: connection failed")
	// ErrTransport means an exchange failed at the I/O level.
	ErrTransport = errors.New("faye: transport error")
	// ErrHandshake means the broker refused or botched the handshake.
	ErrHandshake = errors.New("faye: handshake failed")
	// ErrProtocol means a reply could not be interpreted.
	ErrProtocol = errors.New("faye: protocol error")
	// ErrDelivery means the notification sink rejected an alert.
	ErrDelivery = errors.New("faye: delivery failed")
	// ErrRefused means the broker advised the client not to reconnect.
	ErrRefused = errors.New("faye: broker refused reconnect")
)
