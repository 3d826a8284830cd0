package faye

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultRenewAfter      = time.Hour
	DefaultHandshakeRetry  = 5 * time.Second
	DefaultExchangeTimeout = 45 * time.Second
)

// State is the engine's position in the session lifecycle.
type State int32

const (
	StateUnestablished State = iota
	StateHandshaking
	StateSubscribing
	StatePolling
	StateRenewing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnestablished:
		return "unestablished"
	case StateHandshaking:
		return "handshaking"
	case StateSubscribing:
		return "subscribing"
	case StatePolling:
		return "polling"
	case StateRenewing:
		return "renewing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink receives decoded alerts.
type Sink interface {
	Deliver(Alert) error
}

// Config holds the engine's identity and timing.
type Config struct {
	// SubjectID is the GroupMe user id whose channel is subscribed.
	SubjectID string
	// Credential is sent as ext.access_token on subscribe.
	Credential string

	RenewAfter      time.Duration
	HandshakeRetry  time.Duration
	ExchangeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RenewAfter <= 0 {
		c.RenewAfter = DefaultRenewAfter
	}
	if c.HandshakeRetry <= 0 {
		c.HandshakeRetry = DefaultHandshakeRetry
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = DefaultExchangeTimeout
	}
	return c
}

// Session is one broker-issued client identity.
type Session struct {
	ClientID      string
	EstablishedAt time.Time
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Handshakes        uint64
	Renewals          uint64
	SubscribeFailures uint64
	Polls             uint64
	Alerts            uint64
	DeliveryFailures  uint64
	ProtocolErrors    uint64
	TransportErrors   uint64
}

type counters struct {
	handshakes        atomic.Uint64
	renewals          atomic.Uint64
	subscribeFailures atomic.Uint64
	polls             atomic.Uint64
	alerts            atomic.Uint64
	deliveryFailures  atomic.Uint64
	protocolErrors    atomic.Uint64
	transportErrors   atomic.Uint64
}

// Engine drives handshake → subscribe → connect against a Transport. All
// protocol state lives on the engine and is touched only by the goroutine
// calling Run; State and Stats are safe to read from anywhere.
type Engine struct {
	cfg       Config
	transport Transport
	sink      Sink
	log       zerolog.Logger
	now       func() time.Time

	conn    Conn
	opened  bool
	session *Session
	nextID  uint64

	state atomic.Int32
	stats counters
}

// NewEngine creates an engine. sink may be nil, in which case alerts are
// only counted.
func NewEngine(t Transport, sink Sink, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		transport: t,
		sink:      sink,
		log:       log,
		now:       time.Now,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Handshakes:        e.stats.handshakes.Load(),
		Renewals:          e.stats.renewals.Load(),
		SubscribeFailures: e.stats.subscribeFailures.Load(),
		Polls:             e.stats.polls.Load(),
		Alerts:            e.stats.alerts.Load(),
		DeliveryFailures:  e.stats.deliveryFailures.Load(),
		ProtocolErrors:    e.stats.protocolErrors.Load(),
		TransportErrors:   e.stats.transportErrors.Load(),
	}
}

// Open opens the transport. Failure wraps ErrConnection and is the only
// error the engine escalates at startup.
func (e *Engine) Open(ctx context.Context) error {
	conn, err := e.transport.Open(ctx)
	if err != nil {
		return err
	}
	e.conn = conn
	e.opened = true
	return nil
}

// Run loops until ctx is cancelled and returns nil on shutdown. It returns an
// error only when the first Open fails or the broker refuses reconnection.
// The transport is closed before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.teardown()

	if stopping(ctx) {
		return nil
	}
	if !e.opened {
		if err := e.Open(ctx); err != nil {
			return err
		}
	}

	for {
		if stopping(ctx) {
			e.log.Debug().Msg("shutdown observed")
			return nil
		}

		if e.conn == nil {
			conn, err := e.transport.Open(ctx)
			if err != nil {
				e.log.Warn().Err(err).Dur("retry", e.cfg.HandshakeRetry).Msg("reopen failed")
				if !wait(ctx, e.cfg.HandshakeRetry) {
					return nil
				}
				continue
			}
			e.conn = conn
		}

		if e.session != nil && e.now().Sub(e.session.EstablishedAt) >= e.cfg.RenewAfter {
			e.setState(StateRenewing)
			e.stats.renewals.Add(1)
			e.log.Info().
				Str("client_id", e.session.ClientID).
				Dur("age", e.now().Sub(e.session.EstablishedAt)).
				Msg("renewing session")
			e.session = nil
		}

		if e.session == nil {
			if err := e.establish(ctx); err != nil {
				e.fail(err)
				e.log.Warn().Err(err).Dur("retry", e.cfg.HandshakeRetry).Msg("session not established")
				if !wait(ctx, e.cfg.HandshakeRetry) {
					return nil
				}
			}
			continue
		}

		if err := e.poll(ctx); err != nil {
			if errors.Is(err, ErrRefused) {
				return err
			}
			e.fail(err)
			e.log.Warn().Err(err).Msg("poll failed")
		}
	}
}

// establish replaces the session: handshake, then subscribe. A subscribe
// that is not acknowledged is counted and logged but does not fail the
// session; only a broken transport does.
func (e *Engine) establish(ctx context.Context) error {
	e.setState(StateHandshaking)
	s, err := e.handshake(ctx)
	if err != nil {
		return err
	}
	e.session = s
	e.log.Info().Str("client_id", s.ClientID).Msg("handshake complete")

	if stopping(ctx) {
		return nil
	}

	e.setState(StateSubscribing)
	if err := e.subscribe(ctx); err != nil {
		e.stats.subscribeFailures.Add(1)
		if errors.Is(err, ErrTransport) {
			return err
		}
		e.log.Warn().Err(err).
			Str("subscription", UserChannel(e.cfg.SubjectID)).
			Msg("subscribe not acknowledged, polling anyway")
	}
	e.setState(StatePolling)
	return nil
}

func (e *Engine) handshake(ctx context.Context) (*Session, error) {
	reply, err := e.send(ctx, Message{
		Channel:                  ChannelHandshake,
		Version:                  ProtocolVersion,
		SupportedConnectionTypes: []string{e.transport.ConnectionType()},
	})
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	ack := metaReply(reply, ChannelHandshake)
	if ack == nil {
		return nil, fmt.Errorf("%w: empty reply", ErrHandshake)
	}
	if ack.Successful != nil && !*ack.Successful {
		return nil, fmt.Errorf("%w: %s", ErrHandshake, ack.Error)
	}
	if ack.ClientID == "" {
		return nil, fmt.Errorf("%w: reply has no clientId", ErrHandshake)
	}
	e.stats.handshakes.Add(1)
	return &Session{ClientID: ack.ClientID, EstablishedAt: e.now()}, nil
}

func (e *Engine) subscribe(ctx context.Context) error {
	reply, err := e.send(ctx, Message{
		Channel:      ChannelSubscribe,
		ClientID:     e.session.ClientID,
		Subscription: UserChannel(e.cfg.SubjectID),
		Ext: &Ext{
			AccessToken: e.cfg.Credential,
			Timestamp:   strconv.FormatInt(e.now().Unix(), 10),
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	ack := metaReply(reply, ChannelSubscribe)
	if ack == nil || !ack.OK() {
		reason := "no acknowledgment"
		if ack != nil && ack.Error != "" {
			reason = ack.Error
		}
		return fmt.Errorf("%w: subscribe %s: %s", ErrProtocol, UserChannel(e.cfg.SubjectID), reason)
	}
	return nil
}

// poll performs one connect exchange and hands any alerts to the sink.
func (e *Engine) poll(ctx context.Context) error {
	e.stats.polls.Add(1)
	reply, err := e.send(ctx, Message{
		Channel:        ChannelConnect,
		ClientID:       e.session.ClientID,
		ConnectionType: e.transport.ConnectionType(),
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if len(reply) == 0 {
		return fmt.Errorf("%w: empty connect reply", ErrProtocol)
	}

	if ack := metaReply(reply, ChannelConnect); ack != nil && ack.Successful != nil && !*ack.Successful {
		reconnect := ""
		if ack.Advice != nil {
			reconnect = ack.Advice.Reconnect
		}
		switch reconnect {
		case ReconnectNone:
			return fmt.Errorf("%w: %s", ErrRefused, ack.Error)
		case ReconnectHandshake:
			e.log.Info().Str("error", ack.Error).Msg("broker requested new handshake")
			e.session = nil
		default:
			e.log.Debug().Str("error", ack.Error).Msg("connect unsuccessful")
		}
	}

	for _, a := range DecodeAll(reply) {
		e.deliver(a)
	}
	return nil
}

func (e *Engine) deliver(a Alert) {
	e.stats.alerts.Add(1)
	if e.sink == nil {
		return
	}
	if err := e.sink.Deliver(a); err != nil {
		e.stats.deliveryFailures.Add(1)
		e.log.Warn().Err(fmt.Errorf("%w: %v", ErrDelivery, err)).Msg("notification dropped")
	}
}

// send stamps m with the next request id and exchanges it. The id is spent
// whether or not the exchange succeeds. Shutdown does not interrupt an
// exchange in flight; only ExchangeTimeout bounds it.
func (e *Engine) send(ctx context.Context, m Message) ([]Message, error) {
	e.nextID++
	m.ID = strconv.FormatUint(e.nextID, 10)

	xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ExchangeTimeout)
	defer cancel()

	e.log.Debug().Str("channel", m.Channel).Str("id", m.ID).Msg("send")
	return e.conn.Exchange(xctx, []Message{m})
}

// fail records err and drops whatever state it invalidated.
func (e *Engine) fail(err error) {
	switch {
	case errors.Is(err, ErrTransport):
		e.stats.transportErrors.Add(1)
		e.dropConn()
	case errors.Is(err, ErrProtocol):
		e.stats.protocolErrors.Add(1)
	}
}

// dropConn closes a broken handle; the session dies with it.
func (e *Engine) dropConn() {
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.session = nil
	e.setState(StateUnestablished)
}

func (e *Engine) teardown() {
	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			e.log.Debug().Err(err).Msg("close transport")
		}
		e.conn = nil
	}
	e.session = nil
	e.setState(StateClosed)
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// metaReply finds the acknowledgment for channel. A leading message without
// a channel is accepted as the acknowledgment.
func metaReply(reply []Message, channel string) *Message {
	for i := range reply {
		if reply[i].Channel == channel {
			return &reply[i]
		}
	}
	if len(reply) > 0 && reply[0].Channel == "" {
		return &reply[0]
	}
	return nil
}

func stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
