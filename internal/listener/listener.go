// Package listener owns the background notification task: it starts the
// push session engine on its own goroutine and stops it on request.
package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gmtui/gmtui/internal/faye"
	"github.com/rs/zerolog"
)

var ErrInvalidOptions = errors.New("listener: invalid options")

// Options configures Start.
type Options struct {
	SubjectID  string
	Credential string
	Transport  faye.Transport
	Sink       faye.Sink

	RenewAfter      time.Duration
	HandshakeRetry  time.Duration
	ExchangeTimeout time.Duration

	Logger zerolog.Logger
}

// Handle controls a running listener.
type Handle struct {
	engine *faye.Engine
	cancel context.CancelFunc
	log    zerolog.Logger

	done chan struct{}
	err  error
}

// Start opens the transport and launches the engine. Failure to open is
// returned here (wrapping faye.ErrConnection) and nothing is left running.
// Cancelling ctx has the same effect as RequestShutdown.
func Start(ctx context.Context, opts Options) (*Handle, error) {
	if opts.SubjectID == "" {
		return nil, fmt.Errorf("%w: missing subject id", ErrInvalidOptions)
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: missing transport", ErrInvalidOptions)
	}

	log := opts.Logger.With().Str("component", "listener").Logger()
	engine := faye.NewEngine(opts.Transport, opts.Sink, faye.Config{
		SubjectID:       opts.SubjectID,
		Credential:      opts.Credential,
		RenewAfter:      opts.RenewAfter,
		HandshakeRetry:  opts.HandshakeRetry,
		ExchangeTimeout: opts.ExchangeTimeout,
	}, log)

	runCtx, cancel := context.WithCancel(ctx)
	if err := engine.Open(runCtx); err != nil {
		cancel()
		return nil, err
	}

	h := &Handle{
		engine: engine,
		cancel: cancel,
		log:    log,
		done:   make(chan struct{}),
	}
	go h.run(runCtx)
	log.Info().
		Str("transport", opts.Transport.ConnectionType()).
		Str("subscription", faye.UserChannel(opts.SubjectID)).
		Msg("listener started")
	return h, nil
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer h.cancel()
	h.err = h.engine.Run(ctx)
	if h.err != nil {
		h.log.Error().Err(h.err).Msg("listener stopped")
		return
	}
	h.log.Info().Msg("listener stopped")
}

// RequestShutdown asks the engine to stop after its current exchange. It is
// safe to call more than once and from any goroutine.
func (h *Handle) RequestShutdown() {
	h.cancel()
}

// Done is closed when the background task has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the background task exits and returns its error. A
// requested shutdown yields nil.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Shutdown requests shutdown and waits for it, giving up when ctx ends.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.RequestShutdown()
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the engine's counters.
func (h *Handle) Stats() faye.Stats {
	return h.engine.Stats()
}

// State returns the engine's lifecycle state.
func (h *Handle) State() faye.State {
	return h.engine.State()
}
