// Package notify delivers alerts to the desktop and to other sinks.
package notify

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/gmtui/gmtui/internal/faye"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimited = errors.New("notify: rate limited")
	ErrUnavailable = errors.New("notify: desktop notifications unavailable")
)

const (
	DefaultAppName = "gmtui"
	DefaultSummary = "GroupMe"
	DefaultIcon    = "mail-unread"
)

// DefaultSound returns the platform's notification sound name.
func DefaultSound() string {
	switch runtime.GOOS {
	case "darwin":
		return "Ping"
	case "windows":
		return "Mail"
	default:
		return "message-new-instant"
	}
}

// Func adapts a function to faye.Sink.
type Func func(faye.Alert) error

func (f Func) Deliver(a faye.Alert) error { return f(a) }

// Multi delivers to every sink and joins their errors.
type Multi []faye.Sink

func (m Multi) Deliver(a faye.Alert) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Limited drops alerts that exceed a rate.
type Limited struct {
	next    faye.Sink
	limiter *rate.Limiter
}

// NewLimited allows perMinute alerts per minute with the given burst. A
// non-positive perMinute disables limiting.
func NewLimited(next faye.Sink, perMinute, burst int) *Limited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Deliver(a faye.Alert) error {
	if !l.limiter.Allow() {
		return fmt.Errorf("%w: %q", ErrRateLimited, a.Body)
	}
	return l.next.Deliver(a)
}

// Log writes alerts to a logger. It is the sink of last resort when no
// desktop notification service is reachable.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Deliver(a faye.Alert) error {
	l.log.Info().Str("alert", a.Body).Msg("notification")
	return nil
}
