package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/gmtui/gmtui/internal/config"
	"github.com/gmtui/gmtui/internal/faye"
	"github.com/gmtui/gmtui/internal/groupme"
	"github.com/gmtui/gmtui/internal/listener"
	"github.com/gmtui/gmtui/internal/notify"
	"github.com/rs/zerolog"
)

const (
	tokenPrompt   = "Enter GroupMe Access Token, which can be obtained here: https://dev.groupme.com/applications"
	lookupTimeout = 15 * time.Second
)

// environment is everything resolved before the listener starts.
type environment struct {
	cfg  *config.Config
	dir  string
	path string
}

// setup resolves the config path, loads or creates the config, and applies
// command-line overrides.
func setup(in io.Reader, out io.Writer) (*environment, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := loadOrCreate(path, in, out)
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, transport, logLevel); err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, dir: filepath.Dir(path), path: path}, nil
}

// loadOrCreate loads path. When the file does not exist it asks for an
// access token on in and writes a fresh config holding it.
func loadOrCreate(path string, in io.Reader, out io.Writer) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	fmt.Fprintln(out, tokenPrompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("read access token: %w", err)
	}

	cfg = config.Default()
	cfg.Secret = strings.TrimSpace(line)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, transport, level string) error {
	if transport != "" {
		if _, err := faye.NewTransport(transport, cfg.Push.Endpoint); err != nil {
			return err
		}
		cfg.Push.Transport = canonicalTransport(transport)
	}
	if level != "" {
		cfg.Log.Level = level
	}
	return nil
}

func canonicalTransport(kind string) string {
	switch strings.ToLower(kind) {
	case "long-polling", "longpoll", "http":
		return faye.ConnLongPolling
	default:
		return faye.ConnWebSocket
	}
}

// resolveUserID returns the configured user id, or asks the REST API whose
// token this is.
func resolveUserID(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.UserID != "" {
		return cfg.UserID, nil
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	u, err := groupme.NewClient(cfg.APIBase, cfg.Secret).Me(ctx)
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}
	return u.ID, nil
}

// buildSink combines the rate-limited desktop notifier with any extra sinks.
// Without a notification service alerts are logged instead. The returned
// func releases the bus connection.
func buildSink(cfg *config.Config, log zerolog.Logger, extra ...faye.Sink) (faye.Sink, func()) {
	closeFn := func() {}
	var sinks notify.Multi

	if cfg.Notify.Enabled {
		sound := cfg.Notify.Sound
		if sound == "" {
			sound = notify.DefaultSound()
		}
		var desktop faye.Sink
		d, err := notify.NewDBus(notify.Options{
			Summary: cfg.Notify.Summary,
			Icon:    cfg.Notify.Icon,
			Sound:   sound,
		})
		if err != nil {
			log.Warn().Err(err).Msg("desktop notifications unavailable, logging alerts instead")
			desktop = notify.NewLog(log)
		} else {
			desktop = d
			closeFn = func() { _ = d.Close() }
		}
		sinks = append(sinks, notify.NewLimited(desktop, cfg.Notify.RatePerMinute, cfg.Notify.Burst))
	}

	sinks = append(sinks, extra...)
	return sinks, closeFn
}

func startListener(ctx context.Context, env *environment, sink faye.Sink, log zerolog.Logger) (*listener.Handle, error) {
	userID, err := resolveUserID(ctx, env.cfg)
	if err != nil {
		return nil, err
	}
	t, err := faye.NewTransport(env.cfg.Push.Transport, env.cfg.Push.Endpoint)
	if err != nil {
		return nil, err
	}
	return listener.Start(ctx, listener.Options{
		SubjectID:       userID,
		Credential:      env.cfg.Secret,
		Transport:       t,
		Sink:            sink,
		RenewAfter:      env.cfg.Push.RenewAfter,
		HandshakeRetry:  env.cfg.Push.HandshakeRetry,
		ExchangeTimeout: env.cfg.Push.ExchangeTimeout,
		Logger:          log,
	})
}
