package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gmtui/gmtui/internal/app"
	"github.com/gmtui/gmtui/internal/faye"
	"github.com/gmtui/gmtui/internal/logging"
	"github.com/gmtui/gmtui/internal/notify"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long the process waits for the listener after
// the UI exits. A poll in flight can hold it for up to the exchange timeout.
const shutdownTimeout = time.Minute

var (
	configPath string
	transport  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "gmtui",
	Short: "GroupMe in the terminal",
	Long: `gmtui is a terminal client for GroupMe.

Run without arguments to start the interactive UI. New-message alerts are
delivered as desktop notifications while it runs.`,
	SilenceUsage: true,
	RunE:         runUI,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Deliver notifications without the UI",
	Long: `Run only the background notification listener, logging to stderr,
until interrupted with SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $GMTUI_CONFIG/config.toml or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "", "Push transport: websocket or long-polling (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(listenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runUI starts the listener in the background and the UI in the foreground.
// Quitting the UI requests listener shutdown and waits for it.
func runUI(cmd *cobra.Command, _ []string) error {
	env, err := setup(cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	log, closer, err := logging.File(env.cfg.LogPath(env.dir), env.cfg.Log.Level)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var program atomic.Pointer[tea.Program]
	feed := notify.Func(func(a faye.Alert) error {
		if p := program.Load(); p != nil {
			p.Send(app.AlertMsg{Alert: a, At: time.Now()})
		}
		return nil
	})

	sink, closeSink := buildSink(env.cfg, log, feed)
	defer closeSink()

	handle, err := startListener(ctx, env, sink, log)
	if err != nil {
		// The UI still works without notifications.
		log.Error().Err(err).Msg("listener unavailable")
	}

	var model app.Model
	if handle != nil {
		model = app.New(handle)
	} else {
		model = app.New(nil)
	}
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	program.Store(p)

	_, runErr := p.Run()

	if handle != nil {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := handle.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("listener shutdown")
		}
	}

	if runErr != nil {
		return fmt.Errorf("ui: %w", runErr)
	}
	return nil
}
