package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/bot"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels/discord"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels/whatsapp"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/config"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/handlers"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/history"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/reply"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/scratch"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/supervisor"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/ytdl"
)

// newServeCmd creates the `goatrelay serve` command that runs one worker
// process. It exits with the supervisor's restart code when a restart is
// requested, so `goatrelay run` can respawn it.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot worker in the foreground",
		Long: `Run a single bot worker: connect the configured channel, process
messages, and exit. Normally launched under "goatrelay run", which
respawns the worker when an admin requests a restart.

Examples:
  goatrelay serve
  goatrelay serve --channel discord
  goatrelay serve --config ./config.yaml`,
		RunE: runServe,
	}

	cmd.Flags().String("channel", "", "channel to connect (whatsapp, discord)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if ch, _ := cmd.Flags().GetString("channel"); ch != "" {
		cfg.Channel = ch
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := buildLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared stores.
	registry := reply.NewRegistry(cfg.Reply.TTL(), logger)
	store, err := scratch.NewStore(cfg.Scratch.Dir, logger)
	if err != nil {
		return fmt.Errorf("creating scratch store: %w", err)
	}

	var hist *history.Store
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("history disabled, database unavailable", "error", err)
		} else {
			defer hist.Close()
		}
	}

	client := ytdl.New(cfg.DownloaderClientConfig(), logger)

	// Channel.
	channel, err := buildChannel(cfg, logger)
	if err != nil {
		return err
	}
	if err := channel.Connect(ctx); err != nil {
		return fmt.Errorf("connecting %s: %w", channel.Name(), err)
	}
	defer channel.Disconnect()

	// Bot and commands.
	b := bot.New(bot.Options{
		Prefix:        cfg.Prefix,
		Admins:        cfg.Admins,
		SweepInterval: cfg.Scratch.SweepInterval(),
		ScratchMaxAge: cfg.Scratch.MaxAge(),
	}, channel, registry, store, hist, logger)

	b.Register(handlers.NewYT(client, logger))
	b.Register(handlers.NewAutoLink(client, logger))
	b.Register(handlers.NewUptime(logger))
	b.Register(handlers.NewRestart())
	b.Register(handlers.NewRecent())

	// Shut down on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, stopping")
		cancel()
	}()

	logger.Info("goatrelay worker running",
		"channel", channel.Name(),
		"prefix", cfg.Prefix,
	)

	err = b.Run(ctx)
	if errors.Is(err, bot.ErrRestartRequested) {
		logger.Info("restart requested, exiting for respawn")
		channel.Disconnect()
		if hist != nil {
			hist.Close()
		}
		os.Exit(supervisor.RestartExitCode)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildChannel constructs the configured channel adapter.
func buildChannel(cfg *config.Config, logger *slog.Logger) (channels.Channel, error) {
	switch cfg.Channel {
	case "whatsapp":
		return whatsapp.New(whatsapp.Config{
			SessionPath:     cfg.Channels.WhatsApp.SessionPath,
			DeviceName:      cfg.Channels.WhatsApp.DeviceName,
			RespondToGroups: true,
		}, logger), nil
	case "discord":
		return discord.New(discord.Config{
			Token: cfg.Channels.Discord.Token,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown channel %q", cfg.Channel)
	}
}

// resolveConfig loads the config from --config or standard locations.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return nil, fmt.Errorf("no config file found (looked for config.yaml, goatrelay.yaml)")
	}
	return config.Load(path)
}

// buildLogger builds the slog logger from config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
