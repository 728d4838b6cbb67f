package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lchbot/internal/activity"
	"lchbot/internal/event"
	"lchbot/internal/gateway"
	"lchbot/internal/onebot"
	"lchbot/internal/plugin"
	"lchbot/internal/storage"
	"lchbot/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Run the bot: start the event ingestion server, load the plugin
chain and begin dispatching gateway events.`,
		Example: `  # Run with the default configuration lookup
  lchbot serve

  # Run with an explicit config file and custom port
  lchbot serve --config config/config.yml --port 8080`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadedConfig
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}

	// Persistence is optional: without a storage path, plugin state and
	// activity buckets live in memory only.
	var db *storage.DB
	var store plugin.StateStore
	if cfg.Storage.Path != "" {
		var err error
		db, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer db.Close()
		store = db
	}

	manager := plugin.NewManager(store)
	dispatcher := plugin.NewDispatcher(manager)
	normalizer := event.NewNormalizer(cfg.Bot.CommandPrefix)
	client := onebot.NewClient(onebot.Config{
		BaseURL:     cfg.OneBot.BaseURL,
		AccessToken: cfg.OneBot.AccessToken,
		Timeout:     cfg.OneBot.Timeout,
	})

	agg := activity.New(activity.Config{
		RetentionDays: cfg.Activity.RetentionDays,
		TopN:          cfg.Activity.TopN,
	})
	if db != nil {
		snap, err := db.LoadActivitySnapshot()
		switch {
		case err == nil:
			if err := agg.Restore(snap); err != nil {
				logger.Warn().Err(err).Msg("discarding unreadable activity snapshot")
			} else {
				logger.Info().Msg("restored activity snapshot")
			}
		case !errors.Is(err, storage.ErrNotFound):
			logger.Warn().Err(err).Msg("load activity snapshot")
		}
	}

	sweeper, err := activity.NewSweeper(agg, cfg.Activity.SweepSpec)
	if err != nil {
		return fmt.Errorf("invalid activity.sweep_spec %q: %w", cfg.Activity.SweepSpec, err)
	}

	ctx := context.Background()
	builtins := []plugin.Handler{
		activity.NewPlugin(agg, client),
	}
	for _, h := range builtins {
		if err := manager.Register(ctx, h); err != nil {
			return fmt.Errorf("register plugin %s: %w", h.Meta().ID, err)
		}
	}

	server := gateway.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, normalizer, dispatcher, manager)

	sweeper.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info().
		Str("bot", cfg.Bot.Name).
		Int("plugins", manager.Count()).
		Msg("bot running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	<-sweeper.Stop().Done()

	if db != nil {
		if snap, err := agg.Snapshot(); err != nil {
			logger.Warn().Err(err).Msg("snapshot activity state")
		} else if err := db.SaveActivitySnapshot(snap); err != nil {
			logger.Warn().Err(err).Msg("persist activity snapshot")
		}
	}

	return logger.Close()
}
