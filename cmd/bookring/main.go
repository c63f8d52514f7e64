// Command bookring runs the book exchange Telegram bot and its maintenance
// subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	tele "gopkg.in/telebot.v4"

	"bookring/bot"
	"bookring/core/bootstrap"
	"bookring/core/buildinfo"
	corecmd "bookring/core/cmd"
	coredatabase "bookring/core/database"
	"bookring/core/logger"
	"bookring/storage/postgres"
	"bookring/sweep"
)

func main() {
	// Missing .env is fine; the config file and real env cover everything.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "bookring",
		Short:         "Telegram bot for exchanging paper books",
		Version:       fmt.Sprintf("%s (%s %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml",
		"path to the YAML configuration file")

	root.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		sweepCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bookring:", err)
		os.Exit(1)
	}
}

// serveCmd starts the bot: migrations, polling, and the background sweeper.
func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		RunE: func(_ *cobra.Command, _ []string) error {
			return corecmd.Run(corecmd.Options{
				DefaultConfigPath: *configPath,
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return loadConfig(path)
				},
				Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
					cfg, ok := carrier.(*appConfig)
					if !ok {
						return nil, fmt.Errorf("unexpected config carrier %T", carrier)
					}
					res, err := bootstrap.Run(bootstrap.Options{
						Config:   &cfg.Core,
						Database: cfg.Database,
					})
					if err != nil {
						return nil, err
					}
					return bot.New(&cfg.Core, postgres.NewStore(res.DB)), nil
				},
			})
		},
	}
}

// migrateCmd applies pending migrations and exits.
func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(&cfg.Core); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			return coredatabase.RunMigrations(cfg.Database)
		},
	}
}

// sweepCmd runs a single expiry pass, useful under cron or for debugging; the
// serving process already sweeps on its own schedule.
func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry and reminder pass, then exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(&cfg.Core); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			db, err := coredatabase.Connect(cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			store := postgres.NewStore(db)
			app := bot.New(&cfg.Core, store)

			// A non-polling bot is enough to deliver notifications.
			b, err := tele.NewBot(tele.Settings{Token: cfg.Core.Telegram.Token})
			if err != nil {
				return fmt.Errorf("telegram init: %w", err)
			}
			app.Gateway().Bind(b, nil)

			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return sweep.New(app.Manager(), store, sweep.Config{
				Interval: cfg.Core.Exchange.SweepInterval(),
				Reminder: cfg.Core.Exchange.Reminder(),
			}).RunOnce(ctx)
		},
	}
}
