package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/bizbot-il/bizbot"
	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/log"
)

func main() {
	// Missing .env is fine; the environment may be set by the host.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Log.Warnf("failed to load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "bizbot",
		Usage: "Hebrew-first conversational service agent for a small business",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "bot", Usage: "run only the chat bot"},
			&cli.BoolFlag{Name: "admin", Usage: "run only the admin panel"},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the chat bot and the admin panel (default)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "bot", Usage: "run only the chat bot"},
					&cli.BoolFlag{Name: "admin", Usage: "run only the admin panel"},
				},
				Action: runAction,
			},
			{
				Name:   "seed",
				Usage:  "seed an empty knowledge base with demo data and build the index",
				Action: seedAction,
			},
		},
		// Bare "bizbot" behaves like "bizbot run".
		Action: runAction,
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Log.Errorf("%v", err)
		os.Exit(1)
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := bizbot.New(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	botOnly := cmd.Bool("bot")
	adminOnly := cmd.Bool("admin")
	runBot := !adminOnly
	runAdmin := !botOnly

	if runBot && !app.HasChatTransport() {
		if botOnly {
			return bizbot.ErrNoChatToken
		}
		log.Log.Warnf("no chat token configured, running admin panel only")
		runBot = false
	}

	err = app.Run(ctx, runBot, runAdmin)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func seedAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := bizbot.New(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Seed(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	log.Log.Infof("seed complete")
	return nil
}
