package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dukerupert/homecal/internal/config"
	"github.com/dukerupert/homecal/internal/database"
	"github.com/dukerupert/homecal/internal/logging"
	"github.com/dukerupert/homecal/internal/middleware"
	"github.com/dukerupert/homecal/internal/notify"
	"github.com/dukerupert/homecal/internal/server"
)

func main() {
	cmd := &cli.Command{
		Name:  "homecal",
		Usage: "calendar widget backend with reminder reconciliation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "homecal.yaml",
				Usage:   "path to the YAML config file",
				Sources: cli.EnvVars("HOMECAL_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server and background sync",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "run one refresh and print a summary",
				Action: syncOnce,
			},
			{
				Name:   "vapid-keys",
				Usage:  "generate a VAPID key pair for web push",
				Action: vapidKeys,
			},
			{
				Name:      "hash-password",
				Usage:     "print a bcrypt hash for basic_auth.password_hash",
				ArgsUsage: "<password>",
				Action:    hashPassword,
			},
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.Normalize()
	return cfg, logging.Setup(cfg.LogLevel, cfg.LogFormat), nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("homecal listening", "addr", cfg.Listen, "backend", cfg.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	req, err := srv.Request(ctx)
	if err != nil {
		return err
	}
	res, err := srv.Engine().Refresh(ctx, req)
	if err != nil {
		return err
	}

	for _, ev := range res.Events {
		fmt.Printf("%-16s  %-40s  %d reminder(s)  [%s]\n", ev.Start, ev.Summary, len(ev.Notifications), ev.CalendarID)
	}
	fmt.Printf("%d events, %d notification records\n", len(res.Events), res.Notifications)
	return nil
}

func vapidKeys(ctx context.Context, cmd *cli.Command) error {
	pub, priv, err := notify.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("push:\n  vapid_public_key: %s\n  vapid_private_key: %s\n", pub, priv)
	return nil
}

func hashPassword(ctx context.Context, cmd *cli.Command) error {
	password := cmd.Args().First()
	if password == "" {
		return errors.New("usage: homecal hash-password <password>")
	}
	hash, err := middleware.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
