package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cloudzz-dev/rosterchat/internal/config"
	"github.com/cloudzz-dev/rosterchat/internal/server/handlers"
	"github.com/cloudzz-dev/rosterchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/rosterchat/internal/server/storage"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadServer()

	app := &cli.App{
		Name:  "rosterchat-server",
		Usage: "development backend for the rosterchat client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address",
				Value: cfg.HTTPAddr,
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "PostgreSQL connection string, in-memory storage when empty",
				Value: cfg.DatabaseURL,
			},
		},
		Action: func(c *cli.Context) error {
			cfg.HTTPAddr = c.String("addr")
			cfg.DatabaseURL = c.String("database-url")
			return serve(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(cfg config.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter := ratelimit.New(cfg.AuthAttemptsLimit, cfg.AuthWindow)
	go limiter.Run(ctx)

	server := handlers.NewServer(cfg, store, limiter)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.HTTPAddr)
		log.Printf("Rate limits: %d auth attempts per %s", limiter.Limit(), cfg.AuthWindow)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

func openStore(ctx context.Context, databaseURL string) (storage.Store, error) {
	if databaseURL == "" {
		log.Printf("DATABASE_URL not set, using in-memory storage")
		return storage.NewMemory(), nil
	}
	store, err := storage.OpenPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to PostgreSQL")
	return store, nil
}
