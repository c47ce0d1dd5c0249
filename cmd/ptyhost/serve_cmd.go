package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/attn-sh/ptyhost/internal/config"
	"github.com/attn-sh/ptyhost/internal/logging"
	"github.com/attn-sh/ptyhost/internal/notify"
	"github.com/attn-sh/ptyhost/internal/session"
	"github.com/attn-sh/ptyhost/internal/statedb"
	"github.com/attn-sh/ptyhost/internal/web"
)

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen", "127.0.0.1:8521", "Listen address for the session API")
	token := fs.String("token", "", "Bearer token for API/WS access")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "json", "Log format: json or text")
	noDB := fs.Bool("no-db", false, "Disable session persistence")

	fs.Usage = func() {
		fmt.Println("Usage: ptyhost serve [options]")
		fmt.Println()
		fmt.Println("Host PTY sessions and serve them over websocket.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg := config.Load()

	logging.Init(logging.Config{
		LogDir: cfg.LogDir(),
		Level:  *logLevel,
		Format: *logFormat,
	})
	defer logging.Shutdown()
	log := logging.Logger()

	var db *statedb.StateDB
	if !*noDB {
		var err error
		db, err = statedb.Open(cfg.DBPath())
		if err != nil {
			log.Warn("statedb_open_failed", slog.Any("error", err))
		} else if err := db.Migrate(); err != nil {
			log.Warn("statedb_migrate_failed", slog.Any("error", err))
			_ = db.Close()
			db = nil
		}
	}
	if db != nil {
		defer db.Close()
	}

	hub := web.NewHub()
	manager := session.NewManager(cfg, hub, notify.New(cfg), db)
	server := web.NewServer(web.Config{ListenAddr: *listenAddr, Token: *token}, manager, hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("serving", slog.String("addr", server.Addr()), slog.Bool("mock", cfg.MockPTY))
	if err := g.Wait(); err != nil {
		log.Error("serve_failed", slog.Any("error", err))
		os.Exit(1)
	}
}
