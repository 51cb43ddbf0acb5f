package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/jask/flowbit/internal/config"
	"github.com/jask/flowbit/internal/logging"
	"github.com/jask/flowbit/internal/remotehost"
)

func main() {
	fs := config.Flags("ticketsremote")
	fs.String("addr", "", "listen address")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// this process has no UI; log to stderr unless a file was asked for
	if !cfg.Log.PathSet {
		cfg.Log.Path = "-"
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := remotehost.New(nil, logger)
	if err := srv.ListenAndServe(ctx, cfg.RemoteHost.Addr); err != nil {
		logger.WithError(err).Fatal("remote host stopped")
	}
}
