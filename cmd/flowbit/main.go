package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/jask/flowbit/internal/api"
	"github.com/jask/flowbit/internal/config"
	"github.com/jask/flowbit/internal/database"
	"github.com/jask/flowbit/internal/database/repository"
	"github.com/jask/flowbit/internal/logging"
	"github.com/jask/flowbit/internal/metrics"
	"github.com/jask/flowbit/internal/remote"
	"github.com/jask/flowbit/internal/screens"
	"github.com/jask/flowbit/internal/secrets"
	"github.com/jask/flowbit/internal/session"
	"github.com/jask/flowbit/internal/tickets"
	"github.com/jask/flowbit/internal/tui"
)

func main() {
	fs := config.Flags("flowbit")
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

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	db, err := database.OpenAndMigrate(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer db.Close()

	store := session.NewStore(repository.NewStorageRepo(db), secrets.NewSealer("flowbit"), logger)
	client := api.New(api.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Tokens:  store,
		Log:     logger,
	})
	registry := screens.NewRegistry(client, logger)
	catalog := remote.Catalog{
		tickets.ComponentName: tickets.Factory(tickets.Options{
			Client:       client,
			PollInterval: cfg.Tickets.PollInterval,
			Log:          logger,
		}),
	}
	loader := remote.NewLoader(remote.Config{
		EntryURL: cfg.Remote.EntryURL,
		Name:     cfg.Remote.Name,
		Module:   cfg.Remote.Module,
		Grace:    cfg.Remote.Grace,
		Timeout:  cfg.Remote.Timeout,
	}, catalog, nil, logger)

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.WithError(err).Error("metrics listener stopped")
			}
		}()
	}

	app := tui.New(ctx, tui.Deps{
		Session:  store,
		API:      client,
		Registry: registry,
		Loader:   loader,
		Log:      logger,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	// teardown can start on any goroutine, including inside Update
	store.OnClear(func(reason string) {
		go p.Send(tui.ReloadMsg{Reason: reason})
	})

	logger.WithField("api", cfg.API.BaseURL).WithField("remote", cfg.Remote.EntryURL).Info("starting shell")
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Printf("error: %v\n", err)
	}
}
