package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"remindbot/internal/api"
	"remindbot/internal/command"
	"remindbot/internal/config"
	"remindbot/internal/deadline"
	"remindbot/internal/delivery"
	"remindbot/internal/metrics"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *cfgFile)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("db", "remindbot.db", "SQLite DB path")
	cmd.Flags().Int("workers", 4, "delivery worker goroutines")
	cmd.Flags().String("sender", "log", "delivery sender (log, zulip, shell)")
	for key, flag := range map[string]string{"db": "db", "delivery.workers": "workers", "delivery.sender": "sender"} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func newSender(cfg config.Config) delivery.Sender {
	switch cfg.Delivery.Sender {
	case "zulip":
		return delivery.Zulip{
			Site:   cfg.Zulip.Site,
			Email:  cfg.Zulip.Email,
			APIKey: cfg.Zulip.APIKey,
			Client: &http.Client{Timeout: cfg.Delivery.Timeout},
		}
	case "shell":
		return delivery.Shell{Command: cfg.Shell.Command, Args: cfg.Shell.Args}
	}
	return delivery.Log{}
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := store.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	repo := store.NewSQLiteRepo(db)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sched := scheduler.NewService(scheduler.Config{FireTimeout: cfg.Scheduler.FireTimeout}, m)
	dispatcher := delivery.NewDispatcher(delivery.Config{
		Workers:    cfg.Delivery.Workers,
		Timeout:    cfg.Delivery.Timeout,
		RatePerSec: cfg.Delivery.Rate,
	}, newSender(cfg), repo, m)
	reminders := reminder.NewService(reminder.Config{StoreTimeout: cfg.Store.Timeout}, repo, sched, dispatcher, m)
	orch := command.New(reminders, deadline.New(cfg.TimeLocation()), m)

	n, err := reminders.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	}
	log.Info().Int("restored", n).Msg("restored active reminders")
	sched.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(reminders, orch, sched, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("sender", cfg.Delivery.Sender).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpErr := srv.Shutdown(sctx)
		schedErr := sched.Stop(sctx)
		return errors.Join(httpErr, schedErr)
	})
	return g.Wait()
}
