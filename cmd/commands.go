package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/config"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/payments"
	"github.com/cuencadelplata/ticketeate-sub002/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and notification workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Start()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}
			db, err := config.InitDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %v", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
			logger.Infof("schema is up to date (driver=%s)", cfg.DBDriver)
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var opts payments.ReconcileOptions
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-check unsettled orders against MercadoPago and finish stuck issuance",
		Long: `Looks up orders that are still pending, in process, unknown, rejected or
cancelled after --older-than (but not older than --window), and paid orders
that never got their tickets, and applies the provider's current payment
status to each one.

Run it from cron as a safety net for lost or rejected notifications.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}
			app, err := server.Bootstrap(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			// Notifications from a one-shot run go through the in-process pool
			// so Close drains them before exit.
			app.Config.Notify.Backend = "memory"
			if _, err := app.StartDispatcher(); err != nil {
				return err
			}
			processor := app.BuildProcessor()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			report, err := processor.Reconcile(ctx, opts)
			if err != nil {
				return fmt.Errorf("reconcile failed: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d updated=%d recovered=%d failed=%d\n",
				report.Checked, report.Updated, report.Recovered, report.Failed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 15*time.Minute, "only orders untouched for at least this long")
	cmd.Flags().DurationVar(&opts.Window, "window", 72*time.Hour, "skip orders untouched for longer than this (0 checks every age)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum orders per sweep")
	return cmd
}

func redispatchCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "redispatch",
		Short: "Retry ticket emails that ended up in the dead letter store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}
			app, err := server.Bootstrap(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if list {
				letters, err := app.DeadLetters.List()
				if err != nil {
					return err
				}
				for _, l := range letters {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tto=%s\tattempts=%d\tlast_error=%s\n",
						l.OrderReference, l.Job.BuyerEmail, l.Attempts, l.LastError)
				}
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			sent, failed, err := app.DeadLetters.Redispatch(ctx, app.Sender)
			if err != nil {
				return fmt.Errorf("redispatch failed: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent=%d failed=%d\n", sent, failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "only list pending dead letters")
	return cmd
}
