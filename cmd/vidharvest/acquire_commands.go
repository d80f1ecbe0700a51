package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vidharvest/internal/app"
	"vidharvest/internal/catalog"
	"vidharvest/internal/daemon"
	"vidharvest/internal/logging"
	"vidharvest/internal/preflight"
)

func newAcquireCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Acquire media for parsed entries once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				handler, err := a.HandlerFactory()(cmd.Context(), 0)
				if err != nil {
					return err
				}
				if closer, ok := handler.(io.Closer); ok {
					defer closer.Close()
				}
				processed, runErr := a.Workflow().RunOnce(cmd.Context(), handler, limit)
				stats, err := a.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d entries (downloaded %d, failed %d)\n",
					processed, stats[catalog.StatusDownloaded], stats[catalog.StatusFailed])
				return runErr
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to process (0 processes all ready entries)")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run acquisition workers, periodic reconciliation and the metrics listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return ctx.withApp(func(a *app.App) error {
				if !skipPreflight {
					if err := runPreflight(signalCtx, cmd, a); err != nil {
						return err
					}
				}
				return runDaemon(signalCtx, a)
			})
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without checking dependencies")
	return cmd
}

func runPreflight(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	results := preflight.RunAll(ctx, a.Config, a.Gateway)
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, result := range results {
		fmt.Fprintln(out, renderStatusLine(result.Name, readinessKind(result.Passed), result.Detail, colorize))
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, result := range failed {
			names = append(names, result.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}
	return nil
}

func runDaemon(ctx context.Context, a *app.App) error {
	var reconciler daemon.Reconciler
	if strings.TrimSpace(a.Config.Feed.Endpoint) != "" {
		engine, err := a.Reconciler()
		if err != nil {
			return err
		}
		reconciler = engine
	} else {
		a.Logger.Warn("feed endpoint not configured; periodic reconciliation disabled",
			logging.String(logging.FieldEventType, "reconcile_disabled"),
			logging.String(logging.FieldErrorHint, "set feed.endpoint to enable garbage collection"),
		)
	}

	d, err := daemon.New(a.Config, a.Store, a.Workflow(), reconciler, a.Metrics, a.Logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}
	a.Logger.Info("vidharvest daemon started",
		logging.String("metrics_addr", d.Status(ctx).MetricsAddr),
		logging.String("catalog", a.Store.Path()),
	)

	<-ctx.Done()
	a.Logger.Info("vidharvest daemon shutting down")
	d.Stop()
	return nil
}
