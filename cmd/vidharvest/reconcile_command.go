package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vidharvest/internal/app"
	"vidharvest/internal/reconcile"
)

type reconcileView struct {
	RunID           string         `json:"run_id"`
	Mode            string         `json:"mode"`
	FeedRows        int            `json:"feed_rows"`
	Deleted         int            `json:"deleted"`
	Skipped         map[string]int `json:"skipped"`
	Inconsistencies []string       `json:"inconsistencies,omitempty"`
	DeleteFailures  []string       `json:"delete_failures,omitempty"`
	Duration        string         `json:"duration"`
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var sweep, reset bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Delete local copies the distribution feed already carries",
		Long: "Reads the distribution feed and removes stored media for imported copies.\n" +
			"By default the run resumes from the saved cursor; --sweep reads the whole feed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				engine, err := a.Reconciler()
				if err != nil {
					return err
				}
				if reset {
					if err := engine.ResetCursor(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "Reconciliation cursor reset")
				}
				var summary reconcile.Summary
				if sweep {
					summary, err = engine.Sweep(cmd.Context())
				} else {
					summary, err = engine.RunIncremental(cmd.Context())
				}
				view := newReconcileView(summary)
				if ctx.JSONMode() {
					if writeErr := writeJSON(cmd, view); writeErr != nil {
						return writeErr
					}
					return err
				}
				printReconcileView(cmd, view, summary)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&sweep, "sweep", false, "Read the entire feed instead of resuming from the cursor")
	cmd.Flags().BoolVar(&reset, "reset", false, "Reset the saved cursor before running")
	return cmd
}

func newReconcileView(summary reconcile.Summary) reconcileView {
	view := reconcileView{
		RunID:    summary.RunID,
		Mode:     string(summary.Mode),
		FeedRows: summary.FeedRows,
		Deleted:  summary.Deleted,
		Skipped:  make(map[string]int, len(summary.Skipped)),
		Duration: summary.Duration.Round(time.Millisecond).String(),
	}
	for reason, count := range summary.Skipped {
		view.Skipped[string(reason)] = count
	}
	for _, item := range summary.Inconsistencies {
		view.Inconsistencies = append(view.Inconsistencies, fmt.Sprintf("%s (%s)", item.Hash, item.Key))
	}
	for _, failure := range summary.DeleteFailures {
		view.DeleteFailures = append(view.DeleteFailures, fmt.Sprintf("%s: %v", failure.Hash, failure.Err))
	}
	return view
}

func printReconcileView(cmd *cobra.Command, view reconcileView, summary reconcile.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run: %s (%s)\n", view.RunID, view.Mode)
	fmt.Fprintf(out, "Feed rows: %d\n", view.FeedRows)
	fmt.Fprintf(out, "Deleted: %d\n", view.Deleted)
	for _, reason := range summary.SkipReasons() {
		fmt.Fprintf(out, "Skipped (%s): %d\n", reason, summary.Skipped[reason])
	}
	for _, item := range view.Inconsistencies {
		fmt.Fprintf(out, "Inconsistent: %s\n", item)
	}
	for _, failure := range view.DeleteFailures {
		fmt.Fprintf(out, "Delete failed: %s\n", failure)
	}
	fmt.Fprintf(out, "Duration: %s\n", view.Duration)
}
