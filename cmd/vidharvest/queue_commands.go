package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidharvest/internal/app"
	"vidharvest/internal/catalog"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage catalog entries",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show entry counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				stats, err := a.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func buildQueueStatusRows(stats map[catalog.Status]int) [][]string {
	var rows [][]string
	for _, status := range catalog.AllStatuses() {
		if count := stats[status]; count > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(count)})
		}
	}
	return rows
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		listStatuses []string
		site         string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app.App) error {
				entries, err := a.Store.List(cmd.Context(), catalog.ListFilter{Site: site, Statuses: statuses, Limit: limit})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching entries")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Code", "Site", "Status", "Attempts", "Updated", "Message"},
					buildQueueListRows(entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&site, "site", "", "Filter by site")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list (0 lists all)")
	return cmd
}

func parseStatuses(values []string) ([]catalog.Status, error) {
	statuses := make([]catalog.Status, 0, len(values))
	for _, value := range values {
		status, ok := catalog.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func buildQueueListRows(entries []*catalog.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.DisplayCode(),
			entry.Site,
			string(entry.Status),
			strconv.Itoa(entry.Attempts),
			entry.UpdatedAt.Local().Format(time.DateTime),
			entry.ErrorMessage,
		})
	}
	return rows
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset the attempt budget of failed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid entry id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withApp(func(a *app.App) error {
				count, err := a.Store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed entries to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d failed entries for retry\n", count)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check catalog database and object storage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				health, err := a.Store.Health(cmd.Context())
				if err != nil {
					return err
				}
				sources, err := a.Store.SourceStats(cmd.Context())
				if err != nil {
					return err
				}
				storageErr := a.Gateway.Ping(cmd.Context(), a.Config.Storage.Bucket)
				if ctx.JSONMode() {
					payload := map[string]any{
						"catalog_path": a.Store.Path(),
						"entries":      health,
						"sources":      sources,
						"storage_ok":   storageErr == nil,
					}
					if storageErr != nil {
						payload["storage_error"] = storageErr.Error()
					}
					return writeJSON(cmd, payload)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Catalog path: %s\n", a.Store.Path())
				fmt.Fprintf(out, "Total entries: %d\n", health.Total)
				fmt.Fprintf(out, "Pending: %d\n", health.Pending)
				fmt.Fprintf(out, "Downloading: %d\n", health.Downloading)
				fmt.Fprintf(out, "Downloaded: %d\n", health.Downloaded)
				fmt.Fprintf(out, "Failed: %d\n", health.Failed)
				fmt.Fprintf(out, "Imported: %d\n", health.Imported)
				fmt.Fprintf(out, "Deleted: %d\n", health.Deleted)
				fmt.Fprintf(out, "Copies saved/imported/deleted: %d/%d/%d\n",
					sources[catalog.SourceSaved], sources[catalog.SourceImported], sources[catalog.SourceDeleted])
				colorize := shouldColorize(out)
				detail := a.Config.Storage.Bucket
				if storageErr != nil {
					detail = storageErr.Error()
				}
				fmt.Fprintln(out, renderStatusLine("Object storage", readinessKind(storageErr == nil), detail, colorize))
				return nil
			})
		},
	}
}
