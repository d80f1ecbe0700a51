package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidharvest/internal/app"
	"vidharvest/internal/catalog"
	"vidharvest/internal/selector"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect and confirm acquired copies",
	}
	sourcesCmd.AddCommand(newSourcesListCommand(ctx))
	sourcesCmd.AddCommand(newSourcesConfirmImportCommand(ctx))
	return sourcesCmd
}

func newSourcesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <entry-id>",
		Short: "List the copies of an entry and mark the authoritative one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return ctx.withApp(func(a *app.App) error {
				sources, err := a.Store.SourcesFor(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(sources) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Entry %d has no copies\n", id)
					return nil
				}
				best := selector.Select(sources, selector.ParsePolicy(a.Config.Selection.Supersession))
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"sources": sources, "selected": best})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Origin", "Tier", "Status", "Size", "Hash", "Selected"},
					buildSourceRows(sources, best),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func buildSourceRows(sources []catalog.SourceCopy, best *catalog.SourceCopy) [][]string {
	rows := make([][]string, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, []string{
			strconv.FormatInt(src.ID, 10),
			src.Origin,
			string(src.Tier),
			string(src.Status),
			strconv.FormatInt(src.ByteSize, 10),
			src.ContentHash,
			yesNo(best != nil && best.ID == src.ID),
		})
	}
	return rows
}

func newSourcesConfirmImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm-import <hash>...",
		Short: "Record that the feed imported copies with these content hashes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				out := cmd.OutOrStdout()
				var unknown []string
				for _, hash := range args {
					changed, err := a.Store.ConfirmImport(cmd.Context(), hash)
					if err != nil {
						return err
					}
					if changed == 0 {
						unknown = append(unknown, hash)
						continue
					}
					fmt.Fprintf(out, "%s: %d copies imported\n", strings.ToLower(hash), changed)
				}
				if len(unknown) > 0 {
					fmt.Fprintf(out, "No saved copies for: %s\n", strings.Join(unknown, ", "))
				}
				return nil
			})
		},
	}
}
