package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidharvest/internal/app"
	"vidharvest/internal/catalog"
	"vidharvest/internal/sites"
)

func newCrawlCommand(ctx *commandContext) *cobra.Command {
	var site string
	var start, end int

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "List site pages and add new entries to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start < 1 || end < start {
				return fmt.Errorf("invalid page range %d-%d", start, end)
			}
			return ctx.withApp(func(a *app.App) error {
				adapter, err := a.Adapter(site)
				if err != nil {
					return err
				}
				listings, err := adapter.ListRawEntries(cmd.Context(), sites.PageRange{Start: start, End: end})
				if err != nil {
					return fmt.Errorf("crawl %s: %w", adapter.SiteName(), err)
				}
				inserted, err := a.Ingest.Ingest(cmd.Context(), adapter.SiteName(), listings)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"site":     adapter.SiteName(),
						"listings": len(listings),
						"inserted": inserted,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Crawled %s pages %d-%d: %d listings, %d new entries\n",
					adapter.SiteName(), start, end, len(listings), inserted)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&site, "site", "javct", "Site adapter to crawl")
	cmd.Flags().IntVar(&start, "start", 1, "First listing page")
	cmd.Flags().IntVar(&end, "end", 1, "Last listing page")
	return cmd
}

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var site string
	var limit int

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch detail pages for newly added entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				adapter, err := a.Adapter(site)
				if err != nil {
					return err
				}
				summary, err := a.Ingest.EnrichPending(cmd.Context(), adapter, limit)
				if ctx.JSONMode() && err == nil {
					return writeJSON(cmd, summary)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Processed: %d\n", summary.Processed)
				fmt.Fprintf(out, "Parsed: %d\n", summary.Parsed)
				fmt.Fprintf(out, "Duplicates discarded: %d\n", summary.Duplicates)
				fmt.Fprintf(out, "Missing pages: %d\n", summary.Missing)
				fmt.Fprintf(out, "Failed: %d\n", summary.Failed)
				if summary.Unmatched > 0 {
					fmt.Fprintf(out, "Unmatched references: %d (run `vidharvest refs sync`)\n", summary.Unmatched)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&site, "site", "javct", "Site adapter whose entries to enrich")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries to enrich")
	return cmd
}

func newRefsCommand(ctx *commandContext) *cobra.Command {
	refsCmd := &cobra.Command{
		Use:   "refs",
		Short: "Manage category and tag references",
	}
	refsCmd.AddCommand(newRefsSyncCommand(ctx))
	refsCmd.AddCommand(newRefsListCommand(ctx))
	return refsCmd
}

func newRefsSyncCommand(ctx *commandContext) *cobra.Command {
	var site string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Store the site's published category and tag names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				adapter, err := a.Adapter(site)
				if err != nil {
					return err
				}
				added, err := a.Ingest.SyncReferences(cmd.Context(), adapter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, kind := range []catalog.RefKind{catalog.RefCategory, catalog.RefTag} {
					fmt.Fprintf(out, "New %s references: %d\n", kind, added[kind])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&site, "site", "javct", "Site adapter to sync")
	return cmd
}

func newRefsListCommand(ctx *commandContext) *cobra.Command {
	var site, kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored references of one kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				refs, err := a.Store.ListRefs(cmd.Context(), catalog.RefKind(strings.ToLower(strings.TrimSpace(kind))), site)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, refs)
				}
				if len(refs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No references stored")
					return nil
				}
				rows := make([][]string, 0, len(refs))
				for _, ref := range refs {
					rows = append(rows, []string{fmt.Sprintf("%d", ref.ID), ref.Name})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "Name"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&site, "site", "javct", "Site the references belong to")
	cmd.Flags().StringVar(&kind, "kind", string(catalog.RefCategory), "Reference kind (category, tag, person, studio)")
	return cmd
}
