package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"vidharvest/internal/app"
	"vidharvest/internal/export"
	"vidharvest/internal/fileutil"
	"vidharvest/internal/selector"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		afterID         int64
		limit           int
		includeImported bool
		header          bool
		outputPath      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the authoritative copy of each entry as semicolon-separated rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				opts := export.Options{
					AfterID:         afterID,
					Limit:           limit,
					IncludeImported: includeImported,
					WriteHeader:     header,
					Policy:          selector.ParsePolicy(a.Config.Selection.Supersession),
				}
				var summary export.Summary
				write := func(w io.Writer) error {
					var err error
					summary, err = export.Write(cmd.Context(), a.Store, w, opts, a.Logger)
					return err
				}
				var err error
				if path := strings.TrimSpace(outputPath); path != "" && path != "-" {
					err = fileutil.WriteAtomic(path, 0o644, write)
				} else {
					err = write(cmd.OutOrStdout())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rows (%d without an eligible copy, %d already current); next --after-id %d\n",
					summary.Rows, summary.NoEligible, summary.Current, summary.LastID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&afterID, "after-id", 0, "Only export entries with a larger id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to write (0 writes all)")
	cmd.Flags().BoolVar(&includeImported, "include-imported", false, "Also export entries whose selected copy is already imported")
	cmd.Flags().BoolVar(&header, "header", false, "Write a header row")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file (default stdout)")
	return cmd
}
