package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidharvest/internal/app"
)

func newThumbnailsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "thumbnails",
		Short: "Mirror entry posters into object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				summary, err := a.Mirror().Run(cmd.Context(), limit)
				if ctx.JSONMode() && err == nil {
					return writeJSON(cmd, summary)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Posters: %d candidates, %d mirrored, %d failed\n",
					summary.Candidates, summary.Mirrored, summary.Failed)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 500, "Maximum posters to mirror")
	return cmd
}
