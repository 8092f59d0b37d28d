package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storyteller/internal/app"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the scripted status sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runApp(cmd, cfg, func(ctx context.Context, a *app.App) (app.Result, error) {
				return a.Status(ctx)
			})
		},
	}
}
