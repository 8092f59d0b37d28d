package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storyteller/internal/app"
)

func newPlayCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Roll dice and report every throw",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runApp(cmd, cfg, func(ctx context.Context, a *app.App) (app.Result, error) {
				return a.Play(ctx)
			})
		},
	}
	cmd.Flags().IntVar(&opts.rounds, "rounds", 0, "throws per player")
	cmd.Flags().IntVar(&opts.players, "players", 0, "concurrent players")
	return cmd
}
