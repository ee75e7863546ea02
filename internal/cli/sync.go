package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSyncCommand(a *app) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "sync [id]",
		Short: "Refresh quota from the provider, for one credential or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openPool(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tREMAINING\tTOTAL\tACTIVE")

			if len(args) == 1 {
				c, err := st.pool.SyncOne(ctx, args[0])
				if err != nil {
					return err
				}
				printCredential(tw, c)
				return tw.Flush()
			}

			synced, err := st.pool.SyncAll(ctx, activeOnly)
			if err != nil {
				return err
			}
			for _, c := range synced {
				printCredential(tw, c)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d credentials\n", len(synced))
			return nil
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "skip inactive credentials")
	return cmd
}
