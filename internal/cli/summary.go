package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSummaryCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the pool's quota",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openPool(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			sum, err := st.pool.Summary(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}

			fmt.Fprintf(out, "active %d of %d, %d chars available, %d max per request\n",
				sum.ActiveCount, sum.TotalCount, sum.TotalAvailable, sum.MaxPerRequest)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tREMAINING\tTOTAL\tPERCENT\tACTIVE\tHEALTH")
			for _, c := range sum.Credentials {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%t\t%s\n",
					c.Label, c.RemainingQuota, c.TotalQuota, c.PercentRemaining, c.Active, c.Health)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
