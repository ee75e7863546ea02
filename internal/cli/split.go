package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ineyio/voicepool"
)

func newSplitCommand(a *app) *cobra.Command {
	var (
		file    string
		refresh bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Plan how a long text is spread across the active credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var (
				data []byte
				err  error
			)
			if file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read text: %w", err)
			}

			st, err := a.openPool(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			chunks, planErr := st.pool.Plan(ctx, string(data), refresh)
			var shortfall *voicepool.SplitShortfallError
			if planErr != nil && !errors.As(planErr, &shortfall) {
				return planErr
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(chunks); err != nil {
					return err
				}
			} else {
				for _, ch := range chunks {
					fmt.Fprintf(out, "chunk %d: %d chars at offset %d -> %s (quota %d)\n",
						ch.Index, voicepool.CountChars(ch.Text), ch.Offset, ch.Label, ch.QuotaAtAssignment)
				}
			}
			return planErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "text file to split, - for stdin")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "sync quotas from the provider first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print chunks as JSON")
	return cmd
}
