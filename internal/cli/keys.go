package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ineyio/voicepool"
)

func newKeysCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider credentials",
	}
	cmd.AddCommand(
		newKeysAddCommand(a),
		newKeysListCommand(a),
		newKeysDeleteCommand(a),
		newKeysToggleCommand(a, "enable", true),
		newKeysToggleCommand(a, "disable", false),
	)
	return cmd
}

func newKeysAddCommand(a *app) *cobra.Command {
	var (
		label string
		key   string
		quota int64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openPool(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := st.pool.Store().Create(ctx, label, key, quota)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s) %s\n", c.Label, c.ID, c.MaskedSecret())
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "display name")
	cmd.Flags().StringVar(&key, "secret", "", "provider API key")
	cmd.Flags().Int64Var(&quota, "quota", 10000, "total character quota")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

func newKeysListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credentials, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openPool(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.pool.Store().ListAll(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tSECRET\tREMAINING\tTOTAL\tACTIVE")
			for i := len(all) - 1; i >= 0; i-- {
				c := all[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\n",
					c.ID, c.Label, c.MaskedSecret(), c.RemainingQuota, c.TotalQuota, c.Active)
			}
			return tw.Flush()
		},
	}
}

func newKeysDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openPool(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.pool.DeleteCredential(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newKeysToggleCommand(a *app, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Set a credential's active flag to %t", active),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openPool(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.pool.SetActive(ctx, args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, args[0])
			return nil
		},
	}
}

func printCredential(tw *tabwriter.Writer, c voicepool.Credential) {
	fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\n", c.ID, c.Label, c.RemainingQuota, c.TotalQuota, c.Active)
}
