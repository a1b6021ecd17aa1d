package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/objectfs/rados/pkg/utils"
)

func (a *app) lspoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lspools",
		Short: "List pools",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pools, err := a.cluster.ListPools(a.ctx)
			if err != nil {
				return err
			}
			for _, name := range pools {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}),
	}
}

func (a *app) mkpoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkpool <pool>",
		Short: "Create a pool",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.cluster.PoolCreate(a.ctx, args[0]); err != nil {
				return err
			}
			a.logger.Info("pool created", "pool", args[0])
			return nil
		}),
	}
}

func (a *app) rmpoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmpool <pool>",
		Short: "Delete a pool and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.cluster.PoolDelete(a.ctx, args[0]); err != nil {
				return err
			}
			a.logger.Info("pool deleted", "pool", args[0])
			return nil
		}),
	}
}

func (a *app) dfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "df",
		Short: "Show usage of the current pool",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			st, err := pool.Stat(a.ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "POOL\tOBJECTS\tUSED\tRD_OPS\tWR_OPS")
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\n", pool.Name(), st.NumObjects,
				utils.FormatBytes(int64(st.NumBytes)), st.NumRd, st.NumWr)
			return w.Flush()
		}),
	}
}
