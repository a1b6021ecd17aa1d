package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) mksnapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mksnap <snap>",
		Short: "Create a pool snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			if err := pool.SnapshotCreate(a.ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created pool %s snap %s\n", pool.Name(), args[0])
			return nil
		}),
	}
}

func (a *app) rmsnapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmsnap <snap>",
		Short: "Remove a pool snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			if err := pool.SnapshotRemove(a.ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed pool %s snap %s\n", pool.Name(), args[0])
			return nil
		}),
	}
}

func (a *app) lssnapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lssnap",
		Short: "List snapshots of the current pool",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			snaps, err := pool.Snapshots(a.ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range snaps {
				fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, s.Name, s.Created.Format(time.DateTime))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d snaps\n", len(snaps))
			return nil
		}),
	}
}

func (a *app) rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <object> <snap>",
		Short: "Roll an object back to a pool snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			if err := pool.SnapshotRollback(a.ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back pool %s to snapshot %s\n", pool.Name(), args[1])
			return nil
		}),
	}
}
