package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) getxattrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getxattr <object> <name>",
		Short: "Print an extended attribute",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			value, err := obj.GetXattr(a.ctx, args[1])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(value)
			return err
		}),
	}
}

func (a *app) setxattrCmd() *cobra.Command {
	var fromFile string
	cmd := &cobra.Command{
		Use:   "setxattr <object> <name> [value]",
		Short: "Set an extended attribute",
		Long:  `Set an extended attribute from the value argument, or with --file from a file ("-" for stdin).`,
		Args:  cobra.RangeArgs(2, 3),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var value []byte
			switch {
			case fromFile != "":
				data, err := readInput(cmd, fromFile)
				if err != nil {
					return err
				}
				value = data
			case len(args) == 3:
				value = []byte(args[2])
			default:
				return fmt.Errorf("setxattr needs a value argument or --file")
			}
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			return obj.SetXattr(a.ctx, args[1], value)
		}),
	}
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "read the value from a file")
	return cmd
}

func (a *app) listxattrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listxattr <object>",
		Short: "List extended attribute names",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			attrs, err := obj.GetXattrs(a.ctx)
			if err != nil {
				return err
			}
			for _, name := range attrs.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}),
	}
}

func (a *app) rmxattrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmxattr <object> <name>",
		Short: "Remove an extended attribute",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			return obj.RmXattr(a.ctx, args[1])
		}),
	}
}
