package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectfs/rados/pkg/errors"
	"github.com/objectfs/rados/pkg/utils"
)

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List objects in the current pool",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			for entry, err := range pool.Objects(a.ctx) {
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), entry.Name)
			}
			return nil
		}),
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <object> <file|->",
		Short: "Replace an object's contents with a file or stdin",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			if _, err := pool.PutObject(a.ctx, args[0], data); err != nil {
				return err
			}
			a.logger.Debug("object written", "object", args[0], "size", len(data))
			return nil
		}),
	}
}

func (a *app) appendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "append <object> <file|->",
		Short: "Append a file or stdin to an object",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			_, err = obj.Append(a.ctx, data)
			return err
		}),
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <object> <file|->",
		Short: "Write an object's contents to a file or stdout",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			// Fail before creating the output file when the object is missing.
			if _, err := obj.Stat(a.ctx); err != nil {
				return err
			}
			out, err := openOutput(cmd, args[1])
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, obj.Reader(a.ctx)); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		}),
	}
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <object>",
		Short: "Show an object's size and modification time",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			st, err := obj.Stat(a.ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s mtime %s, size %d\n",
				obj.Pool().Name(), obj.Name(), st.ModTime.Format(time.RFC3339), st.Size)
			return nil
		}),
	}
}

func (a *app) truncateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "truncate <object> <size>",
		Short: "Resize an object, e.g. truncate obj 4MB",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			size, err := utils.ParseBytes(args[1])
			if err != nil || size < 0 {
				return errors.Newf(errors.ErrCodeInvalidArgument, "invalid size %q", args[1]).
					WithComponent("radosctl").WithCause(err)
			}
			obj, err := a.object(args[0])
			if err != nil {
				return err
			}
			return obj.Truncate(a.ctx, uint64(size))
		}),
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <object>...",
		Short: "Remove objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pool, err := a.currentPool()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := pool.RemoveObject(a.ctx, name); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	in, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return io.ReadAll(in)
}
