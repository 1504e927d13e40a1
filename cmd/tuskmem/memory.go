package main

import (
	"fmt"

	"github.com/sandevgo/tuskmem/internal/service/command"
	"github.com/sandevgo/tuskmem/pkg/srv"
	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory [set key=value ... | del key ... | clear]",
	Short: "Show or edit the working memory of a thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		app, err := newStorageApp(ctx)
		if err != nil {
			return err
		}
		defer srv.Shutdown(ctx, app.services...)

		thread, resource := scope(app.cfg)
		mc := command.NewMemoryCommand(app.memory, command.NewSession(thread, resource))
		out, err := mc.Execute(ctx, thread, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List the threads of a resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		app, err := newStorageApp(ctx)
		if err != nil {
			return err
		}
		defer srv.Shutdown(ctx, app.services...)

		thread, resource := scope(app.cfg)
		tc := command.NewThreadCommand(app.memory, command.NewSession(thread, resource))
		out, err := tc.Execute(ctx, thread, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memoryCmd, threadsCmd)
}
