package main

import (
	"encoding/json"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/command"
	"github.com/sandevgo/tuskmem/pkg/srv"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the messages of a thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		app, err := newStorageApp(ctx)
		if err != nil {
			return err
		}
		defer srv.Shutdown(ctx, app.services...)

		thread, _ := scope(app.cfg)
		res, err := app.memory.Query(ctx, thread, core.QueryOptions{Limit: historyLimit})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		for _, msg := range res.UIMessages {
			fmt.Fprint(out, command.RenderUIMessage(msg))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "only the newest n messages")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print stored and UI messages as JSON")
	rootCmd.AddCommand(historyCmd)
}
