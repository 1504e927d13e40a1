package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sandevgo/tuskmem/internal/service/agent"
	"github.com/sandevgo/tuskmem/internal/transport/cli"
	"github.com/sandevgo/tuskmem/pkg/srv"
	"github.com/spf13/cobra"
)

var (
	schemaPath string
	schemaName string
)

var askCmd = &cobra.Command{
	Use:   "ask <message> [message...]",
	Short: "Send one turn and print the streamed answer",
	Long:  `Each argument is stored as its own user message and answered in a single turn. With --schema the answer is JSON validated against the given schema file.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		var opts agent.Options
		if schemaPath != "" {
			schema, err := readSchema(schemaPath)
			if err != nil {
				return err
			}
			opts.OutputSchema = schema
			opts.OutputName = schemaName
		}

		app, err := newAgentApp(ctx)
		if err != nil {
			return err
		}
		defer srv.Shutdown(ctx, app.services...)

		thread, resource := scope(app.cfg)
		_, err = cli.Send(ctx, cmd.OutOrStdout(), app.engine, agent.TurnRequest{
			ThreadID:   thread,
			ResourceID: resource,
			Input:      args,
			Options:    opts,
		})
		app.drain(ctx)
		return err
	},
}

func readSchema(path string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}
	return &schema, nil
}

func init() {
	askCmd.Flags().StringVar(&schemaPath, "schema", "", "JSON schema file for structured output")
	askCmd.Flags().StringVar(&schemaName, "schema-name", "", "name of the structured output")
	rootCmd.AddCommand(askCmd)
}
