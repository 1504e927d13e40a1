package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sandevgo/tuskmem/internal/service/command"
	"github.com/sandevgo/tuskmem/internal/transport/cli"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/srv"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long:  `Opens a readline chat on the selected thread. Slash commands such as /history, /memory and /thread manage the conversation; type /help for the full list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		app, err := newAgentApp(ctx)
		if err != nil {
			return err
		}

		thread, resource := scope(app.cfg)
		session := command.NewSession(thread, resource)
		router := command.New(command.NewCommands(command.Deps{
			Provider: app.provider.Provider,
			Models:   app.models,
			Tools:    app.tools,
			Servers:  app.mcp,
			Memory:   app.memory,
			Session:  session,
		}))

		rl, err := cli.NewReadLine(app.engine, router, session, app.cfg)
		if err != nil {
			return err
		}

		// leaving the prompt stops every other service
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		chat := srv.Func(func(ctx context.Context) error {
			defer cancel()
			return rl.Start(ctx)
		})

		services := append(app.services, chat, srv.NewCleanup("readline", func() error {
			return rl.Shutdown(context.Background())
		}))

		log.FromCtx(ctx).Debug().Str("thread", thread).Str("resource", resource).Msg("starting chat")
		return srv.Run(ctx, services...)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
