// Package cli is the interactive terminal transport.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/agent"
	"github.com/sandevgo/tuskmem/internal/service/command"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type TurnStarter interface {
	Start(ctx context.Context, req agent.TurnRequest) (*agent.Stream, error)
}

type ReadLine struct {
	engine  TurnStarter
	router  core.CmdRouter
	session *command.Session
	rl      *readline.Instance
}

func NewReadLine(engine TurnStarter, router core.CmdRouter, session *command.Session, cfg *config.AppConfig) (*ReadLine, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     cfg.GetHistoryPath(),
		AutoComplete:    completer(router),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		engine:  engine,
		router:  router,
		session: session,
		rl:      rl,
	}, nil
}

func completer(router core.CmdRouter) readline.AutoCompleter {
	items := make([]readline.PrefixCompleterInterface, 0)
	for _, cmd := range router.ListCommands() {
		items = append(items, readline.PcItem("/"+cmd.Name()))
	}
	return readline.NewPrefixCompleter(items...)
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Str("thread", r.session.ThreadID()).Msg("chat started, type 'exit' to quit")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil
				}
				continue
			} else if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		if out, ok := r.router.Execute(ctx, r.session.ThreadID(), line); ok {
			fmt.Fprintln(r.rl.Stdout(), out)
			continue
		}

		_, err = Send(ctx, r.rl.Stdout(), r.engine, agent.TurnRequest{
			ThreadID:   r.session.ThreadID(),
			ResourceID: r.session.ResourceID(),
			Input:      []string{line},
		})
		if err != nil {
			logger.Debug().Err(err).Msg("turn failed")
		}
	}
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
