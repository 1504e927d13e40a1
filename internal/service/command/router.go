// Package command implements the slash commands of the chat terminal.
package command

import (
	"context"
	"slices"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

type Router struct {
	commands  map[string]core.Command
	formatter *ResponseFormatter
}

func New(commands []core.Command) *Router {
	c := &Router{
		commands:  make(map[string]core.Command),
		formatter: NewResponseFormatter(),
	}

	for _, cmd := range commands {
		c.commands[cmd.Name()] = cmd
	}
	c.commands["help"] = &helpCommand{router: c}
	return c
}

// Execute runs input when it is a slash command. The bool reports whether
// input was handled.
func (c *Router) Execute(ctx context.Context, threadID, input string) (string, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", false
	}

	parts := strings.Fields(input)
	name := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	cmd, ok := c.commands[name]
	if !ok {
		return c.formatter.Combine(
			c.formatter.Error(errUnknown(name)),
			c.formatter.Tip("type /help for the list of commands"),
		), true
	}

	result, err := cmd.Execute(ctx, threadID, args)
	if err != nil {
		return c.formatter.Combine(c.formatter.Error(err)), true
	}
	return result, true
}

// ListCommands returns the commands sorted by name.
func (c *Router) ListCommands() []core.Command {
	res := make([]core.Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		res = append(res, cmd)
	}
	slices.SortFunc(res, func(a, b core.Command) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return res
}

type helpCommand struct {
	router *Router
}

func (c *helpCommand) Name() string        { return "help" }
func (c *helpCommand) Description() string { return "List available commands" }

func (c *helpCommand) Execute(ctx context.Context, threadID string, args []string) (string, error) {
	f := c.router.formatter
	items := make([]string, 0, len(c.router.commands))
	for _, cmd := range c.router.ListCommands() {
		items = append(items, "/"+cmd.Name()+"  "+cmd.Description())
	}
	return f.Combine(f.Info("Commands"), f.List(items)), nil
}
