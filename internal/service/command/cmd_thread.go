package command

import (
	"context"
	"fmt"
	"time"
)

type ThreadCommand struct {
	memory    Memory
	session   *Session
	formatter *ResponseFormatter
}

func NewThreadCommand(memory Memory, session *Session) *ThreadCommand {
	return &ThreadCommand{memory: memory, session: session, formatter: NewResponseFormatter()}
}

func (c *ThreadCommand) Name() string {
	return "thread"
}

func (c *ThreadCommand) Description() string {
	return "List threads or switch to another one"
}

func (c *ThreadCommand) Execute(ctx context.Context, threadID string, args []string) (string, error) {
	if len(args) > 0 {
		c.session.Switch(args[0])
		return c.formatter.Combine(c.formatter.Success("Switched to thread " + args[0])), nil
	}

	threads, err := c.memory.Threads(ctx, c.session.ResourceID())
	if err != nil {
		return "", err
	}

	items := make([]string, 0, len(threads))
	for _, t := range threads {
		marker := " "
		if t.ID == threadID {
			marker = "*"
		}
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		items = append(items, fmt.Sprintf("%s %s  %s  %s", marker, t.ID, oneLine(title, 50), t.UpdatedAt.Format(time.DateTime)))
	}

	return c.formatter.Combine(
		c.formatter.Info("Threads"),
		c.formatter.Label("Resource", c.session.ResourceID()),
		c.formatter.List(items),
		c.formatter.Usage("/thread <id>"),
	), nil
}
