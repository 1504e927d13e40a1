package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/ui"
)

const defaultHistoryLimit = 10

type HistoryCommand struct {
	memory    Memory
	formatter *ResponseFormatter
}

func NewHistoryCommand(memory Memory) *HistoryCommand {
	return &HistoryCommand{memory: memory, formatter: NewResponseFormatter()}
}

func (c *HistoryCommand) Name() string {
	return "history"
}

func (c *HistoryCommand) Description() string {
	return "Show the last messages of the thread"
}

func (c *HistoryCommand) Execute(ctx context.Context, threadID string, args []string) (string, error) {
	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("%w: limit must be a positive number", errUsage)
		}
		limit = n
	}

	res, err := c.memory.Query(ctx, threadID, core.QueryOptions{Limit: limit})
	if err != nil {
		return "", err
	}
	if len(res.UIMessages) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("History"),
			c.formatter.Label("Thread", threadID),
			c.formatter.Label("Messages", "none"),
		), nil
	}

	var sb strings.Builder
	for _, msg := range res.UIMessages {
		sb.WriteString(RenderUIMessage(msg))
	}
	return c.formatter.Combine(
		c.formatter.Info("History"),
		c.formatter.Label("Thread", threadID),
		sb.String(),
	), nil
}

// RenderUIMessage prints one normalized message as terminal lines.
func RenderUIMessage(msg core.UIMessage) string {
	var sb strings.Builder
	for _, p := range msg.Parts {
		switch p.Type {
		case string(core.PartText):
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			fmt.Fprintf(&sb, "%s: %s\n", ui.Role(string(msg.Role)), p.Text)
		case string(core.PartToolCall):
			fmt.Fprintf(&sb, "%s: %s\n", ui.Role(string(msg.Role)),
				ui.ToolStyle.Render(fmt.Sprintf("→ %s %s", p.ToolName, p.Args)))
		case string(core.PartToolResult):
			result := oneLine(p.Result, 200)
			if p.IsError {
				result = ui.ErrorStyle.Render("error: ") + result
			}
			fmt.Fprintf(&sb, "%s: %s %s\n", ui.Role(string(msg.Role)), ui.ToolStyle.Render("← "+p.ToolName), result)
		case string(core.PartStructured):
			fmt.Fprintf(&sb, "%s: %s\n", ui.Role(string(msg.Role)), p.Data)
		default:
			fmt.Fprintf(&sb, "%s: %s\n", ui.Role(string(msg.Role)), ui.DescStyle.Render(p.Text))
		}
	}
	return sb.String()
}
