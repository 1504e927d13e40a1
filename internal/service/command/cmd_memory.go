package command

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

// Memory is the part of the memory service the commands read and write.
type Memory interface {
	Query(ctx context.Context, threadID string, opts core.QueryOptions) (*core.QueryResult, error)
	WorkingMemory(ctx context.Context, threadID string) (*core.WorkingMemory, error)
	UpdateWorkingMemory(ctx context.Context, threadID, resourceID string, patch core.WorkingMemoryPatch) (*core.WorkingMemory, error)
	Threads(ctx context.Context, resourceID string) ([]core.Thread, error)
}

type MemoryCommand struct {
	memory    Memory
	session   *Session
	formatter *ResponseFormatter
}

func NewMemoryCommand(memory Memory, session *Session) *MemoryCommand {
	return &MemoryCommand{memory: memory, session: session, formatter: NewResponseFormatter()}
}

func (c *MemoryCommand) Name() string {
	return "memory"
}

func (c *MemoryCommand) Description() string {
	return "Show or edit working memory of the thread"
}

func (c *MemoryCommand) Execute(ctx context.Context, threadID string, args []string) (string, error) {
	if len(args) == 0 {
		wm, err := c.memory.WorkingMemory(ctx, threadID)
		if err != nil {
			return "", err
		}
		return c.render(threadID, wm), nil
	}

	patch, err := ParsePatch(args[0], args[1:])
	if err != nil {
		return c.formatter.Combine(
			c.formatter.Error(err),
			c.formatter.Usage("/memory [set key=value ... | del key ... | clear]"),
			c.formatter.Examples([]string{
				"/memory set city=Seattle",
				`/memory set units="metric" days=3`,
				"/memory del city",
			}),
		), nil
	}

	wm, err := c.memory.UpdateWorkingMemory(ctx, threadID, c.session.ResourceID(), patch)
	if err != nil {
		return "", err
	}
	return c.render(threadID, wm), nil
}

func (c *MemoryCommand) render(threadID string, wm *core.WorkingMemory) string {
	if wm == nil || len(wm.Data) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Working Memory"),
			c.formatter.Label("Thread", threadID),
			c.formatter.Label("State", "empty"),
		)
	}

	items := make([]string, 0, len(wm.Data))
	for _, k := range slices.Sorted(maps.Keys(wm.Data)) {
		v, _ := json.Marshal(wm.Data[k])
		items = append(items, fmt.Sprintf("%s = %s", k, v))
	}
	return c.formatter.Combine(
		c.formatter.Info("Working Memory"),
		c.formatter.Label("Thread", threadID),
		c.formatter.Label("Version", strconv.FormatInt(wm.Version, 10)),
		c.formatter.List(items),
	)
}

// ParsePatch turns "set k=v ...", "del k ..." or "clear" into a patch.
// Values are parsed as JSON and fall back to plain strings.
func ParsePatch(op string, args []string) (core.WorkingMemoryPatch, error) {
	patch := core.WorkingMemoryPatch{Set: make(map[string]any)}

	switch op {
	case "set":
		if len(args) == 0 {
			return patch, fmt.Errorf("%w: set needs key=value", errUsage)
		}
		for _, arg := range args {
			key, raw, ok := strings.Cut(arg, "=")
			if !ok || key == "" {
				return patch, fmt.Errorf("%w: %q is not key=value", errUsage, arg)
			}
			var value any
			if err := json.Unmarshal([]byte(raw), &value); err != nil || value == nil {
				value = raw
			}
			patch.Set[key] = value
		}
	case "del":
		if len(args) == 0 {
			return patch, fmt.Errorf("%w: del needs a key", errUsage)
		}
		for _, key := range args {
			patch.Set[key] = nil
		}
	case "clear":
		patch.Replace = true
	default:
		return patch, fmt.Errorf("%w: unknown operation %q", errUsage, op)
	}
	return patch, nil
}
