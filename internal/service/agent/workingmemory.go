package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/internal/service/memory"
)

var errWorkingMemoryOff = errors.New("working memory updates are not enabled for this turn")

type turnKey struct{}

func withTurn(ctx context.Context, t *turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

func turnFrom(ctx context.Context) *turn {
	t, _ := ctx.Value(turnKey{}).(*turn)
	return t
}

type workingMemoryOutput struct {
	Updated       []string       `json:"updated"`
	WorkingMemory map[string]any `json:"working_memory"`
}

func workingMemoryTool() dispatch.Tool {
	return dispatch.Tool{
		Name:        memory.UpdateWorkingMemoryTool,
		Description: "Record durable facts in the thread's working memory. Keys in set are merged; a null value removes the key.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"set": {
					Type:        "object",
					Description: "Keys to write. Use null to delete a key.",
				},
				"replace": {
					Type:        "boolean",
					Description: "Drop every existing key before applying set.",
				},
			},
			Required: []string{"set"},
		},
		Execute: updateWorkingMemory,
	}
}

// updateWorkingMemory stages the patch on the running turn. It is written
// together with the turn's messages.
func updateWorkingMemory(ctx context.Context, args json.RawMessage) (any, error) {
	t := turnFrom(ctx)
	if t == nil || !t.workingMemoryTool() {
		return nil, errWorkingMemoryOff
	}

	var patch core.WorkingMemoryPatch
	if err := json.Unmarshal(args, &patch); err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}
	if t.patch == nil {
		t.patch = &core.WorkingMemoryPatch{}
	}
	t.patch.Merge(patch)

	var base map[string]any
	if t.window != nil && t.window.WorkingMemory != nil {
		base = t.window.WorkingMemory.Data
	}

	updated := make([]string, 0, len(patch.Set))
	for k := range patch.Set {
		updated = append(updated, k)
	}
	slices.Sort(updated)

	return workingMemoryOutput{
		Updated:       updated,
		WorkingMemory: t.patch.Apply(base),
	}, nil
}
