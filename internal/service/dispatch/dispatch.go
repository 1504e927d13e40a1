// Package dispatch holds the tools a turn may call. Arguments and results
// are validated against JSON schemas on every invocation.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// Executor receives arguments that already passed the input schema.
type Executor func(ctx context.Context, input json.RawMessage) (any, error)

type Tool struct {
	Name        string
	Description string
	// InputSchema defaults to an object accepting anything.
	InputSchema *jsonschema.Schema
	// OutputSchema is optional; nil skips output validation.
	OutputSchema *jsonschema.Schema
	Execute      Executor
}

type declared struct {
	tool   Tool
	params json.RawMessage
	input  *jsonschema.Resolved
	output *jsonschema.Resolved
}

type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]*declared
}

func New() *Dispatcher {
	return &Dispatcher{tools: make(map[string]*declared)}
}

// Declare registers t. A tool with the same name is replaced.
func (d *Dispatcher) Declare(t Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tool without name", core.ErrInvalidRequest)
	}
	if t.Execute == nil {
		return fmt.Errorf("%w: tool %s without executor", core.ErrInvalidRequest, t.Name)
	}

	input := t.InputSchema
	if input == nil {
		input = &jsonschema.Schema{Type: "object"}
	}

	entry := &declared{tool: t}

	var err error
	if entry.input, err = input.Resolve(nil); err != nil {
		return fmt.Errorf("failed to resolve input schema of %s: %w", t.Name, err)
	}
	if t.OutputSchema != nil {
		if entry.output, err = t.OutputSchema.Resolve(nil); err != nil {
			return fmt.Errorf("failed to resolve output schema of %s: %w", t.Name, err)
		}
	}
	if entry.params, err = json.Marshal(input); err != nil {
		return fmt.Errorf("failed to marshal input schema of %s: %w", t.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[t.Name] = entry
	return nil
}

func (d *Dispatcher) Remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tools, name)
}

func (d *Dispatcher) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tools[name]
	return ok
}

// Definitions lists the declared tools by name in the model's format.
func (d *Dispatcher) Definitions() []core.Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	defs := make([]core.Tool, 0, len(d.tools))
	for _, e := range d.tools {
		defs = append(defs, core.Tool{
			Type: "function",
			Function: core.Function{
				Name:        e.tool.Name,
				Description: e.tool.Description,
				Parameters:  e.params,
			},
		})
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Function.Name < defs[j].Function.Name
	})
	return defs
}

// Invoke validates rawArgs, runs the tool and validates its result. Every
// failure is a *core.SchemaValidationError or *core.ToolExecutionError.
func (d *Dispatcher) Invoke(ctx context.Context, name, rawArgs string) (json.RawMessage, error) {
	d.mu.RLock()
	entry, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		return nil, &core.ToolExecutionError{Tool: name, Err: core.ErrToolNotFound}
	}

	args := json.RawMessage(strings.TrimSpace(rawArgs))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := validate(entry.input, args); err != nil {
		return nil, &core.SchemaValidationError{Tool: name, Stage: core.StageInput, Err: err}
	}

	out, err := d.execute(ctx, entry.tool, args)
	if err != nil {
		return nil, &core.ToolExecutionError{Tool: name, Err: err}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, &core.SchemaValidationError{Tool: name, Stage: core.StageOutput, Err: err}
	}
	if entry.output != nil {
		if err := validate(entry.output, raw); err != nil {
			return nil, &core.SchemaValidationError{Tool: name, Stage: core.StageOutput, Err: err}
		}
	}
	return raw, nil
}

func (d *Dispatcher) execute(ctx context.Context, t Tool, args json.RawMessage) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.FromCtx(ctx).Error().
				Str("tool", t.Name).
				Str("stack", string(debug.Stack())).
				Msgf("tool panicked: %v", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Execute(ctx, args)
}

func validate(schema *jsonschema.Resolved, raw json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return schema.Validate(instance)
}
