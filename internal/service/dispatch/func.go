package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Func builds a Tool from a typed function. Both schemas are inferred from
// In and Out.
func Func[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) (Tool, error) {
	input, err := jsonschema.For[In](nil)
	if err != nil {
		return Tool{}, fmt.Errorf("failed to infer input schema of %s: %w", name, err)
	}
	output, err := jsonschema.For[Out](nil)
	if err != nil {
		return Tool{}, fmt.Errorf("failed to infer output schema of %s: %w", name, err)
	}

	return Tool{
		Name:         name,
		Description:  description,
		InputSchema:  input,
		OutputSchema: output,
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in In
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, fmt.Errorf("failed to decode arguments: %w", err)
			}
			return fn(ctx, in)
		},
	}, nil
}

// MustFunc is Func for tools declared at startup.
func MustFunc[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) Tool {
	t, err := Func(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}
