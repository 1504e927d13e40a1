package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkingMemoryPatch_Apply(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		patch    WorkingMemoryPatch
		expected map[string]any
	}{
		{
			name:     "merge into empty",
			data:     nil,
			patch:    WorkingMemoryPatch{Set: map[string]any{"city": "Seattle"}},
			expected: map[string]any{"city": "Seattle"},
		},
		{
			name:     "overwrite and keep others",
			data:     map[string]any{"city": "Paris", "lang": "fr"},
			patch:    WorkingMemoryPatch{Set: map[string]any{"city": "Seattle"}},
			expected: map[string]any{"city": "Seattle", "lang": "fr"},
		},
		{
			name:     "nil deletes",
			data:     map[string]any{"city": "Paris", "lang": "fr"},
			patch:    WorkingMemoryPatch{Set: map[string]any{"lang": nil}},
			expected: map[string]any{"city": "Paris"},
		},
		{
			name:     "replace",
			data:     map[string]any{"city": "Paris"},
			patch:    WorkingMemoryPatch{Set: map[string]any{"name": "Ann"}, Replace: true},
			expected: map[string]any{"name": "Ann"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.patch.Apply(tt.data))
		})
	}
}

func TestWorkingMemoryPatch_Merge(t *testing.T) {
	var p WorkingMemoryPatch
	p.Merge(WorkingMemoryPatch{Set: map[string]any{"a": 1, "b": 2}})
	p.Merge(WorkingMemoryPatch{Set: map[string]any{"b": 3}})
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, p.Set)

	p.Merge(WorkingMemoryPatch{Set: map[string]any{"c": 4}, Replace: true})
	assert.True(t, p.Replace)
	assert.Equal(t, map[string]any{"c": 4}, p.Set)
}

func TestMessageHelpers(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart("hello "),
			ToolCallPart(ToolCall{ID: "call_1", Function: FunctionCall{Name: "weather"}}),
			TextPart("world"),
		},
	}

	assert.Equal(t, "hello world", msg.Text())
	assert.Len(t, msg.ToolCalls(), 1)
	assert.Nil(t, msg.ToolResult())
	assert.Equal(t, "hello \nworld", msg.IndexText())
	assert.False(t, RoleSystem.Valid())
	assert.True(t, RoleTool.Valid())
}

func TestErrorClassification(t *testing.T) {
	sve := &SchemaValidationError{Tool: "weather", Stage: StageInput, Err: errors.New("missing city")}
	tee := &ToolExecutionError{Tool: "weather", Err: errors.New("boom")}

	assert.Equal(t, ErrorKindValidation, ToolErrorKind(fmt.Errorf("wrapped: %w", sve)))
	assert.Equal(t, ErrorKindExecution, ToolErrorKind(tee))

	se := NewStorageError("commit", errors.New("disk full"))
	assert.Same(t, se, NewStorageError("outer", se))
	assert.Nil(t, NewStorageError("noop", nil))

	var target *StorageError
	assert.True(t, errors.As(fmt.Errorf("x: %w", se), &target))
	assert.Equal(t, "commit", target.Op)
}
