package core

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrThreadNotFound = errors.New("thread not found")
)

// Error kinds recorded on tool-result messages.
const (
	ErrorKindValidation = "schema_validation"
	ErrorKindExecution  = "tool_execution"
)

// StorageError means the persistence layer failed. Surfaced to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

type SchemaStage string

const (
	StageInput  SchemaStage = "input"
	StageOutput SchemaStage = "output"
)

// SchemaValidationError means tool input or output did not match its schema.
type SchemaValidationError struct {
	Tool  string
	Stage SchemaStage
	Err   error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("tool %s: invalid %s: %v", e.Tool, e.Stage, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// ToolExecutionError means the tool executor failed.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// RecallError wraps a vector search failure. Never surfaced to the caller.
type RecallError struct {
	Err error
}

func (e *RecallError) Error() string {
	return fmt.Sprintf("semantic recall: %v", e.Err)
}

func (e *RecallError) Unwrap() error { return e.Err }

// GenerationAbortedError means the model failed or was cancelled.
type GenerationAbortedError struct {
	Err error
}

func (e *GenerationAbortedError) Error() string {
	return fmt.Sprintf("generation aborted: %v", e.Err)
}

func (e *GenerationAbortedError) Unwrap() error { return e.Err }

// ToolErrorKind classifies a dispatcher error for the tool-result message.
func ToolErrorKind(err error) string {
	var sve *SchemaValidationError
	if errors.As(err, &sve) {
		return ErrorKindValidation
	}
	return ErrorKindExecution
}
