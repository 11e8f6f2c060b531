package contract

import (
	"errors"
	"fmt"
)

var (
	ErrModelInvoke       = errors.New("model invoke failed")
	ErrSchemaViolation   = errors.New("model response violates schema")
	ErrPromptMissing     = errors.New("required prompt is missing")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidSession    = errors.New("session id is empty or padded")
	ErrInvalidMessage    = errors.New("message is empty")
	ErrEmptyTranscript   = errors.New("transcript is empty")
	ErrCorruptTranscript = errors.New("transcript is corrupt")
	ErrEmptyDecision     = errors.New("planner returned neither an answer nor tool calls")
)

// StorageError reports a transcript persistence failure. It is the only
// failure that aborts a solve.
type StorageError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("transcript %s session=%s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type ToolDiscoveryError struct {
	Err error
}

func (e *ToolDiscoveryError) Error() string {
	return fmt.Sprintf("tool discovery failed: %v", e.Err)
}

func (e *ToolDiscoveryError) Unwrap() error { return e.Err }

// ToolExecutionError carries the tool name and the raw failure detail
// reported by the tool host.
type ToolExecutionError struct {
	Tool   string
	Detail string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Detail)
	}
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

type EmptyDecisionError struct {
	FinishReason string
}

func (e *EmptyDecisionError) Error() string {
	if e.FinishReason == "" {
		return ErrEmptyDecision.Error()
	}
	return fmt.Sprintf("%s (finish_reason=%s)", ErrEmptyDecision, e.FinishReason)
}

func (e *EmptyDecisionError) Is(target error) bool {
	return target == ErrEmptyDecision
}
