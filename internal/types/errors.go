// Package types holds the shared error taxonomy and small cross-cutting
// types used by every forest component. Every error surfaced to the tool
// layer carries a tag so the router can map it to a structured payload
// without string matching.
package types

import (
	"errors"
	"fmt"
)

// ErrorTag identifies an error class on the wire.
type ErrorTag string

const (
	TagValidation        ErrorTag = "ValidationError"
	TagStorage           ErrorTag = "StorageError"
	TagVectorUnavailable ErrorTag = "VectorUnavailable"
	TagTimeout           ErrorTag = "Timeout"
	TagUnknownTool       ErrorTag = "UnknownTool"
	TagNoActiveProject   ErrorTag = "NoActiveProject"
	TagGateBlocked       ErrorTag = "GateBlocked"
	TagConflict          ErrorTag = "Conflict"
)

// TaggedError is the concrete error type behind every tag.
// Key is set for validation errors that name an offending/missing field.
type TaggedError struct {
	Tag     ErrorTag
	Message string
	Key     string
	Err     error
}

func (e *TaggedError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key: %s)", e.Tag, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

func (e *TaggedError) Unwrap() error { return e.Err }

// Is lets errors.Is match on tag identity, so sentinel-style checks work:
//
//	errors.Is(err, &TaggedError{Tag: TagTimeout})
func (e *TaggedError) Is(target error) bool {
	t, ok := target.(*TaggedError)
	if !ok {
		return false
	}
	return t.Tag == e.Tag
}

// Validation creates a ValidationError naming the offending key.
func Validation(key, format string, args ...interface{}) *TaggedError {
	return &TaggedError{Tag: TagValidation, Key: key, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps an I/O failure from the KV store.
func Storage(err error, format string, args ...interface{}) *TaggedError {
	return &TaggedError{Tag: TagStorage, Message: fmt.Sprintf(format, args...), Err: err}
}

// VectorUnavailable marks the vector index as unreachable. Callers must
// degrade gracefully rather than fail the operation.
func VectorUnavailable(err error) *TaggedError {
	msg := "vector index unavailable"
	if err != nil {
		msg = fmt.Sprintf("vector index unavailable: %v", err)
	}
	return &TaggedError{Tag: TagVectorUnavailable, Message: msg, Err: err}
}

// Timeout marks an intelligence delegation that exceeded its deadline.
func Timeout(requestID string) *TaggedError {
	return &TaggedError{Tag: TagTimeout, Key: requestID, Message: fmt.Sprintf("intelligence request %s timed out", requestID)}
}

// UnknownTool marks a router rejection.
func UnknownTool(name string) *TaggedError {
	return &TaggedError{Tag: TagUnknownTool, Key: name, Message: fmt.Sprintf("unknown tool: %s", name)}
}

// NoActiveProject marks tools invoked without a selected project.
func NoActiveProject() *TaggedError {
	return &TaggedError{Tag: TagNoActiveProject, Message: "no active project; create or switch to one first"}
}

// GateBlocked marks an onboarding gate that refused to advance.
func GateBlocked(stage, reason string) *TaggedError {
	return &TaggedError{Tag: TagGateBlocked, Key: stage, Message: reason}
}

// Conflict marks an invariant violation detected during save.
func Conflict(format string, args ...interface{}) *TaggedError {
	return &TaggedError{Tag: TagConflict, Message: fmt.Sprintf(format, args...)}
}

// TagOf extracts the tag from any error in the chain. Untagged errors
// report as StorageError only when they wrap one; otherwise empty.
func TagOf(err error) ErrorTag {
	var te *TaggedError
	if errors.As(err, &te) {
		return te.Tag
	}
	return ""
}

// HasTag reports whether err carries the given tag anywhere in its chain.
func HasTag(err error, tag ErrorTag) bool {
	var te *TaggedError
	if errors.As(err, &te) {
		return te.Tag == tag
	}
	return false
}
