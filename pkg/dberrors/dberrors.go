// Package dberrors implements the structured error kinds of the storage
// engine's error-handling design: OutOfMemory, Aborted, LockStateInvalid,
// Serialization, and IO. It is adapted from a pkg/error package of the same
// shape, narrowed to the categories this engine actually raises.
package dberrors

import (
	"fmt"
	"runtime"
	"strings"
)

// Category classifies an error by the handling strategy it calls for.
type Category int

const (
	// OutOfMemory signals page-allocation failure (buffer pool exhausted).
	OutOfMemory Category = iota

	// Aborted signals a transaction abort, whether from wait-die or from an
	// illegal lock request while SHRINKING.
	Aborted

	// LockStateInvalid signals a lock operation attempted outside of
	// GROWING, or an unlock of a RID the transaction does not hold.
	LockStateInvalid

	// Serialization signals a malformed log record or page payload.
	Serialization

	// IO signals a failure from the disk manager.
	IO
)

func (c Category) String() string {
	switch c {
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case Aborted:
		return "ABORTED"
	case LockStateInvalid:
		return "LOCK_STATE_INVALID"
	case Serialization:
		return "SERIALIZATION"
	case IO:
		return "IO"
	default:
		return "UNKNOWN"
	}
}

// StorageError is a structured error carrying the context needed to
// diagnose a failure without re-deriving it from a bare string.
type StorageError struct {
	Category  Category
	Message   string
	Operation string
	Component string
	Cause     error
	Stack     []uintptr
}

// New creates a StorageError with the given category and message.
func New(category Category, message string) *StorageError {
	return &StorageError{
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Wrap attaches operation/component context to err. If err is already a
// StorageError, the existing category is preserved and only empty fields
// are filled in; otherwise a new IO-categorized StorageError is created.
func Wrap(err error, operation, component string) *StorageError {
	if err == nil {
		return nil
	}

	if se, ok := err.(*StorageError); ok {
		if se.Operation == "" {
			se.Operation = operation
		}
		if se.Component == "" {
			se.Component = component
		}
		return se
	}

	return &StorageError{
		Category:  IO,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

func (e *StorageError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Category, e.Message))
	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}
	return b.String()
}

// Unwrap enables errors.Is/errors.As traversal to the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// FormatStack renders the captured call stack for debugging.
func (e *StorageError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)
	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return b.String()
}
