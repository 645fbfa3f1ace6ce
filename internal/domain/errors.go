package domain

import (
	"errors"
	"fmt"
)

// Code is the error taxonomy of the pipeline. Fatal codes abort the run;
// compression shortfalls are folded into the MergeResult instead and never
// surface as errors.
type Code string

const (
	CodeUnreadableInput   Code = "unreadable_input"
	CodeUnsupportedFormat Code = "unsupported_format"
	CodeInvalidGeometry   Code = "invalid_geometry"
	CodeAssemblyError     Code = "assembly_error"
	CodeCancelled         Code = "cancelled"
)

// Error is a pipeline error tagged with the stage it occurred in and the
// offending input item (-1 when no single item is responsible).
type Error struct {
	Code    Code
	Stage   Stage
	Item    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Item >= 0 {
		msg = fmt.Sprintf("%s (input %d)", msg, e.Item)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// WithStage returns a copy of the error tagged with the given stage.
func (e *Error) WithStage(stage Stage) *Error {
	clone := *e
	clone.Stage = stage
	return &clone
}

// UnreadableInput marks a file that could not be decoded as a supported
// raster format or a valid PDF.
func UnreadableInput(item int, msg string, cause error) *Error {
	return &Error{Code: CodeUnreadableInput, Item: item, Message: msg, Cause: cause}
}

// UnsupportedFormat marks a recognized but unhandled input encoding.
func UnsupportedFormat(item int, msg string) *Error {
	return &Error{Code: CodeUnsupportedFormat, Item: item, Message: msg}
}

// InvalidGeometry marks a page whose intrinsic dimensions are unusable.
func InvalidGeometry(item int, msg string) *Error {
	return &Error{Code: CodeInvalidGeometry, Item: item, Message: msg}
}

// AssemblyError marks content the document writer rejected.
func AssemblyError(item int, msg string, cause error) *Error {
	return &Error{Code: CodeAssemblyError, Item: item, Message: msg, Cause: cause}
}

// Cancelled marks a user-initiated abort. Not a failure in the taxonomy,
// but it still terminates the run.
func Cancelled(stage Stage, cause error) *Error {
	return &Error{Code: CodeCancelled, Stage: stage, Item: -1, Message: "run cancelled", Cause: cause}
}

// CodeOf extracts the pipeline error code, or "" for foreign errors.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ItemOf extracts the offending item index, or -1.
func ItemOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Item
	}
	return -1
}

// IsCode reports whether err carries the given pipeline code.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }
