package vm

import (
	"errors"
	"fmt"
)

// Script exception messages.
const (
	ErrNullPointer   = "Null pointer access"
	ErrDivideByZero  = "Divide by zero"
	ErrStackOverflow = "Stack overflow"
	ErrOutOfBounds   = "Index out of bounds"
	ErrAborted       = "Execution aborted"
)

// Exception is a script exception. Function and Line locate the instruction that raised it.
type Exception struct {
	Message  string
	Function string
	Line     int
}

func (e *Exception) Error() string {
	if e.Function == "" {
		return "script exception: " + e.Message
	}
	if e.Line > 0 {
		return fmt.Sprintf("script exception in '%s' at line %d: %s", e.Function, e.Line, e.Message)
	}
	return fmt.Sprintf("script exception in '%s': %s", e.Function, e.Message)
}

// located fills in the position of an exception raised by a host call or the loop itself.
// An exception that already carries a location came from a deeper frame and is kept as is.
func located(err error, function string, line int) error {
	var ex *Exception
	if errors.As(err, &ex) {
		if ex.Function == "" {
			ex.Function, ex.Line = function, line
		}
		return ex
	}
	return &Exception{Message: err.Error(), Function: function, Line: line}
}

func raise(format string, args ...any) error {
	return &Exception{Message: fmt.Sprintf(format, args...)}
}
