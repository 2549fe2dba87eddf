package mcpservice

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrResourceNotFound = errors.New("resource not found")
)

// ArgumentError reports the first schema constraint a tool call violated.
type ArgumentError struct {
	Tool string
	// Path is the dotted location of the offending value; empty for the
	// arguments object itself.
	Path      string
	Violation string
}

func (e *ArgumentError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Violation)
	}
	return fmt.Sprintf("invalid arguments for %s: %s: %s", e.Tool, e.Path, e.Violation)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArguments
}
