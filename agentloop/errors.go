package agentloop

import (
	"fmt"
	"time"
)

// Tool errors are recoverable: the dispatcher folds them into structured
// tool results that flow back to the model instead of aborting the run.

// ContainmentError reports a path that resolves outside the sandbox root.
type ContainmentError struct {
	Path string
}

func (e *ContainmentError) Error() string {
	return fmt.Sprintf("%q is outside the working directory", e.Path)
}

// NotFoundError reports a path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: %q", e.Path)
}

// NotAFileError reports a path that exists but is not a regular file.
type NotAFileError struct {
	Path string
}

func (e *NotAFileError) Error() string {
	return fmt.Sprintf("%q is not a regular file", e.Path)
}

// NotADirectoryError reports a path that is not a listable directory.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("%q is not a valid directory", e.Path)
}

// UnsupportedExtensionError reports a script target that is not a Python
// file.
type UnsupportedExtensionError struct {
	Path string
}

func (e *UnsupportedExtensionError) Error() string {
	return fmt.Sprintf("%q is not a Python file", e.Path)
}

// SubprocessTimeoutError reports a script that exceeded the wall-clock
// limit and was killed.
type SubprocessTimeoutError struct {
	Path  string
	Limit time.Duration
}

func (e *SubprocessTimeoutError) Error() string {
	return fmt.Sprintf("execution of %q timed out after %s", e.Path, e.Limit)
}

// SubprocessError reports a script that could not be started or whose
// output could not be collected. A nonzero exit code is not a
// SubprocessError; it is reported in the tool output.
type SubprocessError struct {
	Path  string
	Cause error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("executing %q: %v", e.Path, e.Cause)
}

func (e *SubprocessError) Unwrap() error {
	return e.Cause
}

// UnknownToolError reports a dispatch request for a name with no
// registered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// InvalidArgumentsError reports tool call arguments that could not be
// decoded into the tool's request type.
type InvalidArgumentsError struct {
	Tool  string
	Cause error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Cause)
}

func (e *InvalidArgumentsError) Unwrap() error {
	return e.Cause
}
