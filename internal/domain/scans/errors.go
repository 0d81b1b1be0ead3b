package scans

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTarget   = errors.New("target cannot be empty")
	ErrEmptyScanID   = errors.New("scan_id cannot be empty")
	ErrEmptyToolName = errors.New("tool name cannot be empty")

	// ErrUnsupportedTool is returned by the builder registry for unknown names.
	ErrUnsupportedTool = errors.New("unsupported tool")

	// ErrMissingParameter is returned by builders whose tool needs a
	// distinguished parameter (imageName, repoURL, gitURL).
	ErrMissingParameter = errors.New("missing required parameter")
)

func UnsupportedToolError(name string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedTool, name)
}

func MissingParameterError(tool, param string) error {
	return fmt.Errorf("%w: %s requires %q", ErrMissingParameter, tool, param)
}
