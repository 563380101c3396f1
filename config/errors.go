package config

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports missing or invalid configuration. It is raised
// before any network call; a non-empty Missing lists every absent required
// setting so they can all be fixed in one pass.
type ValidationError struct {
	// Path is the config file involved, when the error came from a file.
	Path string

	// Missing names the required settings that are absent.
	Missing []string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		missing := append([]string(nil), e.Missing...)
		sort.Strings(missing)
		return fmt.Sprintf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if e.Path != "" {
		return fmt.Sprintf("config: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *ValidationError) Unwrap() error { return e.Err }
