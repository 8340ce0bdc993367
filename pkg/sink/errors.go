package sink

import (
	"errors"
	"fmt"
)

// ErrNoJobName is returned when output is requested without a job name.
var ErrNoJobName = errors.New("job name is required")

// PersistenceError reports a failure to place or write chunk output.
type PersistenceError struct {
	Op   string // "path", "mkdir", "write", "zip", "rename", "validate"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
