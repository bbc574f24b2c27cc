package resolver

import "fmt"

// ResolutionError means the payload cannot be interpreted at all. It is terminal.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolution failed: %s: %v", e.Reason, e.Err)
	}
	return "resolution failed: " + e.Reason
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
