package directline

import (
	"errors"
	"fmt"
)

// ErrMissingSecret means no Direct Line secret was configured. Checked before
// any network call; fatal, never retried.
var ErrMissingSecret = errors.New("direct line secret not configured")

// UpstreamError is a failed remote call: either a transport failure
// (Status == 0) or a non-success HTTP status from the Direct Line service.
type UpstreamError struct {
	Op     string // "start conversation", "post activity", "list activities"
	Status int    // HTTP status, 0 for transport failures
	Err    error  // underlying transport error, nil for status failures
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
