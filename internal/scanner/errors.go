package scanner

import (
	"errors"
	"fmt"
)

// ConsistencyError reports a builder/job state combination no recovery rule
// anticipates, e.g. a clean builder holding a job. It aborts the current
// scan before any RPC is issued; the next scheduled scan still runs.
type ConsistencyError struct {
	Builder string
	Reason  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("scanner: builder %s inconsistent: %s", e.Builder, e.Reason)
}

// IsConsistency reports whether err is (or wraps) a ConsistencyError.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
