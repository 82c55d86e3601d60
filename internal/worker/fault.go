package worker

import (
	"errors"
	"fmt"
)

// TransportError means the worker could not be reached or the connection
// broke mid-call. The worker's actual state is unknown.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("worker: transport %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Fault is a problem the worker itself reported at the protocol level.
type Fault struct {
	Code    int
	Message string
}

func (e *Fault) Error() string {
	return fmt.Sprintf("worker: fault %d: %s", e.Code, e.Message)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsFault reports whether err is (or wraps) a worker-reported Fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
