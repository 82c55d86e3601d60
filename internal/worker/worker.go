// Package worker provides the RPC client used to talk to a remote builder.
// The scanner only depends on the Client interface; the HTTP implementation
// lives alongside it.
package worker

import "context"

// State values a worker reports for itself.
const (
	StateIdle     = "idle"     // no build in progress
	StateBuilding = "building" // build in progress
	StateWaiting  = "waiting"  // build finished, result waiting for collection
)

// StatusReply is the worker's answer to a status call.
type StatusReply struct {
	State   string `json:"state"`
	Cookie  string `json:"build_cookie,omitempty"`
	Logtail string `json:"logtail,omitempty"`
	Result  string `json:"result,omitempty"` // "ok" or "failed", set when State is waiting
	Version string `json:"version,omitempty"`
}

// Input is a file the worker must fetch before a build starts.
type Input struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Digest string `json:"digest,omitempty"`
}

// DispatchSpec carries the build-type specific arguments for a dispatch.
type DispatchSpec struct {
	Kind  string            `json:"kind"`
	JobID string            `json:"job_id"`
	Args  map[string]string `json:"args,omitempty"`
}

// Client is the RPC façade for one builder. Every call suspends until the
// remote replies or the context is done. Errors are either a *TransportError
// (worker unreachable or broken connection) or a *Fault (worker-reported
// problem); callers treat both as a failed scan operation.
type Client interface {
	// Status reports what the worker believes it is doing.
	Status(ctx context.Context) (*StatusReply, error)
	// Dispatch makes the required inputs present on the worker and starts
	// the build identified by cookie.
	Dispatch(ctx context.Context, cookie string, inputs []Input, spec DispatchSpec) error
	// Abort asks the worker to stop its current build.
	Abort(ctx context.Context) error
	// Resume hard-resets the worker's VM. Only meaningful for virtualized
	// builders.
	Resume(ctx context.Context) error
	// Clean asks the worker to discard build state and return to idle.
	Clean(ctx context.Context) error
	// Echo is a liveness probe; a healthy worker returns the payload.
	Echo(ctx context.Context, payload string) (string, error)
}
