package scanner

import "fmt"

// Thresholds are the escalation policy constants, supplied by configuration.
type Thresholds struct {
	// JobReset is the failure count at which a job stops being retried.
	JobReset int
	// BuilderReset is the failure count at which a virtualized builder is
	// reset (and a non-virtualized builder disabled).
	BuilderReset int
	// BuilderResetMultiple bounds how many resets a virtualized builder
	// gets before it is disabled, at BuilderReset * BuilderResetMultiple
	// failures.
	BuilderResetMultiple int
}

// Counts are the inputs to a single failure assessment, taken after both
// counters have been incremented for the failure being assessed.
type Counts struct {
	Builder      int  // builder failure_count
	Job          int  // job failure_count; meaningless when HasJob is false
	HasJob       bool // a job was attached when the failure occurred
	Virtualized  bool
	RetryAllowed bool
}

// Action is the assessor's verdict. The caller issues every store write and
// RPC the action calls for; Assess itself has no side effects.
type Action struct {
	// RetryJob requeues the job for dispatch elsewhere.
	RetryJob bool
	// FailJob marks the job permanently failed and detaches it.
	FailJob bool
	// ExonerateBuilder zeroes the builder's failure count: the job was
	// failing, not the builder.
	ExonerateBuilder bool
	// ResumeBuilder hard-resets the builder's VM as a corrective step.
	ResumeBuilder bool
	// DisableBuilder takes the builder out of rotation until an operator
	// re-enables it.
	DisableBuilder bool
	// Note is the operator-visible reason accompanying a disablement.
	Note string
}

// Assess maps failure counters to a corrective action. Deterministic given
// its inputs; called exactly once per scan-level failure.
func Assess(c Counts, t Thresholds) Action {
	var a Action

	if c.HasJob {
		switch {
		case !c.RetryAllowed:
			a.FailJob = true
		case c.Job > c.Builder:
			// The job fails more often than the builder does overall:
			// blame the job and clear the builder's record.
			a.FailJob = true
			a.ExonerateBuilder = true
		case c.Job < t.JobReset:
			a.RetryJob = true
		default:
			a.FailJob = true
		}
	}

	// Builder-level escalation is independent of the job verdict, except
	// that an exonerated builder starts over from zero.
	if a.ExonerateBuilder {
		return a
	}

	if c.Virtualized {
		limit := t.BuilderReset * t.BuilderResetMultiple
		switch {
		case c.Builder >= limit:
			a.DisableBuilder = true
			a.Note = fmt.Sprintf("builder disabled after %d consecutive failures", c.Builder)
		case c.Builder > 0 && c.Builder%t.BuilderReset == 0:
			a.ResumeBuilder = true
		}
	} else if c.Builder >= t.BuilderReset {
		a.DisableBuilder = true
		a.Note = fmt.Sprintf("builder disabled after %d consecutive failures", c.Builder)
	}

	return a
}
