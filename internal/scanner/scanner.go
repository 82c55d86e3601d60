// Package scanner implements the per-builder scan state machine: one
// Scanner per builder, one Scan call per cycle. A scan re-derives the
// builder's state from fresh Vitals, decides on at most one corrective or
// productive action, and applies it through the store and the worker RPC
// client. Scans are idempotent with respect to already-consistent state.
package scanner

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/behaviour"
	"github.com/zulandar/foundry/internal/clock"
	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/registry"
	"github.com/zulandar/foundry/internal/store"
	"github.com/zulandar/foundry/internal/worker"
)

// Notifier receives operator-facing fleet events. Implemented by the
// notify package; nil disables notification.
type Notifier interface {
	BuilderDisabled(builder, note string)
}

// Config holds the per-scanner policy knobs.
type Config struct {
	CancelTimeout time.Duration
	Thresholds    Thresholds
}

// Scanner drives one builder. Not safe for concurrent use; the fleet
// supervisor guarantees strictly sequential scans per builder.
type Scanner struct {
	name     string
	db       *gorm.DB
	factory  registry.Factory
	client   worker.Client
	clock    clock.Clock
	resolver *behaviour.Resolver
	cfg      Config
	notifier Notifier
	out      io.Writer

	// lastGen guards against scanning a stale registry snapshot.
	lastGen int64

	// Memoized expected cookie, invalidated when the observed job changes.
	cookieJobID string
	cookieVal   string

	// Cancellation protocol state; zero when no cancellation is underway.
	cancelJobID string
	cancelStart time.Time
}

// New creates a Scanner for the named builder.
func New(name string, db *gorm.DB, factory registry.Factory, client worker.Client, clk clock.Clock, resolver *behaviour.Resolver, cfg Config, notifier Notifier, out io.Writer) *Scanner {
	if out == nil {
		out = io.Discard
	}
	return &Scanner{
		name:     name,
		db:       db,
		factory:  factory,
		client:   client,
		clock:    clk,
		resolver: resolver,
		cfg:      cfg,
		notifier: notifier,
		out:      out,
		lastGen:  -1,
	}
}

// Scan performs one scan cycle. It derives the builder's state from fresh
// Vitals and performs at most one action. The caller refreshes the
// registry between cycles; a scan whose snapshot generation has not
// advanced since the previous cycle is a no-op. RPC and store failures
// are routed through the failure assessor and do not propagate; only
// consistency errors and registry failures are returned.
func (s *Scanner) Scan(ctx context.Context) error {
	gen := s.factory.Generation()
	if gen == s.lastGen {
		// The registry has not moved since our last cycle completed;
		// acting again would race the work that cycle already did.
		return nil
	}

	v, err := s.factory.Vitals(s.name)
	if err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	defer func() { s.lastGen = gen }()

	// Disabled and manually-driven builders are never touched.
	if !v.OK || v.Manual {
		return nil
	}

	// Consistency gate, always before any RPC: an idle-clean builder
	// cannot hold a job.
	if v.CurrentJob != "" && v.Clean() {
		return &ConsistencyError{Builder: s.name, Reason: fmt.Sprintf("clean builder holds job %s", v.CurrentJob)}
	}

	if v.CurrentJob != "" {
		return s.scanWithJob(ctx, v)
	}
	return s.scanIdle(ctx, v)
}

// scanWithJob handles every state where the store says a job is attached.
func (s *Scanner) scanWithJob(ctx context.Context, v registry.Vitals) error {
	job, err := store.Job(s.db, v.CurrentJob)
	if err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}

	if job.Status == models.JobCancelling {
		return s.continueCancellation(ctx, v, job)
	}

	reply, err := s.client.Status(ctx)
	if err != nil {
		return s.handleFailure(ctx, v, job, err)
	}
	s.reconcileVersion(v, reply.Version)

	expected, err := s.expectedCookie(job)
	if err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}

	switch {
	case reply.State == worker.StateBuilding && reply.Cookie == expected:
		// Steady monitor path. A restart between the dispatch RPC and the
		// running record leaves the job attached but still waiting; the
		// matching cookie proves the dispatch landed, so record it now.
		if job.Status != models.JobRunning {
			if err := store.MarkRunning(s.db, job.ID, s.name, s.clock.Now()); err != nil {
				return fmt.Errorf("scanner %s: %w", s.name, err)
			}
		}
		if reply.Logtail != "" {
			if err := store.AppendLogtail(s.db, job.ID, reply.Logtail); err != nil {
				return fmt.Errorf("scanner %s: %w", s.name, err)
			}
		}
		s.markScanOK(v)
		return nil

	case reply.State == worker.StateWaiting && reply.Cookie == expected:
		return s.completeBuild(ctx, v, job, reply)

	default:
		// The worker is idle, or building something else: the job is
		// lost. Recover the queue now; the next scan finds a dirty
		// builder with no job and clears the worker.
		fmt.Fprintf(s.out, "Builder %s lost job %s (worker reports %s), requeueing\n", s.name, job.ID, reply.State)
		if err := store.RecordEvent(s.db, s.name, models.EventLostJob, job.ID, fmt.Sprintf("worker reported %s with cookie %q", reply.State, reply.Cookie)); err != nil {
			log.Printf("scanner %s: record lost-job event: %v", s.name, err)
		}
		if err := store.ResetToWaiting(s.db, job.ID); err != nil {
			return fmt.Errorf("scanner %s: %w", s.name, err)
		}
		s.invalidateCookie()
		return nil
	}
}

// completeBuild collects a finished build: the behaviour records the
// terminal job state, the worker is cleaned, and the builder returns to
// the clean pool in a single scan.
func (s *Scanner) completeBuild(ctx context.Context, v registry.Vitals, job *models.BuildJob, reply *worker.StatusReply) error {
	success := reply.Result != "failed"
	if reply.Logtail != "" {
		if err := store.AppendLogtail(s.db, job.ID, reply.Logtail); err != nil {
			return fmt.Errorf("scanner %s: %w", s.name, err)
		}
	}

	b, err := s.resolver.For(job)
	if err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	if err := b.Completed(s.db, job, success, s.clock.Now()); err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	s.invalidateCookie()

	if err := s.client.Clean(ctx); err != nil {
		// The job is already safely terminal; only the builder needs
		// recovery now.
		return s.handleFailure(ctx, v, nil, err)
	}
	if err := store.SetCleanStatus(s.db, s.name, models.CleanStatusClean); err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	s.markScanOK(v)
	fmt.Fprintf(s.out, "Builder %s finished job %s (success=%t)\n", s.name, job.ID, success)
	return nil
}

// scanIdle handles every state where the store says no job is attached.
func (s *Scanner) scanIdle(ctx context.Context, v registry.Vitals) error {
	reply, err := s.client.Status(ctx)
	if err != nil {
		return s.handleFailure(ctx, v, nil, err)
	}
	s.reconcileVersion(v, reply.Version)

	if v.Clean() && reply.State != worker.StateIdle {
		return &ConsistencyError{Builder: s.name, Reason: fmt.Sprintf("clean builder but worker reports %s", reply.State)}
	}

	if reply.State != worker.StateIdle {
		// Leftover work from a lost job or a stale worker: abort it.
		fmt.Fprintf(s.out, "Builder %s has no job but worker reports %s, aborting\n", s.name, reply.State)
		if err := s.client.Abort(ctx); err != nil {
			return s.handleFailure(ctx, v, nil, err)
		}
		return nil
	}

	if !v.Clean() {
		return s.cleanWorker(ctx, v)
	}
	return s.dispatch(ctx, v)
}

// cleanWorker returns a dirty idle worker to the clean pool: resume for
// virtualized builders, a clean call otherwise, then an echo probe to
// confirm the worker answers.
func (s *Scanner) cleanWorker(ctx context.Context, v registry.Vitals) error {
	var err error
	if v.Virtualized {
		err = s.client.Resume(ctx)
	} else {
		err = s.client.Clean(ctx)
	}
	if err != nil {
		return s.handleFailure(ctx, v, nil, err)
	}

	probe := s.name + "-probe"
	got, err := s.client.Echo(ctx, probe)
	if err != nil {
		return s.handleFailure(ctx, v, nil, err)
	}
	if got != probe {
		return s.handleFailure(ctx, v, nil, fmt.Errorf("scanner %s: echo returned %q", s.name, got))
	}

	if err := store.SetCleanStatus(s.db, s.name, models.CleanStatusClean); err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	s.markScanOK(v)
	fmt.Fprintf(s.out, "Builder %s cleaned\n", s.name)
	return nil
}

// dispatch claims the next eligible job and starts it on the worker.
func (s *Scanner) dispatch(ctx context.Context, v registry.Vitals) error {
	full, err := s.factory.Builder(s.name)
	if err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	job, err := store.AcquireNextJob(s.db, full)
	if err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	if job == nil {
		s.markScanOK(v)
		return nil
	}

	b, err := s.resolver.For(job)
	if err != nil {
		// Unknown build kind: the job can never dispatch anywhere.
		log.Printf("scanner %s: %v", s.name, err)
		if ferr := store.MarkFailed(s.db, job.ID, err.Error(), s.clock.Now()); ferr != nil {
			return fmt.Errorf("scanner %s: %w", s.name, ferr)
		}
		return nil
	}

	cookieVal := b.Cookie(job)
	inputs, spec, err := b.DispatchInputs(ctx, job)
	if err != nil {
		return s.handleFailure(ctx, v, job, err)
	}
	if err := s.client.Dispatch(ctx, cookieVal, inputs, spec); err != nil {
		return s.handleFailure(ctx, v, job, err)
	}

	if err := store.MarkRunning(s.db, job.ID, s.name, s.clock.Now()); err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	s.cookieJobID = job.ID
	s.cookieVal = cookieVal
	s.markScanOK(v)
	fmt.Fprintf(s.out, "Builder %s dispatched job %s\n", s.name, job.ID)
	return nil
}

// handleFailure routes a failed scan operation through the failure
// assessor and applies its verdict. job is nil for builder-only failures.
// The failure never propagates; a handled scan counts as complete.
func (s *Scanner) handleFailure(ctx context.Context, v registry.Vitals, job *models.BuildJob, cause error) error {
	fmt.Fprintf(s.out, "Builder %s scan failed: %v\n", s.name, cause)

	builderCount, err := store.IncrementBuilderFailureCount(s.db, s.name)
	if err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}

	counts := Counts{
		Builder:      builderCount,
		Virtualized:  v.Virtualized,
		RetryAllowed: true,
	}
	if job != nil {
		counts.HasJob = true
		jobCount, err := store.IncrementJobFailureCount(s.db, job.ID)
		if err != nil {
			return fmt.Errorf("scanner %s: %w", s.name, err)
		}
		counts.Job = jobCount
		if b, err := s.resolver.For(job); err == nil {
			counts.RetryAllowed = b.RetryAllowed(job)
		}
	}

	action := Assess(counts, s.cfg.Thresholds)

	if action.ExonerateBuilder {
		if err := store.ResetBuilderFailureCount(s.db, s.name); err != nil {
			return fmt.Errorf("scanner %s: %w", s.name, err)
		}
	}
	if job != nil {
		switch {
		case action.FailJob:
			if err := store.MarkFailed(s.db, job.ID, cause.Error(), s.clock.Now()); err != nil {
				return fmt.Errorf("scanner %s: %w", s.name, err)
			}
			fmt.Fprintf(s.out, "Job %s failed permanently: %v\n", job.ID, cause)
		case action.RetryJob:
			if err := store.ResetToWaiting(s.db, job.ID); err != nil {
				return fmt.Errorf("scanner %s: %w", s.name, err)
			}
		}
		s.invalidateCookie()
	}

	if action.DisableBuilder {
		if err := store.SetBuilderOK(s.db, s.name, false, action.Note); err != nil {
			return fmt.Errorf("scanner %s: %w", s.name, err)
		}
		fmt.Fprintf(s.out, "Builder %s disabled: %s\n", s.name, action.Note)
		if s.notifier != nil {
			s.notifier.BuilderDisabled(s.name, action.Note)
		}
	} else if action.ResumeBuilder {
		if err := s.client.Resume(ctx); err != nil {
			log.Printf("scanner %s: corrective resume: %v", s.name, err)
		}
		if err := store.RecordEvent(s.db, s.name, models.EventReset, "", fmt.Sprintf("VM reset after %d failures", builderCount)); err != nil {
			log.Printf("scanner %s: record reset event: %v", s.name, err)
		}
	}

	return nil
}

// expectedCookie returns the behaviour-derived cookie for the job, cached
// until the observed job changes identity.
func (s *Scanner) expectedCookie(job *models.BuildJob) (string, error) {
	if s.cookieJobID == job.ID {
		return s.cookieVal, nil
	}
	b, err := s.resolver.For(job)
	if err != nil {
		return "", err
	}
	s.cookieJobID = job.ID
	s.cookieVal = b.Cookie(job)
	return s.cookieVal, nil
}

func (s *Scanner) invalidateCookie() {
	s.cookieJobID = ""
	s.cookieVal = ""
}

// reconcileVersion records a changed worker version. Costs nothing when
// the version already matches the in-memory record.
func (s *Scanner) reconcileVersion(v registry.Vitals, reported string) {
	if reported == "" || reported == v.Version {
		return
	}
	if err := store.SetVersion(s.db, s.name, reported); err != nil {
		log.Printf("scanner %s: record version: %v", s.name, err)
	}
}

// markScanOK resets the builder's failure streak after a fully successful
// scan. Free when the streak is already zero.
func (s *Scanner) markScanOK(v registry.Vitals) {
	if v.FailureCount == 0 {
		return
	}
	if err := store.ResetBuilderFailureCount(s.db, s.name); err != nil {
		log.Printf("scanner %s: reset failure count: %v", s.name, err)
	}
}
