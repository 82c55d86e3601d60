package scanner

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/registry"
	"github.com/zulandar/foundry/internal/store"
	"github.com/zulandar/foundry/internal/worker"
)

// continueCancellation drives a job through the cancellation protocol
// across scans. The first scan issues a single abort; later scans poll
// until the worker goes idle or the timeout expires, then force the
// builder back to a known state.
func (s *Scanner) continueCancellation(ctx context.Context, v registry.Vitals, job *models.BuildJob) error {
	if s.cancelJobID != job.ID {
		s.cancelJobID = job.ID
		s.cancelStart = s.clock.Now()
		fmt.Fprintf(s.out, "Builder %s aborting job %s\n", s.name, job.ID)
		if err := s.client.Abort(ctx); err != nil {
			// A worker that cannot even take the abort gets the forced
			// treatment straight away.
			fmt.Fprintf(s.out, "Builder %s abort failed: %v\n", s.name, err)
			return s.finishCancel(ctx, v, job)
		}
		return nil
	}

	reply, err := s.client.Status(ctx)
	if err != nil {
		return s.finishCancel(ctx, v, job)
	}
	if reply.State == worker.StateIdle {
		return s.finishCancel(ctx, v, job)
	}
	if s.clock.Now().Sub(s.cancelStart) >= s.cfg.CancelTimeout {
		fmt.Fprintf(s.out, "Builder %s cancellation of job %s timed out\n", s.name, job.ID)
		return s.finishCancel(ctx, v, job)
	}
	return nil
}

// finishCancel forces the builder back to a dispatchable state and marks
// the job cancelled. The reset RPC is best effort; the job terminates
// regardless, and a still-broken worker surfaces on the next scan.
func (s *Scanner) finishCancel(ctx context.Context, v registry.Vitals, job *models.BuildJob) error {
	var rpcErr error
	if v.Virtualized {
		rpcErr = s.client.Resume(ctx)
	} else {
		rpcErr = s.client.Clean(ctx)
	}
	if rpcErr != nil {
		log.Printf("scanner %s: reset after cancel: %v", s.name, rpcErr)
	}

	if err := store.MarkCancelled(s.db, job.ID, s.clock.Now()); err != nil {
		return fmt.Errorf("scanner %s: %w", s.name, err)
	}
	if rpcErr == nil {
		if err := store.SetCleanStatus(s.db, s.name, models.CleanStatusClean); err != nil {
			return fmt.Errorf("scanner %s: %w", s.name, err)
		}
	}
	if err := store.RecordEvent(s.db, s.name, models.EventCancelled, job.ID, "build cancelled"); err != nil {
		log.Printf("scanner %s: record cancel event: %v", s.name, err)
	}

	s.cancelJobID = ""
	s.invalidateCookie()
	fmt.Fprintf(s.out, "Builder %s cancelled job %s\n", s.name, job.ID)
	return nil
}
