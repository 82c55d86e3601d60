// Package behaviour supplies the build-type specific logic the scanner
// needs around a dispatch: the expected RPC cookie, the worker inputs, the
// retry policy and the completion handling. The set of build types is
// closed; unknown kinds are rejected at resolution time.
package behaviour

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/worker"
)

// Behaviour is the per-build-type strategy consulted by the scanner.
type Behaviour interface {
	// Cookie returns the opaque token identifying this job on the wire.
	// Deterministic for a given job; used to detect lost jobs.
	Cookie(job *models.BuildJob) string
	// DispatchInputs returns the files the worker must fetch and the
	// build arguments. May suspend (e.g. to resolve a ref remotely).
	DispatchInputs(ctx context.Context, job *models.BuildJob) ([]worker.Input, worker.DispatchSpec, error)
	// RetryAllowed reports whether a failed attempt of this job may be
	// requeued.
	RetryAllowed(job *models.BuildJob) bool
	// Completed records the job's terminal build state.
	Completed(db *gorm.DB, job *models.BuildJob, success bool, now time.Time) error
}

// cookie derives the wire cookie from the job's identity. Any change to the
// job's identity yields a different cookie, which the scanner reads as a
// lost job.
func cookie(job *models.BuildJob) string {
	sum := sha256.Sum256([]byte(job.Kind + "/" + job.ID + "/" + job.Source + "@" + job.Ref))
	return hex.EncodeToString(sum[:8])
}

// Resolver maps a job to its behaviour.
type Resolver struct {
	github *githubResolver
}

// NewResolver creates a resolver. token is the optional GitHub API token
// used by the ci behaviour; empty means unauthenticated ref handling.
func NewResolver(token string) *Resolver {
	return &Resolver{github: newGitHubResolver(token)}
}

// For returns the behaviour for the job's kind.
func (r *Resolver) For(job *models.BuildJob) (Behaviour, error) {
	switch job.Kind {
	case models.KindPackage:
		return packageBehaviour{}, nil
	case models.KindRecipe:
		return recipeBehaviour{}, nil
	case models.KindCI:
		return ciBehaviour{github: r.github}, nil
	default:
		return nil, fmt.Errorf("behaviour: unknown build kind %q for job %s", job.Kind, job.ID)
	}
}
