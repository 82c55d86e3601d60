package behaviour

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/store"
	"github.com/zulandar/foundry/internal/worker"
)

// packageBehaviour builds a binary package from an uploaded source. The
// worker needs the build chroot and the source itself.
type packageBehaviour struct{}

func (packageBehaviour) Cookie(job *models.BuildJob) string {
	return cookie(job)
}

func (packageBehaviour) DispatchInputs(_ context.Context, job *models.BuildJob) ([]worker.Input, worker.DispatchSpec, error) {
	inputs := []worker.Input{
		{Name: "chroot-" + job.Arch + ".tar.gz", URL: job.Source + "/chroot-" + job.Arch + ".tar.gz"},
		{Name: job.ID + ".dsc", URL: job.Source + "/" + job.ID + ".dsc"},
	}
	spec := worker.DispatchSpec{
		Kind:  models.KindPackage,
		JobID: job.ID,
		Args:  map[string]string{"arch": job.Arch},
	}
	return inputs, spec, nil
}

func (packageBehaviour) RetryAllowed(*models.BuildJob) bool {
	return true
}

func (packageBehaviour) Completed(db *gorm.DB, job *models.BuildJob, success bool, now time.Time) error {
	return store.MarkBuilt(db, job.ID, success, now)
}

// recipeBehaviour assembles a source from a recipe before building, so the
// recipe text travels as a dispatch argument rather than an input file.
type recipeBehaviour struct{}

func (recipeBehaviour) Cookie(job *models.BuildJob) string {
	return cookie(job)
}

func (recipeBehaviour) DispatchInputs(_ context.Context, job *models.BuildJob) ([]worker.Input, worker.DispatchSpec, error) {
	inputs := []worker.Input{
		{Name: "chroot-" + job.Arch + ".tar.gz", URL: job.Source + "/chroot-" + job.Arch + ".tar.gz"},
	}
	spec := worker.DispatchSpec{
		Kind:  models.KindRecipe,
		JobID: job.ID,
		Args: map[string]string{
			"arch":   job.Arch,
			"recipe": job.Ref,
		},
	}
	return inputs, spec, nil
}

func (recipeBehaviour) RetryAllowed(*models.BuildJob) bool {
	return true
}

func (recipeBehaviour) Completed(db *gorm.DB, job *models.BuildJob, success bool, now time.Time) error {
	return store.MarkBuilt(db, job.ID, success, now)
}
