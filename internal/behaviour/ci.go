package behaviour

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/store"
	"github.com/zulandar/foundry/internal/worker"
)

// refResolver resolves a symbolic ref in a repository to a commit hash.
// Satisfied by the GitHub repositories service; faked in tests.
type refResolver interface {
	GetCommitSHA1(ctx context.Context, owner, repo, ref, lastSHA string) (string, *github.Response, error)
}

// githubResolver wraps the GitHub API for ci ref resolution.
type githubResolver struct {
	repos refResolver
}

func newGitHubResolver(token string) *githubResolver {
	if token == "" {
		return &githubResolver{}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(context.Background(), ts))
	return &githubResolver{repos: client.Repositories}
}

// resolve pins ref to a commit hash so the dispatched build is immune to
// the branch moving mid-build. Without an API client the ref is used
// verbatim.
func (g *githubResolver) resolve(ctx context.Context, source, ref string) (string, error) {
	if g == nil || g.repos == nil {
		return ref, nil
	}
	owner, repo, ok := strings.Cut(source, "/")
	if !ok {
		return "", fmt.Errorf("behaviour: ci source %q is not owner/repo", source)
	}
	sha, _, err := g.repos.GetCommitSHA1(ctx, owner, repo, ref, "")
	if err != nil {
		return "", fmt.Errorf("behaviour: resolve %s@%s: %w", source, ref, err)
	}
	return sha, nil
}

// ciBehaviour runs a repository's CI jobs at a pinned commit. CI runs are
// never retried: a failed run is a meaningful result.
type ciBehaviour struct {
	github *githubResolver
}

func (ciBehaviour) Cookie(job *models.BuildJob) string {
	return cookie(job)
}

func (b ciBehaviour) DispatchInputs(ctx context.Context, job *models.BuildJob) ([]worker.Input, worker.DispatchSpec, error) {
	commit, err := b.github.resolve(ctx, job.Source, job.Ref)
	if err != nil {
		return nil, worker.DispatchSpec{}, err
	}
	inputs := []worker.Input{
		{Name: "chroot-" + job.Arch + ".tar.gz", URL: "https://files.foundry.internal/chroot-" + job.Arch + ".tar.gz"},
	}
	spec := worker.DispatchSpec{
		Kind:  models.KindCI,
		JobID: job.ID,
		Args: map[string]string{
			"arch":       job.Arch,
			"repository": job.Source,
			"commit":     commit,
		},
	}
	return inputs, spec, nil
}

func (ciBehaviour) RetryAllowed(*models.BuildJob) bool {
	return false
}

func (ciBehaviour) Completed(db *gorm.DB, job *models.BuildJob, success bool, now time.Time) error {
	return store.MarkBuilt(db, job.ID, success, now)
}
