package ghdeploy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/programme-lv/pagesforge/logger"
)

type DeployRequest struct {
	RepoName    string
	Description string
	Files       map[string][]byte
	Round       int
}

type Deployment struct {
	RepoURL   string `json:"repo_url" dynamo:"repo_url"`
	CommitSHA string `json:"commit_sha" dynamo:"commit_sha"`
	PagesURL  string `json:"pages_url" dynamo:"pages_url"`
}

type Deployer struct {
	gh *github.Client
	// settle is the pause after deleting or creating a repository; the API
	// answers before the change is visible to follow-up calls.
	settle time.Duration
}

func NewDeployer(gh *github.Client) *Deployer {
	return &Deployer{gh: gh, settle: 2 * time.Second}
}

// WithSettle overrides the pause after repository create and delete.
func (d *Deployer) WithSettle(settle time.Duration) *Deployer {
	d.settle = settle
	return d
}

// Deploy publishes the files. Round 1 recreates the repository from scratch;
// later rounds update the files of the existing one.
func (d *Deployer) Deploy(ctx context.Context, req DeployRequest) (Deployment, error) {
	log := logger.FromContext(ctx).With(slog.String("repo", req.RepoName), slog.Int("round", req.Round))

	user, _, err := d.gh.Users.Get(ctx, "")
	if err != nil {
		return Deployment{}, fmt.Errorf("get authenticated user: %w", err)
	}
	owner := user.GetLogin()

	var repo *github.Repository
	var sha string
	if req.Round <= 1 {
		repo, err = d.recreate(ctx, owner, req)
		if err != nil {
			return Deployment{}, err
		}
		log.Info("repository created", slog.String("url", repo.GetHTMLURL()))
		sha, err = d.push(ctx, owner, req.RepoName, "", req.Files, false)
	} else {
		repo, _, err = d.gh.Repositories.Get(ctx, owner, req.RepoName)
		if err != nil {
			return Deployment{}, fmt.Errorf("get repository %s: %w", req.RepoName, err)
		}
		sha, err = d.push(ctx, owner, req.RepoName, repo.GetDefaultBranch(), req.Files, true)
	}
	if err != nil {
		return Deployment{}, err
	}
	log.Info("files pushed", slog.String("commit", sha), slog.Int("files", len(req.Files)))

	if err := d.enablePages(ctx, owner, req.RepoName, branchOr(repo.GetDefaultBranch())); err != nil {
		return Deployment{}, err
	}

	dep := Deployment{
		RepoURL:   repo.GetHTMLURL(),
		CommitSHA: sha,
		PagesURL:  PagesURL(owner, req.RepoName),
	}
	log.Info("pages enabled", slog.String("pages_url", dep.PagesURL))
	return dep, nil
}

func branchOr(b string) string {
	if b == "" {
		return "main"
	}
	return b
}

func (d *Deployer) recreate(ctx context.Context, owner string, req DeployRequest) (*github.Repository, error) {
	_, _, err := d.gh.Repositories.Get(ctx, owner, req.RepoName)
	switch {
	case err == nil:
		logger.FromContext(ctx).Info("repository exists, deleting", slog.String("repo", req.RepoName))
		if _, err := d.gh.Repositories.Delete(ctx, owner, req.RepoName); err != nil {
			return nil, fmt.Errorf("delete repository %s: %w", req.RepoName, err)
		}
		d.pause(ctx)
	case statusOf(err) == http.StatusNotFound:
	default:
		return nil, fmt.Errorf("look up repository %s: %w", req.RepoName, err)
	}

	repo, _, err := d.gh.Repositories.Create(ctx, "", &github.Repository{
		Name:         github.String(req.RepoName),
		Description:  github.String(req.Description),
		Private:      github.Bool(false),
		AutoInit:     github.Bool(false),
		HasIssues:    github.Bool(true),
		HasWiki:      github.Bool(false),
		HasDownloads: github.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create repository %s: %w", req.RepoName, err)
	}
	d.pause(ctx)
	return repo, nil
}

// push writes the files one commit each, in name order, and returns the sha
// of the last commit. With update set, existing files are overwritten.
func (d *Deployer) push(ctx context.Context, owner, repo, branch string, files map[string][]byte, update bool) (string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var sha string
	for _, name := range names {
		opts := &github.RepositoryContentFileOptions{
			Message: github.String("Add " + name),
			Content: files[name],
		}
		if branch != "" {
			opts.Branch = github.String(branch)
		}
		if update {
			existing, _, _, err := d.gh.Repositories.GetContents(ctx, owner, repo, name, &github.RepositoryContentGetOptions{Ref: branch})
			switch {
			case err == nil && existing != nil:
				opts.Message = github.String("Update " + name)
				opts.SHA = existing.SHA
			case err != nil && statusOf(err) != http.StatusNotFound:
				return "", fmt.Errorf("get %s: %w", name, err)
			}
		}

		var res *github.RepositoryContentResponse
		var err error
		if opts.SHA != nil {
			res, _, err = d.gh.Repositories.UpdateFile(ctx, owner, repo, name, opts)
		} else {
			res, _, err = d.gh.Repositories.CreateFile(ctx, owner, repo, name, opts)
		}
		if err != nil {
			return "", fmt.Errorf("push %s: %w", name, err)
		}
		sha = res.Commit.GetSHA()
	}
	return sha, nil
}

func (d *Deployer) enablePages(ctx context.Context, owner, repo, branch string) error {
	_, _, err := d.gh.Repositories.EnablePages(ctx, owner, repo, &github.Pages{
		Source: &github.PagesSource{
			Branch: github.String(branch),
			Path:   github.String("/"),
		},
	})
	if err != nil && statusOf(err) != http.StatusConflict {
		return fmt.Errorf("enable pages for %s: %w", repo, err)
	}
	return nil
}

func (d *Deployer) pause(ctx context.Context) {
	if d.settle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.settle):
	}
}
