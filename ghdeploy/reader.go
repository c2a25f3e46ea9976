package ghdeploy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v66/github"
)

// RepoReader fetches single files of deployed repositories.
type RepoReader struct {
	gh *github.Client
}

func NewRepoReader(gh *github.Client) *RepoReader {
	return &RepoReader{gh: gh}
}

// ReadFile returns path at ref. A missing file yields ErrFileNotFound.
func (r *RepoReader) ReadFile(ctx context.Context, repoURL, ref, path string) ([]byte, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	file, _, _, err := r.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return []byte(content), nil
}
