// Package ghdeploy publishes generated apps as GitHub Pages sites and reads
// files back from deployed repositories.
package ghdeploy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/programme-lv/pagesforge/conf"
)

var ErrFileNotFound = errors.New("file not found in repository")

// NewClient builds an authenticated REST client. A non-empty APIURL points the
// client at GitHub Enterprise or a test server.
func NewClient(c conf.GitHub) (*github.Client, error) {
	client := github.NewClient(&http.Client{Timeout: 60 * time.Second}).WithAuthToken(c.Token)
	if c.APIURL != "" {
		base, err := url.Parse(strings.TrimRight(c.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

func statusOf(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

// RepoName derives the repository name from a task id.
func RepoName(taskID string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(taskID), " ", "-"))
}

func PagesURL(login, repo string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(login), repo)
}

// ParseRepoURL splits https://github.com/<owner>/<repo> into its parts.
func ParseRepoURL(repoURL string) (owner string, repo string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("parse repo url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo url %q has no owner/name", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
