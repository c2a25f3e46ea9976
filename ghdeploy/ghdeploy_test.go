package ghdeploy_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/ghdeploy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub keeps repositories and files in memory and serves the subset of
// the REST API the deployer uses.
type fakeGitHub struct {
	mu       sync.Mutex
	login    string
	repos    map[string]map[string][]byte
	commits  int
	deleted  []string
	pagesOn  map[string]bool
	pagesHit int
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *httptest.Server) {
	f := &fakeGitHub{login: "Student", repos: map[string]map[string][]byte{}, pagesOn: map[string]bool{}}
	r := chi.NewRouter()
	r.Get("/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"login": f.login})
	})
	r.Get("/repos/{owner}/{repo}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := chi.URLParam(r, "repo")
		if _, ok := f.repos[name]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, f.repoJSON(name))
	})
	r.Delete("/repos/{owner}/{repo}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := chi.URLParam(r, "repo")
		delete(f.repos, name)
		f.deleted = append(f.deleted, name)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.repos[body.Name] = map[string][]byte{}
		writeJSON(w, http.StatusCreated, f.repoJSON(body.Name))
	})
	r.Get("/repos/{owner}/{repo}/contents/*", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		path := chi.URLParam(r, "*")
		content, ok := f.repos[chi.URLParam(r, "repo")][path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"name":     path,
			"path":     path,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(content),
			"sha":      "blob-" + path,
		})
	})
	r.Put("/repos/{owner}/{repo}/contents/*", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content []byte  `json:"content"`
			SHA     *string `json:"sha"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		files, ok := f.repos[chi.URLParam(r, "repo")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
			return
		}
		path := chi.URLParam(r, "*")
		if _, exists := files[path]; exists && body.SHA == nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "sha wasn't supplied"})
			return
		}
		files[path] = body.Content
		f.commits++
		writeJSON(w, http.StatusCreated, map[string]any{
			"commit": map[string]any{"sha": fmt.Sprintf("commit-%d", f.commits)},
		})
	})
	r.Post("/repos/{owner}/{repo}/pages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pagesHit++
		name := chi.URLParam(r, "repo")
		if f.pagesOn[name] {
			writeJSON(w, http.StatusConflict, map[string]any{"message": "GitHub Pages is already enabled."})
			return
		}
		f.pagesOn[name] = true
		writeJSON(w, http.StatusCreated, map[string]any{"url": "https://api/pages"})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGitHub) repoJSON(name string) map[string]any {
	return map[string]any{
		"name":           name,
		"html_url":       "https://github.com/" + f.login + "/" + name,
		"default_branch": "main",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newDeployer(t *testing.T, srv *httptest.Server) (*ghdeploy.Deployer, *ghdeploy.RepoReader) {
	gh, err := ghdeploy.NewClient(conf.GitHub{Token: "tkn", APIURL: srv.URL})
	require.NoError(t, err)
	return ghdeploy.NewDeployer(gh).WithSettle(0), ghdeploy.NewRepoReader(gh)
}

func TestDeployRoundOne(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	d, reader := newDeployer(t, srv)
	ctx := context.Background()

	dep, err := d.Deploy(ctx, ghdeploy.DeployRequest{
		RepoName: "todo-abcde",
		Files: map[string][]byte{
			"index.html": []byte("<html></html>"),
			"README.md":  []byte("# todo"),
			"LICENSE":    []byte("MIT License"),
		},
		Round: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/Student/todo-abcde", dep.RepoURL)
	assert.Equal(t, "https://student.github.io/todo-abcde/", dep.PagesURL)
	assert.Equal(t, "commit-3", dep.CommitSHA)
	assert.Empty(t, fake.deleted)

	content, err := reader.ReadFile(ctx, dep.RepoURL, dep.CommitSHA, "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# todo", string(content))

	_, err = reader.ReadFile(ctx, dep.RepoURL, dep.CommitSHA, "missing.txt")
	assert.ErrorIs(t, err, ghdeploy.ErrFileNotFound)

	// a second round 1 deploy replaces the repository
	dep, err = d.Deploy(ctx, ghdeploy.DeployRequest{
		RepoName: "todo-abcde",
		Files:    map[string][]byte{"index.html": []byte("<p>v2</p>")},
		Round:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"todo-abcde"}, fake.deleted)
	_, err = reader.ReadFile(ctx, dep.RepoURL, "", "README.md")
	assert.ErrorIs(t, err, ghdeploy.ErrFileNotFound)
}

func TestDeployRoundTwoUpdates(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	d, reader := newDeployer(t, srv)
	ctx := context.Background()

	_, err := d.Deploy(ctx, ghdeploy.DeployRequest{
		RepoName: "md-12345",
		Files:    map[string][]byte{"index.html": []byte("v1")},
		Round:    1,
	})
	require.NoError(t, err)

	dep, err := d.Deploy(ctx, ghdeploy.DeployRequest{
		RepoName: "md-12345",
		Files: map[string][]byte{
			"index.html": []byte("v2"),
			"extra.js":   []byte("console.log(1)"),
		},
		Round: 2,
	})
	require.NoError(t, err)
	assert.Empty(t, fake.deleted)
	assert.Equal(t, 2, fake.pagesHit)

	content, err := reader.ReadFile(ctx, dep.RepoURL, "", "index.html")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
	content, err = reader.ReadFile(ctx, dep.RepoURL, "", "extra.js")
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(content))
}

func TestDeployRoundTwoNeedsRepo(t *testing.T) {
	_, srv := newFakeGitHub(t)
	d, _ := newDeployer(t, srv)
	_, err := d.Deploy(context.Background(), ghdeploy.DeployRequest{RepoName: "nope", Round: 2})
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "sum-of-sales-1a2b3", ghdeploy.RepoName("Sum-of-Sales-1a2b3"))
	assert.Equal(t, "my-task-x", ghdeploy.RepoName("My Task x"))

	owner, repo, err := ghdeploy.ParseRepoURL("https://github.com/alice/site.git")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	assert.Equal(t, "site", repo)

	_, _, err = ghdeploy.ParseRepoURL("https://github.com/alice")
	assert.Error(t, err)
}
