package buildpipe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/programme-lv/pagesforge/appgen"
	"github.com/programme-lv/pagesforge/buildpipe"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/ghdeploy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calls struct{ order []string }

type stubGen struct {
	c   *calls
	err error
}

func (g *stubGen) Generate(ctx context.Context, req appgen.Request) (appgen.Artifact, error) {
	g.c.order = append(g.c.order, "generate")
	if g.err != nil {
		return appgen.Artifact{}, g.err
	}
	return appgen.Artifact{Files: map[string][]byte{"index.html": []byte("<h1>" + req.Brief + "</h1>")}}, nil
}

type stubDep struct {
	c    *calls
	err  error
	last ghdeploy.DeployRequest
}

func (d *stubDep) Deploy(ctx context.Context, req ghdeploy.DeployRequest) (ghdeploy.Deployment, error) {
	d.c.order = append(d.c.order, "deploy")
	d.last = req
	if d.err != nil {
		return ghdeploy.Deployment{}, d.err
	}
	return ghdeploy.Deployment{
		RepoURL:   "https://github.com/example/todo",
		CommitSHA: "c0ffee",
		PagesURL:  "https://example.github.io/todo",
	}, nil
}

type stubNotif struct {
	c     *calls
	fails int
	got   []course.Notification
}

func (n *stubNotif) Notify(ctx context.Context, url string, note course.Notification) error {
	n.c.order = append(n.c.order, "notify")
	if n.fails > 0 {
		n.fails--
		return errors.New("evaluation api down")
	}
	n.got = append(n.got, note)
	return nil
}

var payload = course.Payload{
	Email:         "s@example.com",
	Task:          "Todo App-abcde",
	Round:         1,
	Nonce:         "nonce-1",
	Brief:         "build a to-do list app",
	Checks:        []string{"#todo-list exists"},
	EvaluationURL: "http://eval/api/submit",
}

func newPipeline() (*buildpipe.Pipeline, *calls, *stubGen, *stubDep, *stubNotif) {
	c := &calls{}
	g, d, n := &stubGen{c: c}, &stubDep{c: c}, &stubNotif{c: c}
	return buildpipe.NewPipeline(g, d, n, buildpipe.NewInMemJournal()), c, g, d, n
}

func TestRunAllStages(t *testing.T) {
	p, c, _, d, n := newPipeline()
	pr, err := p.Run(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"generate", "deploy", "notify"}, c.order)
	assert.Equal(t, buildpipe.StateCompleted, pr.State)
	require.Len(t, pr.Stages, 3)
	for _, s := range pr.Stages {
		assert.Equal(t, buildpipe.StageOk, s.Status)
	}
	assert.Equal(t, "todo-app-abcde", d.last.RepoName)
	require.Len(t, n.got, 1)
	assert.Equal(t, "https://example.github.io/todo", n.got[0].PagesURL)
	assert.Equal(t, "nonce-1", n.got[0].Nonce)

	// completed builds are not repeated
	again, err := p.Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, buildpipe.StateCompleted, again.State)
	assert.Len(t, c.order, 3)
}

func TestRunGenerateFailure(t *testing.T) {
	p, c, g, _, n := newPipeline()
	g.err = errors.New("llm unavailable")

	pr, err := p.Run(context.Background(), payload)
	var se *buildpipe.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, buildpipe.StageGenerate, se.Stage)
	assert.Equal(t, buildpipe.StateFailed, pr.State)
	assert.Nil(t, pr.Deployment)
	assert.Equal(t, []string{"generate"}, c.order)
	assert.Empty(t, n.got)

	_, err = p.Resume(context.Background(), "nonce-1")
	assert.ErrorIs(t, err, buildpipe.ErrNotResumable)

	// a re-post restarts from generate
	g.err = nil
	pr, err = p.Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, buildpipe.StateCompleted, pr.State)
	assert.Equal(t, []string{"generate", "generate", "deploy", "notify"}, c.order)
}

func TestResumeAfterNotifyFailure(t *testing.T) {
	p, c, _, _, n := newPipeline()
	n.fails = 1

	pr, err := p.Run(context.Background(), payload)
	require.Error(t, err)
	assert.Equal(t, buildpipe.StateDeployed, pr.State)
	assert.Equal(t, buildpipe.StageNotify, pr.FailedStage)
	require.NotNil(t, pr.Deployment)

	stored, err := p.Progress(context.Background(), "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, buildpipe.StateDeployed, stored.State)

	pr, err = p.Resume(context.Background(), "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, buildpipe.StateCompleted, pr.State)
	assert.Equal(t, []string{"generate", "deploy", "notify", "notify"}, c.order)
	require.Len(t, n.got, 1)
	assert.Equal(t, "c0ffee", n.got[0].CommitSHA)
}

func TestRepostResumesAtNotify(t *testing.T) {
	p, c, _, _, n := newPipeline()
	n.fails = 1
	_, err := p.Run(context.Background(), payload)
	require.Error(t, err)

	_, err = p.Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"generate", "deploy", "notify", "notify"}, c.order)
}

func TestUnknownNonce(t *testing.T) {
	p, _, _, _, _ := newPipeline()
	_, err := p.Progress(context.Background(), "missing")
	assert.ErrorIs(t, err, buildpipe.ErrUnknownNonce)
	_, err = p.Resume(context.Background(), "missing")
	assert.ErrorIs(t, err, buildpipe.ErrUnknownNonce)
}

func TestInMemJournalVersioning(t *testing.T) {
	j := buildpipe.NewInMemJournal()
	ctx := context.Background()

	pr := &buildpipe.Progress{Nonce: "n", State: buildpipe.StateRunning}
	require.NoError(t, j.Save(ctx, pr))
	stale, err := j.Get(ctx, "n")
	require.NoError(t, err)

	pr.State = buildpipe.StateDeployed
	require.NoError(t, j.Save(ctx, pr))

	stale.State = buildpipe.StateFailed
	assert.ErrorIs(t, j.Save(ctx, stale), buildpipe.ErrVersionConflict)

	missing, err := j.Get(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
