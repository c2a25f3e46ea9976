package buildpipe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/programme-lv/pagesforge/ghdeploy"
)

type Stage string

const (
	StageGenerate Stage = "generate"
	StageDeploy   Stage = "deploy"
	StageNotify   Stage = "notify"
)

type StageStatus string

const (
	StageOk     StageStatus = "ok"
	StageFailed StageStatus = "failed"
)

type StageResult struct {
	Stage      Stage       `json:"stage" dynamo:"stage"`
	Status     StageStatus `json:"status" dynamo:"status"`
	Err        string      `json:"error,omitempty" dynamo:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at" dynamo:"started_at"`
	FinishedAt time.Time   `json:"finished_at" dynamo:"finished_at"`
}

// State is the partial-progress marker of a build.
type State string

const (
	StateRunning State = "running"
	// StateDeployed means the site is live but the evaluation API has not
	// acknowledged it yet. Only these builds can be resumed.
	StateDeployed  State = "deployed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Progress is journaled per nonce after every stage.
type Progress struct {
	Nonce         string               `json:"nonce" dynamo:"nonce,hash"`
	Email         string               `json:"email" dynamo:"email"`
	TaskID        string               `json:"task" dynamo:"task"`
	Round         int                  `json:"round" dynamo:"round"`
	EvaluationURL string               `json:"evaluation_url" dynamo:"evaluation_url"`
	State         State                `json:"state" dynamo:"state"`
	FailedStage   Stage                `json:"failed_stage,omitempty" dynamo:"failed_stage,omitempty"`
	Deployment    *ghdeploy.Deployment `json:"deployment,omitempty" dynamo:"deployment,omitempty"`
	Stages        []StageResult        `json:"stages" dynamo:"stages"`
	Version       int                  `json:"-" dynamo:"version"`
	UpdatedAt     time.Time            `json:"updated_at" dynamo:"updated_at"`
}

var ErrVersionConflict = errors.New("progress was updated concurrently")

type Journal interface {
	// Get returns nil when nothing was journaled for the nonce.
	Get(ctx context.Context, nonce string) (*Progress, error)
	// Save stores p and bumps its version. Saving a stale copy fails with
	// ErrVersionConflict.
	Save(ctx context.Context, p *Progress) error
}

type InMemJournal struct {
	mu   sync.Mutex
	rows map[string]Progress
}

func NewInMemJournal() *InMemJournal {
	return &InMemJournal{rows: make(map[string]Progress)}
}

func (j *InMemJournal) Get(ctx context.Context, nonce string) (*Progress, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p, ok := j.rows[nonce]
	if !ok {
		return nil, nil
	}
	p.Stages = append([]StageResult(nil), p.Stages...)
	return &p, nil
}

func (j *InMemJournal) Save(ctx context.Context, p *Progress) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if old, ok := j.rows[p.Nonce]; ok && old.Version != p.Version {
		return ErrVersionConflict
	}
	p.Version++
	stored := *p
	stored.Stages = append([]StageResult(nil), p.Stages...)
	j.rows[p.Nonce] = stored
	return nil
}
