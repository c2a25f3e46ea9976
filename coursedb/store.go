// Package coursedb persists participants, tasks, submissions and evaluation
// results. PgStore is the production store; InMemStore backs unit tests and
// single-process demos.
package coursedb

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
)

var (
	ErrNotFound = errors.New("row not found")
	// ErrConflict is a unique constraint violation.
	ErrConflict = errors.New("row already exists")
	// ErrMissingRef is a foreign key violation.
	ErrMissingRef = errors.New("referenced row does not exist")
	// ErrAlreadyEvaluated is returned by SaveResult when another run already
	// evaluated the submission and no re-evaluation was asked for.
	ErrAlreadyEvaluated = errors.New("submission already evaluated")
)

// TaskMatch identifies the task a notification claims to answer.
type TaskMatch struct {
	Email  string
	TaskID string
	Round  int
	Nonce  string
}

type SubmFilter struct {
	// Round 0 matches every round.
	Round    int
	Statuses []course.SubmStatus
}

func (f SubmFilter) matches(s course.Submission) bool {
	if f.Round != 0 && s.Round != f.Round {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

type Store interface {
	UpsertParticipant(ctx context.Context, p course.Participant) error
	GetParticipant(ctx context.Context, email string) (course.Participant, error)
	ListParticipants(ctx context.Context) ([]course.Participant, error)

	InsertTask(ctx context.Context, t course.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (course.Task, error)
	// LatestTask returns the newest task for the participant and round.
	LatestTask(ctx context.Context, email string, round int) (course.Task, error)
	MatchTask(ctx context.Context, m TaskMatch) (course.Task, error)
	// RecordDispatch stores the outcome of a dispatch attempt and the endpoint
	// it was sent to.
	RecordDispatch(ctx context.Context, id uuid.UUID, endpoint string, statusCode int, dispatchErr *string) error

	// UpsertSubmission stores the submission for its task. An existing row for
	// the same task is updated and reset to pending; created reports which
	// happened.
	UpsertSubmission(ctx context.Context, s course.Submission) (stored course.Submission, created bool, err error)
	GetSubmission(ctx context.Context, id uuid.UUID) (course.Submission, error)
	ListSubmissions(ctx context.Context, f SubmFilter) ([]course.Submission, error)
	SetSubmStatus(ctx context.Context, id uuid.UUID, status course.SubmStatus) error

	// SaveResult assigns the next attempt number, stores the result with its
	// checks and marks the submission evaluated in one transaction. Unless
	// reeval is set, an already evaluated submission yields ErrAlreadyEvaluated
	// and nothing is written.
	SaveResult(ctx context.Context, r *course.EvaluationResult, reeval bool) error
	ListResults(ctx context.Context, submID uuid.UUID) ([]course.EvaluationResult, error)
}
