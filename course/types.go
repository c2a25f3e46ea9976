// Package course holds the records shared by the dispatcher, the student
// endpoint, the evaluation API and the evaluator.
package course

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Participant is a registered student endpoint. Rows come from the sign-up
// export and are not changed by the system afterwards.
type Participant struct {
	Email        string    `json:"email" db:"email"`
	Endpoint     string    `json:"endpoint" db:"endpoint"`
	Secret       string    `json:"-" db:"secret"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

// Attachment is a file shipped inside the task payload as a data URI.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Task is one dispatched assignment. StatusCode and DispatchError record the
// last dispatch attempt; 0 means the endpoint could not be reached.
type Task struct {
	UUID          uuid.UUID    `db:"uuid"`
	TaskID        string       `db:"task_id"`
	TemplateID    string       `db:"template_id"`
	Round         int          `db:"round"`
	Email         string       `db:"email"`
	Nonce         string       `db:"nonce"`
	Brief         string       `db:"brief"`
	Checks        []string     `db:"checks"`
	Attachments   []Attachment `db:"attachments"`
	EvaluationURL string       `db:"evaluation_url"`
	Endpoint      string       `db:"endpoint"`
	StatusCode    int          `db:"status_code"`
	DispatchError *string      `db:"dispatch_error"`
	CreatedAt     time.Time    `db:"created_at"`
}

// Dispatched reports whether the participant endpoint accepted the task.
func (t Task) Dispatched() bool {
	return t.StatusCode >= 200 && t.StatusCode < 300
}

// Payload is the body posted to a student endpoint.
func (t Task) Payload() Payload {
	return Payload{
		Email:         t.Email,
		Task:          t.TaskID,
		Round:         t.Round,
		Nonce:         t.Nonce,
		Brief:         t.Brief,
		Checks:        t.Checks,
		EvaluationURL: t.EvaluationURL,
		Attachments:   t.Attachments,
	}
}

type Payload struct {
	Email         string       `json:"email"`
	Task          string       `json:"task"`
	Round         int          `json:"round"`
	Nonce         string       `json:"nonce"`
	Brief         string       `json:"brief"`
	Checks        []string     `json:"checks"`
	EvaluationURL string       `json:"evaluation_url"`
	Attachments   []Attachment `json:"attachments"`
}

// PayloadFields are the keys a student endpoint requires in a task payload.
var PayloadFields = []string{"email", "task", "round", "nonce", "brief", "checks", "evaluation_url"}

// Notification is the body a student endpoint posts to the evaluation API.
type Notification struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// NotificationFields are the keys the evaluation API requires.
var NotificationFields = []string{"email", "task", "round", "nonce", "repo_url", "commit_sha", "pages_url"}

type SubmStatus string

const (
	SubmPending   SubmStatus = "pending"
	SubmNotified  SubmStatus = "notified"
	SubmEvaluated SubmStatus = "evaluated"
	SubmFailed    SubmStatus = "failed"
)

// Submission is a deployed solution for a task. One row per task; a repeated
// notification for the same nonce updates the row and resets it to pending.
type Submission struct {
	UUID      uuid.UUID  `json:"uuid" db:"uuid"`
	TaskUUID  uuid.UUID  `json:"task_uuid" db:"task_uuid"`
	Email     string     `json:"email" db:"email"`
	TaskID    string     `json:"task" db:"task_id"`
	Round     int        `json:"round" db:"round"`
	Nonce     string     `json:"nonce" db:"nonce"`
	RepoURL   string     `json:"repo_url" db:"repo_url"`
	CommitSHA string     `json:"commit_sha" db:"commit_sha"`
	PagesURL  string     `json:"pages_url" db:"pages_url"`
	Status    SubmStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type CheckKind string

const (
	CheckLicense    CheckKind = "license"
	CheckReadme     CheckKind = "readme"
	CheckStatic     CheckKind = "static"
	CheckRubric     CheckKind = "rubric"
	CheckFunctional CheckKind = "functional"
)

// CheckKinds is the fixed evaluation order.
var CheckKinds = []CheckKind{CheckLicense, CheckReadme, CheckStatic, CheckRubric, CheckFunctional}

type CheckResult struct {
	Kind        CheckKind `json:"kind" db:"kind"`
	Name        string    `json:"name" db:"name"`
	Score       float64   `json:"score" db:"score"`
	Passed      bool      `json:"passed" db:"passed"`
	Reason      string    `json:"reason" db:"reason"`
	Logs        string    `json:"logs" db:"logs"`
	ArtifactURL *string   `json:"artifact_url,omitempty" db:"artifact_url"`
}

// EvaluationResult is written once per evaluator run and never updated.
// Re-evaluating a submission adds a result with the next Attempt.
type EvaluationResult struct {
	UUID       uuid.UUID     `json:"uuid" db:"uuid"`
	SubmUUID   uuid.UUID     `json:"subm_uuid" db:"subm_uuid"`
	Attempt    int           `json:"attempt" db:"attempt"`
	License    float64       `json:"license" db:"license_score"`
	Readme     float64       `json:"readme" db:"readme_score"`
	Static     float64       `json:"static" db:"static_score"`
	Rubric     float64       `json:"rubric" db:"rubric_score"`
	Functional float64       `json:"functional" db:"functional_score"`
	Aggregate  float64       `json:"aggregate" db:"aggregate_score"`
	Notes      string        `json:"notes" db:"notes"`
	Checks     []CheckResult `json:"checks" db:"-"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// Summarize fills the category scores, the aggregate and the notes from Checks.
// A category score is the mean of its checks; a category without checks scores 0.
func (r *EvaluationResult) Summarize() {
	sums := map[CheckKind]float64{}
	counts := map[CheckKind]int{}
	var notes []string
	for _, c := range r.Checks {
		sums[c.Kind] += c.Score
		counts[c.Kind]++
		if !c.Passed {
			notes = append(notes, fmt.Sprintf("%s: %s (%s)", c.Kind, c.Name, c.Reason))
		}
	}
	avg := func(k CheckKind) float64 {
		if counts[k] == 0 {
			return 0
		}
		return sums[k] / float64(counts[k])
	}
	r.License = avg(CheckLicense)
	r.Readme = avg(CheckReadme)
	r.Static = avg(CheckStatic)
	r.Rubric = avg(CheckRubric)
	r.Functional = avg(CheckFunctional)
	r.Aggregate = (r.License + r.Readme + r.Static + r.Rubric + r.Functional) / float64(len(CheckKinds))
	r.Notes = strings.Join(notes, "\n")
}
