package coursedb

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/pagesforge/course"
)

type PgStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PgStore)(nil)

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) UpsertParticipant(ctx context.Context, p course.Participant) error {
	query := `
		INSERT INTO participants (email, endpoint, secret, registered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET endpoint = EXCLUDED.endpoint, secret = EXCLUDED.secret
	`
	registered := p.RegisteredAt
	if registered.IsZero() {
		registered = time.Now()
	}
	_, err := s.pool.Exec(ctx, query, p.Email, p.Endpoint, p.Secret, registered)
	if err != nil {
		return handleError("upsert participant", err)
	}
	return nil
}

func (s *PgStore) GetParticipant(ctx context.Context, email string) (course.Participant, error) {
	var p course.Participant
	err := pgxscan.Get(ctx, s.pool, &p, `
		SELECT email, endpoint, secret, registered_at FROM participants WHERE email = $1
	`, email)
	if err != nil {
		return course.Participant{}, handleError("get participant", err)
	}
	return p, nil
}

func (s *PgStore) ListParticipants(ctx context.Context) ([]course.Participant, error) {
	var ps []course.Participant
	err := pgxscan.Select(ctx, s.pool, &ps, `
		SELECT email, endpoint, secret, registered_at FROM participants ORDER BY email
	`)
	if err != nil {
		return nil, handleError("list participants", err)
	}
	return ps, nil
}

const taskColumns = `uuid, task_id, template_id, round, email, nonce, brief, checks, attachments,
	evaluation_url, endpoint, status_code, dispatch_error, created_at`

func (s *PgStore) InsertTask(ctx context.Context, t course.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	checks := t.Checks
	if checks == nil {
		checks = []string{}
	}
	attachments := t.Attachments
	if attachments == nil {
		attachments = []course.Attachment{}
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, query,
		t.UUID,
		t.TaskID,
		t.TemplateID,
		t.Round,
		t.Email,
		t.Nonce,
		t.Brief,
		checks,
		attachments,
		t.EvaluationURL,
		t.Endpoint,
		t.StatusCode,
		t.DispatchError,
		created,
	)
	if err != nil {
		return handleError("insert task", err)
	}
	return nil
}

func (s *PgStore) GetTask(ctx context.Context, id uuid.UUID) (course.Task, error) {
	var t course.Task
	err := pgxscan.Get(ctx, s.pool, &t, `SELECT `+taskColumns+` FROM tasks WHERE uuid = $1`, id)
	if err != nil {
		return course.Task{}, handleError("get task", err)
	}
	return t, nil
}

func (s *PgStore) LatestTask(ctx context.Context, email string, round int) (course.Task, error) {
	var t course.Task
	err := pgxscan.Get(ctx, s.pool, &t, `
		SELECT `+taskColumns+` FROM tasks
		WHERE email = $1 AND round = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, email, round)
	if err != nil {
		return course.Task{}, handleError("latest task", err)
	}
	return t, nil
}

func (s *PgStore) MatchTask(ctx context.Context, m TaskMatch) (course.Task, error) {
	var t course.Task
	err := pgxscan.Get(ctx, s.pool, &t, `
		SELECT `+taskColumns+` FROM tasks
		WHERE email = $1 AND task_id = $2 AND round = $3 AND nonce = $4
	`, m.Email, m.TaskID, m.Round, m.Nonce)
	if err != nil {
		return course.Task{}, handleError("match task", err)
	}
	return t, nil
}

func (s *PgStore) RecordDispatch(ctx context.Context, id uuid.UUID, endpoint string, statusCode int, dispatchErr *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET endpoint = $1, status_code = $2, dispatch_error = $3 WHERE uuid = $4
	`, endpoint, statusCode, dispatchErr, id)
	if err != nil {
		return handleError("record dispatch", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record dispatch: %w", ErrNotFound)
	}
	return nil
}

const submColumns = `uuid, task_uuid, email, task_id, round, nonce, repo_url, commit_sha, pages_url,
	status, created_at, updated_at`

func (s *PgStore) UpsertSubmission(ctx context.Context, sub course.Submission) (course.Submission, bool, error) {
	// xmax is zero only for freshly inserted rows
	query := `
		INSERT INTO submissions (` + submColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $10)
		ON CONFLICT (task_uuid) DO UPDATE
		SET repo_url = EXCLUDED.repo_url,
			commit_sha = EXCLUDED.commit_sha,
			pages_url = EXCLUDED.pages_url,
			status = 'pending',
			updated_at = EXCLUDED.updated_at
		RETURNING ` + submColumns + `, (xmax = 0) AS created
	`
	now := time.Now()
	if sub.UUID == uuid.Nil {
		sub.UUID = uuid.New()
	}
	var row struct {
		course.Submission
		Created bool `db:"created"`
	}
	err := pgxscan.Get(ctx, s.pool, &row, query,
		sub.UUID,
		sub.TaskUUID,
		sub.Email,
		sub.TaskID,
		sub.Round,
		sub.Nonce,
		sub.RepoURL,
		sub.CommitSHA,
		sub.PagesURL,
		now,
	)
	if err != nil {
		return course.Submission{}, false, handleError("upsert submission", err)
	}
	return row.Submission, row.Created, nil
}

func (s *PgStore) GetSubmission(ctx context.Context, id uuid.UUID) (course.Submission, error) {
	var sub course.Submission
	err := pgxscan.Get(ctx, s.pool, &sub, `SELECT `+submColumns+` FROM submissions WHERE uuid = $1`, id)
	if err != nil {
		return course.Submission{}, handleError("get submission", err)
	}
	return sub, nil
}

func (s *PgStore) ListSubmissions(ctx context.Context, f SubmFilter) ([]course.Submission, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	var subs []course.Submission
	err := pgxscan.Select(ctx, s.pool, &subs, `
		SELECT `+submColumns+` FROM submissions
		WHERE ($1 = 0 OR round = $1)
		AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at DESC
	`, f.Round, statuses)
	if err != nil {
		return nil, handleError("list submissions", err)
	}
	return subs, nil
}

func (s *PgStore) SetSubmStatus(ctx context.Context, id uuid.UUID, status course.SubmStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET status = $1, updated_at = NOW() WHERE uuid = $2
	`, string(status), id)
	if err != nil {
		return handleError("set submission status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set submission status: %w", ErrNotFound)
	}
	return nil
}

func (s *PgStore) SaveResult(ctx context.Context, r *course.EvaluationResult, reeval bool) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// row lock serializes attempt numbering per submission
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM submissions WHERE uuid = $1 FOR UPDATE`, r.SubmUUID).Scan(&status)
		if err != nil {
			return handleError("lock submission", err)
		}
		if course.SubmStatus(status) == course.SubmEvaluated && !reeval {
			return fmt.Errorf("save result: %w", ErrAlreadyEvaluated)
		}

		var attempt int
		err = tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(attempt), 0) + 1 FROM evaluation_results WHERE subm_uuid = $1
		`, r.SubmUUID).Scan(&attempt)
		if err != nil {
			return handleError("next attempt", err)
		}

		if r.UUID == uuid.Nil {
			r.UUID = uuid.New()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		r.Attempt = attempt

		_, err = tx.Exec(ctx, `
			INSERT INTO evaluation_results (
				uuid, subm_uuid, attempt, license_score, readme_score, static_score,
				rubric_score, functional_score, aggregate_score, notes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, r.UUID, r.SubmUUID, r.Attempt, r.License, r.Readme, r.Static,
			r.Rubric, r.Functional, r.Aggregate, r.Notes, r.CreatedAt)
		if err != nil {
			return handleError("insert evaluation result", err)
		}

		batch := &pgx.Batch{}
		for i, c := range r.Checks {
			batch.Queue(`
				INSERT INTO evaluation_checks (
					result_uuid, position, kind, name, score, passed, reason, logs, artifact_url
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, r.UUID, i, string(c.Kind), c.Name, c.Score, c.Passed, c.Reason, c.Logs, c.ArtifactURL)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return handleError("insert evaluation checks", err)
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE submissions SET status = 'evaluated', updated_at = NOW() WHERE uuid = $1
		`, r.SubmUUID)
		if err != nil {
			return handleError("mark submission evaluated", err)
		}
		return nil
	})
}

func (s *PgStore) ListResults(ctx context.Context, submID uuid.UUID) ([]course.EvaluationResult, error) {
	var results []course.EvaluationResult
	err := pgxscan.Select(ctx, s.pool, &results, `
		SELECT uuid, subm_uuid, attempt, license_score, readme_score, static_score,
			rubric_score, functional_score, aggregate_score, notes, created_at
		FROM evaluation_results
		WHERE subm_uuid = $1
		ORDER BY attempt
	`, submID)
	if err != nil {
		return nil, handleError("list evaluation results", err)
	}
	for i := range results {
		var checks []course.CheckResult
		err := pgxscan.Select(ctx, s.pool, &checks, `
			SELECT kind, name, score, passed, reason, logs, artifact_url
			FROM evaluation_checks
			WHERE result_uuid = $1
			ORDER BY position
		`, results[i].UUID)
		if err != nil {
			return nil, handleError("list evaluation checks", err)
		}
		results[i].Checks = checks
	}
	return results, nil
}
