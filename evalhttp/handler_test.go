package evalhttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/evalhttp"
	"github.com/programme-lv/pagesforge/evaluator"
	"github.com/programme-lv/pagesforge/reqsign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	email  = "student@example.com"
	secret = "participant-secret"
)

func seedTask(t *testing.T, store coursedb.Store) course.Task {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertParticipant(ctx, course.Participant{
		Email:    email,
		Endpoint: "https://student.example/api/build",
		Secret:   secret,
	}))
	task := course.Task{
		UUID:          uuid.Must(uuid.NewV7()),
		TaskID:        "todo-abcde",
		TemplateID:    "todo",
		Round:         1,
		Email:         email,
		Nonce:         uuid.Must(uuid.NewV7()).String(),
		Brief:         "build a to-do list app",
		Checks:        []string{"Repo has MIT license"},
		EvaluationURL: "http://eval/api/submit",
		Endpoint:      "https://student.example/api/build",
		StatusCode:    http.StatusAccepted,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.InsertTask(ctx, task))
	return task
}

func notification(task course.Task) map[string]any {
	return map[string]any{
		"email":      task.Email,
		"task":       task.TaskID,
		"round":      task.Round,
		"nonce":      task.Nonce,
		"repo_url":   "https://github.com/student/todo-abcde",
		"commit_sha": "abc123",
		"pages_url":  "https://student.github.io/todo-abcde/",
	}
}

func submit(t *testing.T, h http.Handler, body any, signWith, subject string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	require.NoError(t, reqsign.SignRequest(req, signWith, subject, reqsign.AudienceEvaluation, "", raw))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(e.Data, data))
	}
	return e
}

type recordingTrigger struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (r *recordingTrigger) Trigger(ctx context.Context, submID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, submID)
	return nil
}

func newRouter(store coursedb.Store, trigger evalhttp.Trigger) http.Handler {
	r := chi.NewRouter()
	evalhttp.NewEvalHttpHandler(store, trigger).RegisterRoutes(r)
	return r
}

func TestSubmit(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	trigger := &recordingTrigger{}
	h := newRouter(store, trigger)

	w := submit(t, h, notification(task), secret, email)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp evalhttp.SubmitResponse
	decode(t, w, &resp)
	assert.Equal(t, "Submission received", resp.Message)

	id := uuid.MustParse(resp.SubmUUID)
	subm, err := store.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, course.SubmNotified, subm.Status)
	assert.Equal(t, "https://student.github.io/todo-abcde/", subm.PagesURL)
	assert.Equal(t, []uuid.UUID{id}, trigger.ids)

	w = submit(t, h, notification(task), secret, email)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, "Submission updated", resp.Message)
	assert.Equal(t, id.String(), resp.SubmUUID)

	subms, err := store.ListSubmissions(context.Background(), coursedb.SubmFilter{})
	require.NoError(t, err)
	assert.Len(t, subms, 1)
}

func TestSubmitBatchModeLeavesPending(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	h := newRouter(store, nil)

	w := submit(t, h, notification(task), secret, email)
	require.Equal(t, http.StatusOK, w.Code)
	var resp evalhttp.SubmitResponse
	decode(t, w, &resp)

	subm, err := store.GetSubmission(context.Background(), uuid.MustParse(resp.SubmUUID))
	require.NoError(t, err)
	assert.Equal(t, course.SubmPending, subm.Status)
}

func TestSubmitTriggerFailure(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	h := newRouter(store, &recordingTrigger{err: errors.New("sqs down")})

	w := submit(t, h, notification(task), secret, email)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	subms, err := store.ListSubmissions(context.Background(), coursedb.SubmFilter{})
	require.NoError(t, err)
	require.Len(t, subms, 1)
	assert.Equal(t, course.SubmPending, subms[0].Status)
}

// brokenResultStore fails every result write.
type brokenResultStore struct {
	coursedb.Store
}

func (s brokenResultStore) SaveResult(ctx context.Context, r *course.EvaluationResult, reeval bool) error {
	return errors.New("connection reset by peer")
}

func TestInlineEvaluationFailureMarksSubmissionFailed(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	inline := evalhttp.NewInlineTrigger(evaluator.New(brokenResultStore{store}, repoFiles{}))
	h := newRouter(store, inline)

	w := submit(t, h, notification(task), secret, email)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	inline.Wait()

	subms, err := store.ListSubmissions(context.Background(), coursedb.SubmFilter{})
	require.NoError(t, err)
	require.Len(t, subms, 1)
	assert.Equal(t, course.SubmFailed, subms[0].Status)
}

func TestSubmitRejected(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	h := newRouter(store, &recordingTrigger{})

	wrongNonce := notification(task)
	wrongNonce["nonce"] = "not-the-nonce"
	missing := notification(task)
	delete(missing, "commit_sha")

	tests := []struct {
		name     string
		body     any
		signWith string
		subject  string
		status   int
		code     string
	}{
		{"wrong secret", notification(task), "guess", email, http.StatusForbidden, "invalid_signature"},
		{"unknown participant", notification(task), secret, "other@example.com", http.StatusForbidden, "invalid_signature"},
		{"missing fields", missing, secret, email, http.StatusBadRequest, "missing_fields"},
		{"no matching task", wrongNonce, secret, email, http.StatusBadRequest, evalhttp.ErrCodeTaskNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := submit(t, h, tt.body, tt.signWith, tt.subject)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w, nil).Code)
		})
	}

	subms, err := store.ListSubmissions(context.Background(), coursedb.SubmFilter{})
	require.NoError(t, err)
	assert.Empty(t, subms)
}

func TestSubmitSubjectMismatch(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	require.NoError(t, store.UpsertParticipant(context.Background(), course.Participant{
		Email:    "mallory@example.com",
		Endpoint: "https://mallory.example/api/build",
		Secret:   "mallory-secret",
	}))
	h := newRouter(store, nil)

	w := submit(t, h, notification(task), "mallory-secret", "mallory@example.com")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, evalhttp.ErrCodeSubjectMismatch, decode(t, w, nil).Code)
}

func TestTamperedBody(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	h := newRouter(store, nil)

	raw, err := json.Marshal(notification(task))
	require.NoError(t, err)
	token, err := reqsign.Sign(secret, email, reqsign.AudienceEvaluation, "", raw)
	require.NoError(t, err)

	tampered := notification(task)
	tampered["pages_url"] = "https://evil.example/"
	raw, err = json.Marshal(tampered)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListAndResults(t *testing.T) {
	store := coursedb.NewInMemStore()
	task := seedTask(t, store)
	h := newRouter(store, nil)
	ctx := context.Background()

	w := submit(t, h, notification(task), secret, email)
	require.Equal(t, http.StatusOK, w.Code)
	var resp evalhttp.SubmitResponse
	decode(t, w, &resp)
	id := uuid.MustParse(resp.SubmUUID)

	res := &course.EvaluationResult{SubmUUID: id, Checks: []course.CheckResult{
		{Kind: course.CheckLicense, Name: "MIT License", Score: 1, Passed: true},
	}}
	res.Summarize()
	require.NoError(t, store.SaveResult(ctx, res, false))

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/api/submissions?round=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var subms []course.Submission
	decode(t, rec, &subms)
	require.Len(t, subms, 1)
	assert.Equal(t, id, subms[0].UUID)

	rec = get("/api/submissions?round=2")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &subms)
	assert.Empty(t, subms)

	assert.Equal(t, http.StatusBadRequest, get("/api/submissions?round=x").Code)

	rec = get("/api/submissions/" + id.String() + "/results")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []course.EvaluationResult
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Attempt)
	assert.Len(t, results[0].Checks, 1)

	rec = get("/api/submissions/" + uuid.NewString() + "/results")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, evalhttp.ErrCodeSubmNotFound, decode(t, rec, nil).Code)

	assert.Equal(t, http.StatusOK, get("/health").Code)
}

type ctxCheckingStore struct {
	coursedb.Store
}

func (s ctxCheckingStore) ListSubmissions(ctx context.Context, f coursedb.SubmFilter) ([]course.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.ListSubmissions(ctx, f)
}

func TestListIgnoresCallerCancellation(t *testing.T) {
	store := coursedb.NewInMemStore()
	h := newRouter(ctxCheckingStore{store}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/submissions", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var subms []course.Submission
	decode(t, rec, &subms)
	assert.Empty(t, subms)
}
