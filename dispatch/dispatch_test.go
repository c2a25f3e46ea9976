package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/dispatch"
	"github.com/programme-lv/pagesforge/reqsign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registrationsCSV = `timestamp,email,endpoint,secret
2026-10-01T10:00:00Z,anna@example.com,https://anna.example/api/build,anna-secret
2026-10-01T11:00:00Z,bob@example.com,https://bob.example/api/build,bob-secret
`

func TestReadRegistrations(t *testing.T) {
	regs, err := dispatch.ReadRegistrations(strings.NewReader(registrationsCSV))
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, dispatch.Registration{
		Timestamp: "2026-10-01T10:00:00Z",
		Email:     "anna@example.com",
		Endpoint:  "https://anna.example/api/build",
		Secret:    "anna-secret",
	}, regs[0])

	_, err = dispatch.ReadRegistrations(strings.NewReader("email,endpoint\na@b,c\n"))
	assert.ErrorContains(t, err, "missing column")

	_, err = dispatch.ReadRegistrations(strings.NewReader("timestamp,email,endpoint,secret\nx,a@b,,s\n"))
	assert.ErrorContains(t, err, "line 2")
}

type sent struct {
	endpoint string
	secret   string
	payload  course.Payload
}

// fakeSender answers with the status configured per endpoint, 200 otherwise.
type fakeSender struct {
	mu     sync.Mutex
	status map[string]int
	sent   []sent
}

func (f *fakeSender) Send(ctx context.Context, endpoint, secret string, payload course.Payload) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{endpoint: endpoint, secret: secret, payload: payload})
	if code, ok := f.status[endpoint]; ok {
		if code == 0 {
			return 0, errors.New("connection refused")
		}
		return code, nil
	}
	return http.StatusOK, nil
}

func (f *fakeSender) byEmail(email string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.payload.Email == email {
			out = append(out, s)
		}
	}
	return out
}

func newDispatcher(t *testing.T, store coursedb.Store, sender dispatch.Sender) *dispatch.Dispatcher {
	t.Helper()
	templates, err := course.LoadTemplates("")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }
	return dispatch.New(store, templates, sender, "http://eval.example/api/submit", dispatch.WithClock(clock))
}

func TestRound1(t *testing.T) {
	ctx := context.Background()
	store := coursedb.NewInMemStore()
	sender := &fakeSender{status: map[string]int{"https://bob.example/api/build": http.StatusInternalServerError}}
	d := newDispatcher(t, store, sender)
	regs, err := dispatch.ReadRegistrations(strings.NewReader(registrationsCSV))
	require.NoError(t, err)

	report, err := d.Round1(ctx, regs)
	require.NoError(t, err)
	require.Len(t, report.Sent, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "anna@example.com", report.Sent[0].Email)
	assert.Equal(t, http.StatusInternalServerError, report.Failed[0].StatusCode)

	anna := sender.byEmail("anna@example.com")
	require.Len(t, anna, 1)
	assert.Equal(t, "anna-secret", anna[0].secret)
	assert.Equal(t, 1, anna[0].payload.Round)
	assert.Equal(t, "http://eval.example/api/submit", anna[0].payload.EvaluationURL)
	assert.NotEmpty(t, anna[0].payload.Checks)

	annaTask, err := store.LatestTask(ctx, "anna@example.com", 1)
	require.NoError(t, err)
	assert.True(t, annaTask.Dispatched())
	assert.Equal(t, anna[0].payload.Nonce, annaTask.Nonce)
	assert.True(t, strings.HasPrefix(annaTask.TaskID, annaTask.TemplateID+"-"))

	bobTask, err := store.LatestTask(ctx, "bob@example.com", 1)
	require.NoError(t, err)
	assert.False(t, bobTask.Dispatched())
	require.NotNil(t, bobTask.DispatchError)

	// the second run skips anna and resends bob's task unchanged
	delete(sender.status, "https://bob.example/api/build")
	report, err = d.Round1(ctx, regs)
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	require.Len(t, report.Sent, 1)
	assert.Equal(t, "bob@example.com", report.Sent[0].Email)

	bob := sender.byEmail("bob@example.com")
	require.Len(t, bob, 2)
	assert.Equal(t, bob[0].payload.Nonce, bob[1].payload.Nonce)
	assert.Len(t, sender.byEmail("anna@example.com"), 1)

	bobTask, err = store.LatestTask(ctx, "bob@example.com", 1)
	require.NoError(t, err)
	assert.True(t, bobTask.Dispatched())
	assert.Nil(t, bobTask.DispatchError)

	table := report.Table()
	assert.Contains(t, table, "bob@example.com")
	assert.Contains(t, table, "Round 1: 1 sent, 1 skipped, 0 failed")
}

func TestRound1UnreachableEndpoint(t *testing.T) {
	store := coursedb.NewInMemStore()
	sender := &fakeSender{status: map[string]int{"https://anna.example/api/build": 0}}
	d := newDispatcher(t, store, sender)

	report, err := d.Round1(context.Background(), []dispatch.Registration{{
		Email: "anna@example.com", Endpoint: "https://anna.example/api/build", Secret: "anna-secret",
	}})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 0, report.Failed[0].StatusCode)
	assert.Contains(t, report.Failed[0].Err, "connection refused")
}

func TestRound1ResendFollowsUpdatedEndpoint(t *testing.T) {
	ctx := context.Background()
	store := coursedb.NewInMemStore()
	sender := &fakeSender{status: map[string]int{"https://old.example/api/build": 0}}
	d := newDispatcher(t, store, sender)

	reg := dispatch.Registration{Email: "anna@example.com", Endpoint: "https://old.example/api/build", Secret: "anna-secret"}
	report, err := d.Round1(ctx, []dispatch.Registration{reg})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)

	reg.Endpoint = "https://new.example/api/build"
	report, err = d.Round1(ctx, []dispatch.Registration{reg})
	require.NoError(t, err)
	require.Len(t, report.Sent, 1)

	anna := sender.byEmail("anna@example.com")
	require.Len(t, anna, 2)
	assert.Equal(t, "https://old.example/api/build", anna[0].endpoint)
	assert.Equal(t, "https://new.example/api/build", anna[1].endpoint)
	assert.Equal(t, anna[0].payload.Nonce, anna[1].payload.Nonce)

	task, err := store.LatestTask(ctx, "anna@example.com", 1)
	require.NoError(t, err)
	assert.True(t, task.Dispatched())
	assert.Equal(t, "https://new.example/api/build", task.Endpoint)
}

func TestRoster(t *testing.T) {
	ctx := context.Background()
	store := coursedb.NewInMemStore()
	sender := &fakeSender{status: map[string]int{"https://bob.example/api/build": 0}}
	d := newDispatcher(t, store, sender)
	regs, err := dispatch.ReadRegistrations(strings.NewReader(registrationsCSV))
	require.NoError(t, err)
	_, err = d.Round1(ctx, regs)
	require.NoError(t, err)

	entries, err := dispatch.Roster(ctx, store)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byEmail := map[string]dispatch.RosterEntry{}
	for _, e := range entries {
		byEmail[e.Participant.Email] = e
	}
	require.NotNil(t, byEmail["anna@example.com"].Rounds[0])
	assert.True(t, byEmail["anna@example.com"].Rounds[0].Dispatched())
	assert.Nil(t, byEmail["anna@example.com"].Rounds[1])
	require.NotNil(t, byEmail["bob@example.com"].Rounds[0])
	assert.False(t, byEmail["bob@example.com"].Rounds[0].Dispatched())

	out := dispatch.RosterTable(entries)
	assert.Contains(t, out, "2 participants")
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "sent 200")
}

func TestRound2(t *testing.T) {
	ctx := context.Background()
	store := coursedb.NewInMemStore()
	sender := &fakeSender{}
	d := newDispatcher(t, store, sender)
	regs, err := dispatch.ReadRegistrations(strings.NewReader(registrationsCSV))
	require.NoError(t, err)
	_, err = d.Round1(ctx, regs)
	require.NoError(t, err)

	// only anna submitted round 1
	r1, err := store.LatestTask(ctx, "anna@example.com", 1)
	require.NoError(t, err)
	_, _, err = store.UpsertSubmission(ctx, course.Submission{
		TaskUUID: r1.UUID, Email: r1.Email, TaskID: r1.TaskID, Round: 1, Nonce: r1.Nonce,
		RepoURL: "https://github.com/anna/x", CommitSHA: "sha", PagesURL: "https://anna.github.io/x/",
	})
	require.NoError(t, err)

	// anna moved her endpoint after round 1
	require.NoError(t, store.UpsertParticipant(ctx, course.Participant{
		Email: "anna@example.com", Endpoint: "https://anna.example/v2/build", Secret: "anna-secret",
	}))

	report, err := d.Round2(ctx)
	require.NoError(t, err)
	require.Len(t, report.Sent, 1)
	assert.Equal(t, 2, report.Round)

	anna := sender.byEmail("anna@example.com")
	assert.Equal(t, "https://anna.example/v2/build", anna[len(anna)-1].endpoint)

	r2, err := store.LatestTask(ctx, "anna@example.com", 2)
	require.NoError(t, err)
	assert.Equal(t, r1.TemplateID, r2.TemplateID)
	assert.Equal(t, "https://anna.example/v2/build", r2.Endpoint)
	assert.NotEqual(t, r1.Nonce, r2.Nonce)
	assert.NotEqual(t, r1.Brief, r2.Brief)

	report, err = d.Round2(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Sent)
	assert.Len(t, report.Skipped, 1)

	_, err = store.LatestTask(ctx, "bob@example.com", 2)
	assert.ErrorIs(t, err, coursedb.ErrNotFound)
}

func TestHttpSenderSigns(t *testing.T) {
	var got course.Payload
	r := chi.NewRouter()
	r.With(reqsign.Middleware(reqsign.AudienceStudent, reqsign.StaticSecret("anna-secret"))).
		Post("/api/build", func(w http.ResponseWriter, r *http.Request) {
			claims := reqsign.ClaimsFromContext(r.Context())
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &got); err != nil || claims.Nonce != got.Nonce {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		})
	srv := httptest.NewServer(r)
	defer srv.Close()

	payload := course.Payload{Email: "anna@example.com", Task: "t-12345", Round: 1, Nonce: "n-1", Checks: []string{}}
	status, err := dispatch.NewHttpSender().Send(context.Background(), srv.URL+"/api/build", "anna-secret", payload)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "t-12345", got.Task)

	status, err = dispatch.NewHttpSender().Send(context.Background(), srv.URL+"/api/build", "wrong", payload)
	assert.Error(t, err)
	assert.Equal(t, http.StatusForbidden, status)
}
