package coursedb

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
)

// InMemStore mirrors the PostgreSQL constraints: unique nonces, one
// submission per task and foreign keys between the tables.
type InMemStore struct {
	mu           sync.RWMutex
	participants map[string]course.Participant
	tasks        map[uuid.UUID]course.Task
	subms        map[uuid.UUID]course.Submission
	results      map[uuid.UUID][]course.EvaluationResult
}

var _ Store = (*InMemStore)(nil)

func NewInMemStore() *InMemStore {
	return &InMemStore{
		participants: make(map[string]course.Participant),
		tasks:        make(map[uuid.UUID]course.Task),
		subms:        make(map[uuid.UUID]course.Submission),
		results:      make(map[uuid.UUID][]course.EvaluationResult),
	}
}

func (s *InMemStore) UpsertParticipant(ctx context.Context, p course.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.participants[p.Email]; ok {
		p.RegisteredAt = old.RegisteredAt
	} else if p.RegisteredAt.IsZero() {
		p.RegisteredAt = time.Now()
	}
	s.participants[p.Email] = p
	return nil
}

func (s *InMemStore) GetParticipant(ctx context.Context, email string) (course.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[email]
	if !ok {
		return course.Participant{}, fmt.Errorf("get participant: %w", ErrNotFound)
	}
	return p, nil
}

func (s *InMemStore) ListParticipants(ctx context.Context) ([]course.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]course.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		res = append(res, p)
	}
	slices.SortFunc(res, func(a, b course.Participant) int {
		if a.Email < b.Email {
			return -1
		}
		if a.Email > b.Email {
			return 1
		}
		return 0
	})
	return res, nil
}

func (s *InMemStore) InsertTask(ctx context.Context, t course.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[t.Email]; !ok {
		return fmt.Errorf("insert task: %w", ErrMissingRef)
	}
	if _, ok := s.tasks[t.UUID]; ok {
		return fmt.Errorf("insert task: %w", ErrConflict)
	}
	for _, other := range s.tasks {
		if other.Nonce == t.Nonce {
			return fmt.Errorf("insert task: %w", ErrConflict)
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.tasks[t.UUID] = t
	return nil
}

func (s *InMemStore) GetTask(ctx context.Context, id uuid.UUID) (course.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return course.Task{}, fmt.Errorf("get task: %w", ErrNotFound)
	}
	return t, nil
}

func (s *InMemStore) LatestTask(ctx context.Context, email string, round int) (course.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *course.Task
	for _, t := range s.tasks {
		if t.Email != email || t.Round != round {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			t := t
			latest = &t
		}
	}
	if latest == nil {
		return course.Task{}, fmt.Errorf("latest task: %w", ErrNotFound)
	}
	return *latest, nil
}

func (s *InMemStore) MatchTask(ctx context.Context, m TaskMatch) (course.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.Email == m.Email && t.TaskID == m.TaskID && t.Round == m.Round && t.Nonce == m.Nonce {
			return t, nil
		}
	}
	return course.Task{}, fmt.Errorf("match task: %w", ErrNotFound)
}

func (s *InMemStore) RecordDispatch(ctx context.Context, id uuid.UUID, endpoint string, statusCode int, dispatchErr *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("record dispatch: %w", ErrNotFound)
	}
	t.Endpoint = endpoint
	t.StatusCode = statusCode
	t.DispatchError = dispatchErr
	s.tasks[id] = t
	return nil
}

func (s *InMemStore) UpsertSubmission(ctx context.Context, sub course.Submission) (course.Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[sub.TaskUUID]; !ok {
		return course.Submission{}, false, fmt.Errorf("upsert submission: %w", ErrMissingRef)
	}
	now := time.Now()
	for id, old := range s.subms {
		if old.TaskUUID != sub.TaskUUID {
			continue
		}
		old.RepoURL = sub.RepoURL
		old.CommitSHA = sub.CommitSHA
		old.PagesURL = sub.PagesURL
		old.Status = course.SubmPending
		old.UpdatedAt = now
		s.subms[id] = old
		return old, false, nil
	}
	if sub.UUID == uuid.Nil {
		sub.UUID = uuid.New()
	}
	sub.Status = course.SubmPending
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.subms[sub.UUID] = sub
	return sub, true, nil
}

func (s *InMemStore) GetSubmission(ctx context.Context, id uuid.UUID) (course.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subms[id]
	if !ok {
		return course.Submission{}, fmt.Errorf("get submission: %w", ErrNotFound)
	}
	return sub, nil
}

func (s *InMemStore) ListSubmissions(ctx context.Context, f SubmFilter) ([]course.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []course.Submission
	for _, sub := range s.subms {
		if f.matches(sub) {
			res = append(res, sub)
		}
	}
	slices.SortFunc(res, func(a, b course.Submission) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return res, nil
}

func (s *InMemStore) SetSubmStatus(ctx context.Context, id uuid.UUID, status course.SubmStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subms[id]
	if !ok {
		return fmt.Errorf("set submission status: %w", ErrNotFound)
	}
	sub.Status = status
	sub.UpdatedAt = time.Now()
	s.subms[id] = sub
	return nil
}

func (s *InMemStore) SaveResult(ctx context.Context, r *course.EvaluationResult, reeval bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subms[r.SubmUUID]
	if !ok {
		return fmt.Errorf("save result: %w", ErrNotFound)
	}
	if sub.Status == course.SubmEvaluated && !reeval {
		return fmt.Errorf("save result: %w", ErrAlreadyEvaluated)
	}
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.Attempt = len(s.results[r.SubmUUID]) + 1

	stored := *r
	stored.Checks = slices.Clone(r.Checks)
	s.results[r.SubmUUID] = append(s.results[r.SubmUUID], stored)

	sub.Status = course.SubmEvaluated
	sub.UpdatedAt = time.Now()
	s.subms[sub.UUID] = sub
	return nil
}

func (s *InMemStore) ListResults(ctx context.Context, submID uuid.UUID) ([]course.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.results[submID]), nil
}
