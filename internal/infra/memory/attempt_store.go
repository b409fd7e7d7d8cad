package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository. One mutex guards
// attempts and responses together, which makes Finalize and ApplyManualGrade atomic.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[string]domain.Attempt
	responses map[string]map[string]domain.Response // attempt ID -> question ID -> response
	byID      map[string]responseKey
}

type responseKey struct {
	attemptID  string
	questionID string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.Attempt),
		responses: make(map[string]map[string]domain.Response),
		byID:      make(map[string]responseKey),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.QuizID != attempt.QuizID || a.LearnerID != attempt.LearnerID {
			continue
		}
		if a.State == domain.AttemptInProgress || a.Number == attempt.Number {
			return domain.ErrAttemptInProgress
		}
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptStore) FindInProgress(_ context.Context, quizID, learnerID string) (domain.Attempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.LearnerID == learnerID && a.State == domain.AttemptInProgress {
			return a, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (s *AttemptStore) CountAttempts(_ context.Context, quizID, learnerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.QuizID == quizID && (learnerID == "" || a.LearnerID == learnerID) {
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, filter app.AttemptFilter) ([]domain.Attempt, error) {
	s.mu.RLock()
	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if filter.QuizID != "" && a.QuizID != filter.QuizID {
			continue
		}
		if filter.LearnerID != "" && a.LearnerID != filter.LearnerID {
			continue
		}
		if filter.State != "" && a.State != filter.State {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].Number > out[j].Number
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *AttemptStore) UpsertResponse(_ context.Context, r domain.Response) (domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[r.AttemptID]
	if !ok {
		return domain.Response{}, domain.ErrAttemptNotFound
	}
	if a.State != domain.AttemptInProgress {
		return domain.Response{}, domain.ErrAttemptTerminal
	}
	answers := s.responses[r.AttemptID]
	if answers == nil {
		answers = make(map[string]domain.Response)
		s.responses[r.AttemptID] = answers
	}
	if prev, ok := answers[r.QuestionID]; ok {
		r.ID = prev.ID
		r.SubmittedAt = prev.SubmittedAt
	}
	r.Grade = nil
	answers[r.QuestionID] = r
	s.byID[r.ID] = responseKey{attemptID: r.AttemptID, questionID: r.QuestionID}
	return r, nil
}

func (s *AttemptStore) GetResponse(_ context.Context, responseID string) (domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responseLocked(responseID)
}

func (s *AttemptStore) responseLocked(responseID string) (domain.Response, error) {
	key, ok := s.byID[responseID]
	if !ok {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	r, ok := s.responses[key.attemptID][key.questionID]
	if !ok {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	return r, nil
}

func (s *AttemptStore) ListResponses(_ context.Context, attemptID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(attemptID), nil
}

func (s *AttemptStore) listLocked(attemptID string) []domain.Response {
	out := make([]domain.Response, 0, len(s.responses[attemptID]))
	for _, r := range s.responses[attemptID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}

func (s *AttemptStore) ListQuizResponses(_ context.Context, quizID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Response
	for id, a := range s.attempts {
		if a.QuizID == quizID && a.State.Terminal() {
			out = append(out, s.listLocked(id)...)
		}
	}
	return out, nil
}

func (s *AttemptStore) Finalize(_ context.Context, attemptID string, state domain.AttemptState, trigger domain.CompletionTrigger, at time.Time, score app.ScoreFunc) (domain.Attempt, bool, error) {
	if !state.Terminal() {
		return domain.Attempt{}, false, fmt.Errorf("finalize into %q", state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, false, domain.ErrAttemptNotFound
	}
	if a.State.Terminal() {
		return a, false, nil
	}
	a.Close(state, trigger, at)
	a.ApplyScore(score(s.listLocked(attemptID)))
	s.attempts[attemptID] = a
	return a, true, nil
}

func (s *AttemptStore) ApplyManualGrade(_ context.Context, responseID string, grade domain.ManualGrade, correct bool, score app.ScoreFunc) (domain.Attempt, domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.responseLocked(responseID)
	if err != nil {
		return domain.Attempt{}, domain.Response{}, err
	}
	a, ok := s.attempts[r.AttemptID]
	if !ok {
		return domain.Attempt{}, domain.Response{}, domain.ErrAttemptNotFound
	}
	if !a.State.Terminal() {
		return domain.Attempt{}, domain.Response{}, domain.ErrAttemptNotFinalized
	}

	r.Grade = &grade
	r.IsCorrect = &correct
	r.AwardedPoints = grade.Points
	r.UpdatedAt = grade.GradedAt
	s.responses[r.AttemptID][r.QuestionID] = r

	a.ApplyScore(score(s.listLocked(a.ID)))
	a.Regrades++
	s.attempts[a.ID] = a
	return a, r, nil
}

// AnalyticsStore keeps the latest snapshot per quiz.
type AnalyticsStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.AnalyticsSnapshot
}

func NewAnalyticsStore() *AnalyticsStore {
	return &AnalyticsStore{snapshots: make(map[string]domain.AnalyticsSnapshot)}
}

func (s *AnalyticsStore) SaveSnapshot(_ context.Context, snap domain.AnalyticsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.QuizID] = snap
	return nil
}

func (s *AnalyticsStore) GetSnapshot(_ context.Context, quizID string) (domain.AnalyticsSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[quizID]
	return snap, ok, nil
}
