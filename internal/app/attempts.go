package app

import (
	"context"
	"fmt"

	"assessment-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StartAttempt opens a new attempt for the learner, snapshotting the quiz rules and the
// presentation order.
func (s *AssessmentService) StartAttempt(ctx context.Context, quizID, learnerID string) (StartedAttempt, error) {
	if learnerID == "" {
		return StartedAttempt{}, domain.ErrNotEnrolled
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartedAttempt{}, err
	}
	now := s.clock()
	if !quiz.Active {
		return StartedAttempt{}, domain.ErrQuizInactive
	}
	if !quiz.Available(now) {
		return StartedAttempt{}, domain.ErrQuizUnavailable
	}
	ok, err := s.enrollment.CanAttempt(ctx, quizID, learnerID)
	if err != nil {
		return StartedAttempt{}, fmt.Errorf("enrollment check: %w", err)
	}
	if !ok {
		return StartedAttempt{}, domain.ErrNotEnrolled
	}

	open, found, err := s.attempts.FindInProgress(ctx, quizID, learnerID)
	if err != nil {
		return StartedAttempt{}, err
	}
	if found {
		if !s.governor.Expired(open, now) {
			return StartedAttempt{}, domain.ErrAttemptInProgress
		}
		if _, err := s.finalize(ctx, open.ID, domain.AttemptTimeExpired, domain.TriggerDeadline); err != nil {
			return StartedAttempt{}, err
		}
	}

	count, err := s.attempts.CountAttempts(ctx, quizID, learnerID)
	if err != nil {
		return StartedAttempt{}, err
	}
	if quiz.MaxAttempts > 0 && count >= quiz.MaxAttempts {
		return StartedAttempt{}, domain.ErrMaxAttemptsExceeded
	}

	attempt := domain.Attempt{
		ID:        s.newID(),
		QuizID:    quiz.ID,
		LearnerID: learnerID,
		Number:    count + 1,
		State:     domain.AttemptInProgress,
		Settings: domain.AttemptSettings{
			QuizVersion:          quiz.Version,
			TimeLimitSeconds:     quiz.TimeLimitSeconds,
			MaxAttempts:          quiz.MaxAttempts,
			PassingScore:         quiz.PassingScore,
			ShowCorrectAnswers:   quiz.ShowCorrectAnswers,
			ShowScoreImmediately: quiz.ShowScoreImmediately,
			AllowReview:          quiz.AllowReview,
		},
		StartedAt:       now,
		MaxPoints:       quiz.MaxPoints(),
		ScorePercentage: decimal.Zero,
	}
	attempt.QuestionOrder, attempt.OptionOrder = snapshotOrder(quiz, attempt.ID)
	if deadline, ok := s.governor.Deadline(attempt); ok {
		attempt.ExpiresAt = &deadline
	}

	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return StartedAttempt{}, err
	}
	s.metrics.AttemptStarted(quiz.ID)
	s.log.Info("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("quiz_id", quiz.ID),
		zap.String("learner_id", learnerID),
		zap.Int("number", attempt.Number))

	return StartedAttempt{
		AttemptID:        attempt.ID,
		AttemptNumber:    attempt.Number,
		StartedAt:        attempt.StartedAt,
		ExpiresAt:        attempt.ExpiresAt,
		TimeLimitSeconds: attempt.Settings.TimeLimitSeconds,
		MaxAttempts:      attempt.Settings.MaxAttempts,
		Title:            quiz.Title,
		Instructions:     quiz.Instructions,
		Questions:        presentQuestions(quiz, attempt),
	}, nil
}

// GetAttempt returns the full attempt state. An in_progress attempt found past its deadline is
// closed as time_expired before it is returned.
func (s *AssessmentService) GetAttempt(ctx context.Context, attemptID string, audience Audience) (AttemptView, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	now := s.clock()
	if s.governor.Expired(attempt, now) {
		if attempt, err = s.finalize(ctx, attemptID, domain.AttemptTimeExpired, domain.TriggerDeadline); err != nil {
			return AttemptView{}, err
		}
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptView{}, err
	}
	responses, err := s.attempts.ListResponses(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}

	view := AttemptView{
		Attempt:          attempt,
		RemainingSeconds: s.governor.Remaining(attempt, now),
		Questions:        presentQuestions(quiz, attempt),
		Responses:        redactResponses(attempt, responses, audience),
	}
	if audience == AudienceLearner && !attempt.Settings.ShowScoreImmediately {
		view.Attempt = hideScore(attempt)
	}
	if attempt.State.Terminal() {
		view.Result = resultFor(quiz, attempt, responses, audience)
	}
	return view, nil
}

// OwnerOf returns the learner that owns the attempt.
func (s *AssessmentService) OwnerOf(ctx context.Context, attemptID string) (string, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return "", err
	}
	return attempt.LearnerID, nil
}

// ListAttempts returns attempts matching filter, newest first. Learner callers should pass
// their own ID in the filter.
func (s *AssessmentService) ListAttempts(ctx context.Context, filter AttemptFilter, audience Audience) ([]domain.Attempt, error) {
	if filter.State != "" && filter.State != domain.AttemptInProgress && !filter.State.Terminal() {
		return nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidPayload, filter.State)
	}
	if filter.QuizID != "" {
		if _, err := s.quizzes.GetQuiz(ctx, filter.QuizID); err != nil {
			return nil, err
		}
	}
	attempts, err := s.attempts.ListAttempts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if audience == AudienceInstructor {
		return attempts, nil
	}
	for i, a := range attempts {
		if !a.Settings.ShowScoreImmediately {
			attempts[i] = hideScore(a)
		}
	}
	return attempts, nil
}

func hideScore(a domain.Attempt) domain.Attempt {
	a.ScorePoints = 0
	a.ScorePercentage = decimal.Zero
	a.Passed = nil
	return a
}

// expireIfDue closes the attempt when the governor says its time is up. It reports whether the
// attempt is (now) terminal.
func (s *AssessmentService) expireIfDue(ctx context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	if a.State.Terminal() {
		return a, true, nil
	}
	if !s.governor.Expired(a, s.clock()) {
		return a, false, nil
	}
	closed, err := s.finalize(ctx, a.ID, domain.AttemptTimeExpired, domain.TriggerDeadline)
	if err != nil {
		return a, false, err
	}
	return closed, true, nil
}

func terminalError(a domain.Attempt) error {
	if a.State == domain.AttemptTimeExpired {
		return domain.ErrAttemptExpired
	}
	return domain.ErrAttemptTerminal
}
