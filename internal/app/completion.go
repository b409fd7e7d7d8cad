package app

import (
	"context"
	"fmt"

	"assessment-engine/internal/domain"
	"go.uber.org/zap"
)

// CompleteAttempt finalizes the attempt and returns its result. Calling it on an attempt that is
// already terminal returns the stored result, so retries and duplicate sessions are safe.
// A learner completion that arrives past the deadline is recorded as time_expired.
func (s *AssessmentService) CompleteAttempt(ctx context.Context, attemptID string, trigger domain.CompletionTrigger, audience Audience) (AttemptResult, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if !attempt.State.Terminal() {
		state := domain.AttemptCompleted
		if trigger == domain.TriggerDeadline || s.governor.Expired(attempt, s.clock()) {
			state, trigger = domain.AttemptTimeExpired, domain.TriggerDeadline
		}
		if attempt, err = s.finalize(ctx, attemptID, state, trigger); err != nil {
			return AttemptResult{}, err
		}
	}
	return s.result(ctx, attempt, audience)
}

func (s *AssessmentService) result(ctx context.Context, attempt domain.Attempt, audience Audience) (AttemptResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptResult{}, err
	}
	responses, err := s.attempts.ListResponses(ctx, attempt.ID)
	if err != nil {
		return AttemptResult{}, err
	}
	return *resultFor(quiz, attempt, responses, audience), nil
}

// finalize performs the terminal transition. Concurrent callers in this process share one
// store call; across processes the store's Finalize decides the single winner and the losers
// get the already-terminal attempt back.
func (s *AssessmentService) finalize(ctx context.Context, attemptID string, state domain.AttemptState, trigger domain.CompletionTrigger) (domain.Attempt, error) {
	v, err, _ := s.finalizing.Do(attemptID, func() (interface{}, error) {
		current, err := s.attempts.GetAttempt(ctx, attemptID)
		if err != nil {
			return domain.Attempt{}, err
		}
		if current.State.Terminal() {
			return current, nil
		}
		at := s.clock()
		attempt, finalized, err := s.attempts.Finalize(ctx, attemptID, state, trigger, at,
			scoreFor(current.Settings, current.MaxPoints))
		if err != nil {
			return domain.Attempt{}, fmt.Errorf("finalize attempt %s: %w", attemptID, err)
		}
		if !finalized {
			return attempt, nil
		}

		s.metrics.AttemptFinalized(string(attempt.State), string(attempt.Trigger))
		s.log.Info("attempt finalized",
			zap.String("attempt_id", attempt.ID),
			zap.String("quiz_id", attempt.QuizID),
			zap.String("learner_id", attempt.LearnerID),
			zap.String("state", string(attempt.State)),
			zap.Int("points", attempt.ScorePoints),
			zap.String("percentage", attempt.ScorePercentage.StringFixed(2)))

		if _, err := s.RecomputeAnalytics(ctx, attempt.QuizID); err != nil {
			s.log.Warn("analytics recompute failed", zap.String("quiz_id", attempt.QuizID), zap.Error(err))
		}
		s.notify(eventFor(domain.EventAttemptFinalized, attempt, at))
		return attempt, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return v.(domain.Attempt), nil
}

// RecomputeAnalytics rebuilds the quiz snapshot from every stored attempt and overwrites it.
func (s *AssessmentService) RecomputeAnalytics(ctx context.Context, quizID string) (domain.AnalyticsSnapshot, error) {
	attempts, err := s.attempts.ListAttempts(ctx, AttemptFilter{QuizID: quizID})
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	responses, err := s.attempts.ListQuizResponses(ctx, quizID)
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	snap := buildSnapshot(quizID, attempts, responses, s.clock())
	if err := s.analytics.SaveSnapshot(ctx, snap); err != nil {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("save analytics: %w", err)
	}
	return snap, nil
}

// GetAnalytics returns the stored snapshot, computing one if the quiz has none yet.
func (s *AssessmentService) GetAnalytics(ctx context.Context, quizID string) (domain.AnalyticsSnapshot, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	snap, ok, err := s.analytics.GetSnapshot(ctx, quizID)
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	if ok {
		return snap, nil
	}
	return s.RecomputeAnalytics(ctx, quizID)
}
