package app

import (
	"context"
	"fmt"

	"assessment-engine/internal/domain"
	"go.uber.org/zap"
)

// ManualGradeInput is an instructor's grade for an essay response.
type ManualGradeInput struct {
	Points   int
	Feedback string
	GradedBy string
}

// ManualGradeEssay grades a pending or previously graded essay and re-aggregates the attempt.
// This is a separate transition from finalization: the attempt stays terminal, only its score
// changes.
func (s *AssessmentService) ManualGradeEssay(ctx context.Context, responseID string, in ManualGradeInput) (AttemptResult, error) {
	response, err := s.attempts.GetResponse(ctx, responseID)
	if err != nil {
		return AttemptResult{}, err
	}
	if response.Kind != domain.KindEssay {
		return AttemptResult{}, fmt.Errorf("%w: %s is %s", domain.ErrNotManuallyGradable, responseID, response.Kind)
	}
	attempt, err := s.attempts.GetAttempt(ctx, response.AttemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if !attempt.State.Terminal() {
		return AttemptResult{}, domain.ErrAttemptNotFinalized
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptResult{}, err
	}
	question, ok := quiz.Question(response.QuestionID)
	if !ok {
		return AttemptResult{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotInQuiz, response.QuestionID)
	}
	if in.Points < 0 || in.Points > question.Points {
		return AttemptResult{}, fmt.Errorf("%w: points must be between 0 and %d", domain.ErrInvalidGrade, question.Points)
	}

	now := s.clock()
	grade := domain.ManualGrade{
		Points:   in.Points,
		Feedback: in.Feedback,
		GradedBy: in.GradedBy,
		GradedAt: now,
	}
	regraded, _, err := s.attempts.ApplyManualGrade(ctx, responseID, grade, in.Points == question.Points,
		scoreFor(attempt.Settings, attempt.MaxPoints))
	if err != nil {
		return AttemptResult{}, err
	}

	s.metrics.ManualGraded()
	s.log.Info("essay graded",
		zap.String("attempt_id", regraded.ID),
		zap.String("response_id", responseID),
		zap.String("graded_by", in.GradedBy),
		zap.Int("points", in.Points),
		zap.Int("regrades", regraded.Regrades))

	if _, err := s.RecomputeAnalytics(ctx, regraded.QuizID); err != nil {
		s.log.Warn("analytics recompute failed", zap.String("quiz_id", regraded.QuizID), zap.Error(err))
	}
	s.notify(eventFor(domain.EventAttemptRegraded, regraded, now))

	responses, err := s.attempts.ListResponses(ctx, regraded.ID)
	if err != nil {
		return AttemptResult{}, err
	}
	return *resultFor(quiz, regraded, responses, AudienceInstructor), nil
}
