package app

import (
	"context"
	"errors"
	"fmt"

	"assessment-engine/internal/domain"
	"go.uber.org/zap"
)

// PublishQuiz validates and stores a quiz definition. Once any attempt references a quiz its
// definition is frozen and republishing fails with domain.ErrQuizFrozen.
func (s *AssessmentService) PublishQuiz(ctx context.Context, quiz domain.QuizDefinition) (domain.QuizDefinition, error) {
	if s.writer == nil {
		return domain.QuizDefinition{}, errors.New("quiz publishing is not configured")
	}
	if err := quiz.Validate(); err != nil {
		return domain.QuizDefinition{}, err
	}

	existing, err := s.quizzes.GetQuiz(ctx, quiz.ID)
	switch {
	case err == nil:
		count, err := s.attempts.CountAttempts(ctx, quiz.ID, "")
		if err != nil {
			return domain.QuizDefinition{}, err
		}
		if count > 0 {
			return domain.QuizDefinition{}, fmt.Errorf("%w: %s has %d attempts", domain.ErrQuizFrozen, quiz.ID, count)
		}
		quiz.Version = existing.Version + 1
	case errors.Is(err, domain.ErrQuizNotFound):
		quiz.Version = 1
	default:
		return domain.QuizDefinition{}, err
	}

	if err := s.writer.SaveQuiz(ctx, quiz); err != nil {
		return domain.QuizDefinition{}, fmt.Errorf("save quiz: %w", err)
	}
	if err := s.quizzes.Invalidate(ctx, quiz.ID); err != nil {
		s.log.Warn("quiz cache invalidation failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
	}
	s.log.Info("quiz published", zap.String("quiz_id", quiz.ID), zap.Int("version", quiz.Version))
	return quiz, nil
}

// GetQuiz returns the stored definition for authoring tools.
func (s *AssessmentService) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}
