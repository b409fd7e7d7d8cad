package app

import (
	"context"
	"errors"
	"fmt"

	"assessment-engine/internal/domain"
	"assessment-engine/internal/grading"
	"go.uber.org/zap"
)

// SubmitResponse records the learner's answer to one question, overwriting any earlier answer to
// the same question. Objective kinds are evaluated on the spot; essays stay pending.
//
// A write that arrives after the deadline on an attempt still marked in_progress is kept: the
// answer is stored, the attempt is closed as time_expired, and the closed result is returned
// alongside the response.
func (s *AssessmentService) SubmitResponse(ctx context.Context, attemptID, questionID string, payload domain.Payload) (SubmissionResult, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if attempt.State.Terminal() {
		return SubmissionResult{}, terminalError(attempt)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return SubmissionResult{}, err
	}
	question, ok := quiz.Question(questionID)
	if !ok || !contains(attempt.QuestionOrder, questionID) {
		return SubmissionResult{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotInQuiz, questionID)
	}
	if err := grading.ValidatePayload(question, payload, s.limits); err != nil {
		return SubmissionResult{}, err
	}
	verdict, err := grading.Evaluate(question, payload)
	if err != nil {
		return SubmissionResult{}, err
	}

	now := s.clock()
	saved, err := s.attempts.UpsertResponse(ctx, domain.Response{
		ID:            s.newID(),
		AttemptID:     attemptID,
		QuestionID:    questionID,
		Kind:          question.Kind,
		Payload:       payload,
		IsCorrect:     verdict.IsCorrect,
		AwardedPoints: verdict.AwardedPoints,
		SubmittedAt:   now,
		UpdatedAt:     now,
	})
	if errors.Is(err, domain.ErrAttemptTerminal) {
		// Lost the race against a finalize; report what the attempt became.
		if current, getErr := s.attempts.GetAttempt(ctx, attemptID); getErr == nil {
			return SubmissionResult{}, terminalError(current)
		}
	}
	if err != nil {
		return SubmissionResult{}, err
	}
	s.metrics.ResponseRecorded(string(question.Kind), verdictLabel(verdict))

	out := SubmissionResult{Response: saved}
	if redacted := redactResponses(attempt, []domain.Response{saved}, AudienceLearner); len(redacted) == 1 {
		out.Response = redacted[0]
	}

	closed, terminal, err := s.expireIfDue(ctx, attempt)
	if err != nil {
		return SubmissionResult{}, err
	}
	if terminal {
		s.log.Info("late response closed attempt",
			zap.String("attempt_id", attemptID),
			zap.String("question_id", questionID))
		res, err := s.result(ctx, closed, AudienceLearner)
		if err != nil {
			return SubmissionResult{}, err
		}
		out.Attempt = &res
	}
	return out, nil
}

func verdictLabel(r grading.Result) string {
	switch {
	case r.IsCorrect == nil:
		return "pending"
	case *r.IsCorrect:
		return "correct"
	default:
		return "incorrect"
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
