package http

import (
	"testing"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
	"assessment-engine/internal/notify"
)

func sampleQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:                   "quiz-1",
		Version:              1,
		Title:                "Checkpoint",
		PassingScore:         50,
		Active:               true,
		ShowScoreImmediately: true,
		AllowReview:          true,
		Questions: []domain.QuestionDefinition{
			{
				ID: "q1", Kind: domain.KindSingleSelect, Prompt: "2 + 2", Points: 1, Required: true,
				Options: []domain.AnswerOption{{ID: "o1", Text: "3"}, {ID: "o2", Text: "4", Correct: true}},
			},
			{
				ID: "q2", Kind: domain.KindEssay, Prompt: "Explain", Points: 4,
			},
		},
	}
}

func newTestService(t *testing.T) (*app.AssessmentService, *notify.Broadcaster) {
	t.Helper()
	quizzes := memory.NewQuizStore(sampleQuiz())
	b := notify.NewBroadcaster()
	svc := app.NewAssessmentService(
		memory.NewQuizRepository(quizzes, time.Minute),
		quizzes,
		memory.NewAttemptStore(),
		memory.NewAnalyticsStore(),
		app.WithNotifier(b),
		app.WithDispatcher(func(fn func()) { fn() }),
	)
	return svc, b
}
