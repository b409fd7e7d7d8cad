package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
	"github.com/shopspring/decimal"
)

var start = time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *app.AssessmentService
	attempts *memory.AttemptStore
	quizzes  *memory.QuizStore
	notifier *recordingNotifier
	now      *time.Time
}

func newFixture(t *testing.T, quizzes ...domain.QuizDefinition) *fixture {
	t.Helper()
	now := start
	f := &fixture{
		attempts: memory.NewAttemptStore(),
		quizzes:  memory.NewQuizStore(quizzes...),
		notifier: &recordingNotifier{},
		now:      &now,
	}
	var ids atomic.Int64
	f.svc = app.NewAssessmentService(
		memory.NewQuizRepository(f.quizzes, 0),
		f.quizzes,
		f.attempts,
		memory.NewAnalyticsStore(),
		app.WithClock(func() time.Time { return *f.now }),
		app.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }),
		app.WithNotifier(f.notifier),
		app.WithDispatcher(func(fn func()) { fn() }),
	)
	return f
}

func (f *fixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) count(typ domain.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == typ {
			c++
		}
	}
	return c
}

func singleSelect(id string, points int) domain.QuestionDefinition {
	return domain.QuestionDefinition{
		ID:       id,
		Kind:     domain.KindSingleSelect,
		Prompt:   "pick one",
		Points:   points,
		Required: true,
		Options: []domain.AnswerOption{
			{ID: id + "-right", Text: "right", Correct: true},
			{ID: id + "-wrong", Text: "wrong"},
		},
	}
}

func baseQuiz(questions ...domain.QuestionDefinition) domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:                   "quiz-1",
		Version:              1,
		Title:                "Checkpoint",
		Questions:            questions,
		PassingScore:         50,
		Active:               true,
		ShowScoreImmediately: true,
		AllowReview:          true,
	}
}

func pick(id string) domain.Payload { return domain.Payload{OptionIDs: []string{id}} }

func TestScenarioAHalfCorrectPasses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseQuiz(singleSelect("q1", 2), singleSelect("q2", 2)))

	started, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.AttemptNumber != 1 || len(started.Questions) != 2 {
		t.Fatalf("unexpected start %+v", started)
	}
	if started.MaxAttempts != 0 || started.TimeLimitSeconds != nil {
		t.Fatalf("expected unlimited attempts and time, got %+v", started)
	}
	if _, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right")); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if _, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q2", pick("q2-wrong")); err != nil {
		t.Fatalf("submit q2: %v", err)
	}

	f.advance(3 * time.Minute)
	res, err := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.State != domain.AttemptCompleted || *res.ScorePoints != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.ScorePercentage.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50%%, got %s", res.ScorePercentage)
	}
	if res.Passed == nil || !*res.Passed {
		t.Fatalf("expected passed")
	}
	if res.TimeSpentSeconds != 180 || len(res.Questions) != 2 {
		t.Fatalf("unexpected review data %+v", res)
	}
	if f.notifier.count(domain.EventAttemptFinalized) != 1 {
		t.Fatalf("expected one finalized event")
	}
}

func TestScenarioBSubmitAfterDeadlineExpires(t *testing.T) {
	ctx := context.Background()
	quiz := baseQuiz(singleSelect("q1", 2), singleSelect("q2", 2))
	zero := 0
	quiz.TimeLimitSeconds = &zero
	f := newFixture(t, quiz)

	started, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sub, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right"))
	if err != nil {
		t.Fatalf("late submit should not fail: %v", err)
	}
	if sub.Response.IsCorrect == nil || !*sub.Response.IsCorrect {
		t.Fatalf("late response should still be evaluated: %+v", sub.Response)
	}
	if sub.Attempt == nil || sub.Attempt.State != domain.AttemptTimeExpired {
		t.Fatalf("expected forced time_expired, got %+v", sub.Attempt)
	}
	if *sub.Attempt.ScorePoints != 2 {
		t.Fatalf("expected recorded answer in score, got %d", *sub.Attempt.ScorePoints)
	}

	again, err := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	if err != nil {
		t.Fatalf("complete after expiry: %v", err)
	}
	if again.State != domain.AttemptTimeExpired || *again.ScorePoints != *sub.Attempt.ScorePoints ||
		!again.ScorePercentage.Equal(*sub.Attempt.ScorePercentage) {
		t.Fatalf("expected identical result, got %+v", again)
	}
	if _, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q2", pick("q2-right")); !errors.Is(err, domain.ErrAttemptExpired) {
		t.Fatalf("expected attempt expired, got %v", err)
	}
	if f.notifier.count(domain.EventAttemptFinalized) != 1 {
		t.Fatalf("expected exactly one finalization")
	}
}

func TestScenarioCMaxAttempts(t *testing.T) {
	ctx := context.Background()
	quiz := baseQuiz(singleSelect("q1", 1))
	quiz.MaxAttempts = 1
	f := newFixture(t, quiz)

	started, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.MaxAttempts != 1 {
		t.Fatalf("expected maxAttempts 1, got %d", started.MaxAttempts)
	}
	if _, err := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1"); !errors.Is(err, domain.ErrMaxAttemptsExceeded) {
		t.Fatalf("expected max attempts exceeded, got %v", err)
	}
	if n, _ := f.attempts.CountAttempts(ctx, "quiz-1", "learner-1"); n != 1 {
		t.Fatalf("expected no new record, have %d", n)
	}
	if _, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-2"); err != nil {
		t.Fatalf("other learner should start: %v", err)
	}
}

func TestScenarioDMultiSelectAllOrNothing(t *testing.T) {
	ctx := context.Background()
	multi := domain.QuestionDefinition{
		ID:       "q1",
		Kind:     domain.KindMultiSelect,
		Points:   3,
		Required: true,
		Options: []domain.AnswerOption{
			{ID: "A", Correct: true},
			{ID: "B"},
			{ID: "C", Correct: true},
		},
	}
	f := newFixture(t, baseQuiz(multi))

	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	sub, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", domain.Payload{OptionIDs: []string{"A", "B", "C"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Response.IsCorrect == nil || *sub.Response.IsCorrect || sub.Response.AwardedPoints != 0 {
		t.Fatalf("expected incorrect with zero points, got %+v", sub.Response)
	}
}

func TestScenarioEManualGradeReaggregates(t *testing.T) {
	ctx := context.Background()
	essay := domain.QuestionDefinition{ID: "q2", Kind: domain.KindEssay, Points: 5, Required: true, Prompt: "explain"}
	quiz := baseQuiz(singleSelect("q1", 5), essay)
	quiz.PassingScore = 60
	f := newFixture(t, quiz)

	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	if _, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right")); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	sub, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q2", domain.Payload{Text: "because entropy"})
	if err != nil {
		t.Fatalf("submit essay: %v", err)
	}
	if sub.Response.IsCorrect != nil || sub.Response.AwardedPoints != 0 {
		t.Fatalf("essay should be pending, got %+v", sub.Response)
	}

	res, err := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if *res.ScorePoints != 5 || *res.Passed || res.PendingReview != 1 {
		t.Fatalf("unexpected provisional result %+v", res)
	}

	if _, err := f.svc.ManualGradeEssay(ctx, sub.Response.ID, app.ManualGradeInput{Points: 6}); !errors.Is(err, domain.ErrInvalidGrade) {
		t.Fatalf("expected invalid grade, got %v", err)
	}
	graded, err := f.svc.ManualGradeEssay(ctx, sub.Response.ID, app.ManualGradeInput{Points: 5, Feedback: "good", GradedBy: "instructor-1"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if *graded.ScorePoints != 10 || !*graded.Passed || graded.PendingReview != 0 {
		t.Fatalf("unexpected regraded result %+v", graded)
	}

	view, err := f.svc.GetAttempt(ctx, started.AttemptID, app.AudienceLearner)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if view.Attempt.ScorePoints != 10 || view.Attempt.Passed == nil || !*view.Attempt.Passed {
		t.Fatalf("attempt does not reflect regrade: %+v", view.Attempt)
	}
	if view.Attempt.State != domain.AttemptCompleted || view.Attempt.Regrades != 1 {
		t.Fatalf("regrade must not reopen attempt: %+v", view.Attempt)
	}
	if f.notifier.count(domain.EventAttemptRegraded) != 1 {
		t.Fatalf("expected regraded event")
	}
}

func TestManualGradeRejectsObjectiveAndOpenAttempts(t *testing.T) {
	ctx := context.Background()
	essay := domain.QuestionDefinition{ID: "q2", Kind: domain.KindEssay, Points: 5, Required: true}
	f := newFixture(t, baseQuiz(singleSelect("q1", 5), essay))

	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	objective, _ := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right"))
	open, _ := f.svc.SubmitResponse(ctx, started.AttemptID, "q2", domain.Payload{Text: "draft"})

	if _, err := f.svc.ManualGradeEssay(ctx, open.Response.ID, app.ManualGradeInput{Points: 1}); !errors.Is(err, domain.ErrAttemptNotFinalized) {
		t.Fatalf("expected not finalized, got %v", err)
	}
	if _, err := f.svc.ManualGradeEssay(ctx, objective.Response.ID, app.ManualGradeInput{Points: 1}); !errors.Is(err, domain.ErrNotManuallyGradable) {
		t.Fatalf("expected not gradable, got %v", err)
	}
}

func TestStartAttemptRejectsSecondOpenAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseQuiz(singleSelect("q1", 1)))

	if _, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1"); !errors.Is(err, domain.ErrAttemptInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
}

func TestStartAttemptExpiresStaleAttempt(t *testing.T) {
	ctx := context.Background()
	quiz := baseQuiz(singleSelect("q1", 1))
	limit := 60
	quiz.TimeLimitSeconds = &limit
	f := newFixture(t, quiz)

	first, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	f.advance(2 * time.Minute)
	second, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	if err != nil {
		t.Fatalf("start after expiry: %v", err)
	}
	if second.AttemptNumber != 2 {
		t.Fatalf("expected attempt 2, got %d", second.AttemptNumber)
	}
	old, _ := f.attempts.GetAttempt(ctx, first.AttemptID)
	if old.State != domain.AttemptTimeExpired || old.Trigger != domain.TriggerDeadline {
		t.Fatalf("expected stale attempt expired, got %+v", old)
	}
}

func TestStartAttemptAvailability(t *testing.T) {
	ctx := context.Background()
	inactive := baseQuiz(singleSelect("q1", 1))
	inactive.Active = false
	f := newFixture(t, inactive)
	if _, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1"); !errors.Is(err, domain.ErrQuizInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}

	later := baseQuiz(singleSelect("q1", 1))
	opens := start.Add(time.Hour)
	later.AvailableFrom = &opens
	f = newFixture(t, later)
	_, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	if !errors.Is(err, domain.ErrQuizUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if domain.KindOf(err) != domain.KindAvailability {
		t.Fatalf("expected availability kind, got %v", domain.KindOf(err))
	}
	if _, err := f.svc.StartAttempt(ctx, "missing", "learner-1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResubmissionOverwrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseQuiz(singleSelect("q1", 2)))

	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	first, _ := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right"))
	second, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-wrong"))
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Response.ID != first.Response.ID {
		t.Fatalf("expected same response identity")
	}
	res, _ := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	if *res.ScorePoints != 0 || *res.Passed {
		t.Fatalf("last answer must win, got %+v", res)
	}
}

func TestSubmitResponseValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseQuiz(singleSelect("q1", 2)))
	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")

	if _, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q9", pick("x")); !errors.Is(err, domain.ErrQuestionNotInQuiz) {
		t.Fatalf("expected question not in quiz, got %v", err)
	}
	_, err := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", domain.Payload{OptionIDs: []string{"q1-right", "q1-wrong"}})
	if !errors.Is(err, domain.ErrInvalidPayload) || domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if list, _ := f.attempts.ListResponses(ctx, started.AttemptID); len(list) != 0 {
		t.Fatalf("rejected writes must not be applied")
	}
	if _, err := f.svc.SubmitResponse(ctx, "nope", "q1", pick("q1-right")); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}

	_, _ = f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	_, err = f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right"))
	if !errors.Is(err, domain.ErrAttemptTerminal) || domain.KindOf(err) != domain.KindStateConflict {
		t.Fatalf("expected terminal conflict, got %v", err)
	}
}

func TestConcurrentCompleteFinalizesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseQuiz(singleSelect("q1", 2), singleSelect("q2", 2)))
	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	_, _ = f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right"))

	var wg sync.WaitGroup
	results := make([]app.AttemptResult, 12)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner)
			if err != nil {
				t.Errorf("complete: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		if res.State != domain.AttemptCompleted || res.ScorePoints == nil || *res.ScorePoints != 2 {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if got := f.notifier.count(domain.EventAttemptFinalized); got != 1 {
		t.Fatalf("expected one finalization, got %d", got)
	}
}

func TestGetAttemptExpiresOnRead(t *testing.T) {
	ctx := context.Background()
	quiz := baseQuiz(singleSelect("q1", 1))
	limit := 300
	quiz.TimeLimitSeconds = &limit
	f := newFixture(t, quiz)

	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	f.advance(100 * time.Second)
	view, err := f.svc.GetAttempt(ctx, started.AttemptID, app.AudienceLearner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.RemainingSeconds == nil || *view.RemainingSeconds != 200 {
		t.Fatalf("expected 200s remaining, got %v", view.RemainingSeconds)
	}

	f.advance(10 * time.Minute)
	view, err = f.svc.GetAttempt(ctx, started.AttemptID, app.AudienceLearner)
	if err != nil {
		t.Fatalf("get after deadline: %v", err)
	}
	if view.Attempt.State != domain.AttemptTimeExpired || view.RemainingSeconds != nil || view.Result == nil {
		t.Fatalf("expected expired view, got %+v", view)
	}
	view2, _ := f.svc.GetAttempt(ctx, started.AttemptID, app.AudienceLearner)
	if !view2.Attempt.CompletedAt.Equal(*view.Attempt.CompletedAt) {
		t.Fatalf("expiry must happen once")
	}
}

func TestJustPastDeadlineIsExpired(t *testing.T) {
	ctx := context.Background()
	quiz := baseQuiz(singleSelect("q1", 1))
	limit := 60
	quiz.TimeLimitSeconds = &limit
	f := newFixture(t, quiz)

	read, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	f.advance(61 * time.Second)
	view, err := f.svc.GetAttempt(ctx, read.AttemptID, app.AudienceLearner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Attempt.State != domain.AttemptTimeExpired {
		t.Fatalf("read one second late must expire, got %s", view.Attempt.State)
	}

	completed, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-2")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.advance(61 * time.Second)
	res, err := f.svc.CompleteAttempt(ctx, completed.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.State != domain.AttemptTimeExpired || res.Trigger != string(domain.TriggerDeadline) {
		t.Fatalf("late completion must be time_expired by deadline, got %s/%s", res.State, res.Trigger)
	}
}

func TestLearnerViewHidesScore(t *testing.T) {
	ctx := context.Background()
	quiz := baseQuiz(singleSelect("q1", 2))
	quiz.ShowScoreImmediately = false
	quiz.AllowReview = false
	f := newFixture(t, quiz)

	started, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	sub, _ := f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick("q1-right"))
	if sub.Response.IsCorrect != nil {
		t.Fatalf("verdict should be hidden from learner")
	}
	res, _ := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	if res.ScorePoints != nil || res.Passed != nil || len(res.Questions) != 0 {
		t.Fatalf("learner result should hide score, got %+v", res)
	}
	full, _ := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceInstructor)
	if full.ScorePoints == nil || *full.ScorePoints != 2 || len(full.Questions) != 1 {
		t.Fatalf("instructor sees everything, got %+v", full)
	}
	if full.Questions[0].CorrectAnswer == nil {
		t.Fatalf("instructor should see the answer key")
	}
}

func TestAnalyticsRecomputedOnFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseQuiz(singleSelect("q1", 2), singleSelect("q2", 2)))

	for i, answers := range [][2]string{{"q1-right", "q2-right"}, {"q1-right", "q2-wrong"}, {"q1-wrong", "q2-wrong"}} {
		learner := fmt.Sprintf("learner-%d", i)
		started, err := f.svc.StartAttempt(ctx, "quiz-1", learner)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		_, _ = f.svc.SubmitResponse(ctx, started.AttemptID, "q1", pick(answers[0]))
		_, _ = f.svc.SubmitResponse(ctx, started.AttemptID, "q2", pick(answers[1]))
		f.advance(time.Minute)
		if _, err := f.svc.CompleteAttempt(ctx, started.AttemptID, domain.TriggerLearner, app.AudienceLearner); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	_, _ = f.svc.StartAttempt(ctx, "quiz-1", "learner-open")

	snap, err := f.svc.GetAnalytics(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if snap.TotalAttempts != 3 || snap.CompletedAttempts != 3 {
		t.Fatalf("unexpected counts %+v", snap)
	}
	if !snap.AverageScore.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected average 50, got %s", snap.AverageScore)
	}
	if !snap.PassRate.Equal(decimal.RequireFromString("66.67")) {
		t.Fatalf("expected pass rate 66.67, got %s", snap.PassRate)
	}
	q1 := snap.Questions["q1"]
	if q1.Responses != 3 || q1.Correct != 2 {
		t.Fatalf("unexpected q1 stats %+v", q1)
	}

	fresh, err := f.svc.RecomputeAnalytics(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if fresh.TotalAttempts != 4 || fresh.CompletedAttempts != 3 {
		t.Fatalf("recompute should count the open attempt, got %+v", fresh)
	}
}

func TestPublishQuizFreezesAfterAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	published, err := f.svc.PublishQuiz(ctx, baseQuiz(singleSelect("q1", 1)))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Version != 1 {
		t.Fatalf("expected version 1, got %d", published.Version)
	}
	republished, err := f.svc.PublishQuiz(ctx, baseQuiz(singleSelect("q1", 2)))
	if err != nil || republished.Version != 2 {
		t.Fatalf("republish before attempts: %v %d", err, republished.Version)
	}

	if _, err := f.svc.StartAttempt(ctx, "quiz-1", "learner-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.PublishQuiz(ctx, baseQuiz(singleSelect("q1", 3))); !errors.Is(err, domain.ErrQuizFrozen) {
		t.Fatalf("expected frozen, got %v", err)
	}
	if _, err := f.svc.PublishQuiz(ctx, domain.QuizDefinition{ID: "bad"}); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz, got %v", err)
	}
}

func TestListAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, baseQuiz(singleSelect("q1", 1)))

	a, _ := f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	_, _ = f.svc.CompleteAttempt(ctx, a.AttemptID, domain.TriggerLearner, app.AudienceLearner)
	f.advance(time.Minute)
	_, _ = f.svc.StartAttempt(ctx, "quiz-1", "learner-1")
	_, _ = f.svc.StartAttempt(ctx, "quiz-1", "learner-2")

	mine, err := f.svc.ListAttempts(ctx, app.AttemptFilter{LearnerID: "learner-1"}, app.AudienceLearner)
	if err != nil || len(mine) != 2 {
		t.Fatalf("expected 2 own attempts, got %d (%v)", len(mine), err)
	}
	if mine[0].Number != 2 {
		t.Fatalf("expected newest first")
	}
	open, _ := f.svc.ListAttempts(ctx, app.AttemptFilter{QuizID: "quiz-1", State: domain.AttemptInProgress}, app.AudienceInstructor)
	if len(open) != 2 {
		t.Fatalf("expected 2 open attempts, got %d", len(open))
	}
	if _, err := f.svc.ListAttempts(ctx, app.AttemptFilter{State: "paused"}, app.AudienceInstructor); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
