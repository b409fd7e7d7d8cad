package app

import (
	"context"
	"time"

	"assessment-engine/internal/domain"
	"assessment-engine/internal/grading"
	"assessment-engine/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
	Invalidate(ctx context.Context, quizID string) error
}

// QuizWriter persists authored quizzes.
type QuizWriter interface {
	SaveQuiz(ctx context.Context, quiz domain.QuizDefinition) error
}

// ScoreFunc aggregates an attempt's responses into a score. It must be pure.
type ScoreFunc func(responses []domain.Response) domain.Score

// AttemptFilter narrows ListAttempts. Empty fields match everything.
type AttemptFilter struct {
	QuizID    string
	LearnerID string
	State     domain.AttemptState
	Limit     int
}

// AttemptRepository stores attempts and their responses.
//
// Implementations own the per-attempt mutual exclusion: Finalize and ApplyManualGrade must read
// responses and write the score atomically, and UpsertResponse must refuse writes once the
// attempt is terminal.
type AttemptRepository interface {
	// CreateAttempt fails with domain.ErrAttemptInProgress if the learner already has an open attempt
	// on the quiz, or if the attempt number is taken.
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	FindInProgress(ctx context.Context, quizID, learnerID string) (domain.Attempt, bool, error)
	// CountAttempts counts attempts of any state; an empty learnerID counts the whole quiz.
	CountAttempts(ctx context.Context, quizID, learnerID string) (int, error)
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]domain.Attempt, error)

	// UpsertResponse inserts or overwrites the response keyed by (attempt, question).
	UpsertResponse(ctx context.Context, response domain.Response) (domain.Response, error)
	GetResponse(ctx context.Context, responseID string) (domain.Response, error)
	ListResponses(ctx context.Context, attemptID string) ([]domain.Response, error)
	// ListQuizResponses returns responses belonging to terminal attempts of the quiz.
	ListQuizResponses(ctx context.Context, quizID string) ([]domain.Response, error)

	// Finalize moves an in_progress attempt to state with the score computed by score.
	// An attempt that is already terminal is returned unchanged with finalized=false.
	Finalize(ctx context.Context, attemptID string, state domain.AttemptState, trigger domain.CompletionTrigger, at time.Time, score ScoreFunc) (attempt domain.Attempt, finalized bool, err error)
	// ApplyManualGrade records an essay grade on a terminal attempt and re-aggregates its score.
	ApplyManualGrade(ctx context.Context, responseID string, grade domain.ManualGrade, correct bool, score ScoreFunc) (domain.Attempt, domain.Response, error)
}

// AnalyticsRepository stores quiz-level snapshots.
type AnalyticsRepository interface {
	SaveSnapshot(ctx context.Context, snapshot domain.AnalyticsSnapshot) error
	GetSnapshot(ctx context.Context, quizID string) (domain.AnalyticsSnapshot, bool, error)
}

// Notifier delivers events to the notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// EnrollmentChecker answers whether a learner may take a quiz.
type EnrollmentChecker interface {
	CanAttempt(ctx context.Context, quizID, learnerID string) (bool, error)
}

type allowAll struct{}

func (allowAll) CanAttempt(context.Context, string, string) (bool, error) { return true, nil }

// AssessmentService contains the attempt, response and scoring use cases.
type AssessmentService struct {
	quizzes    QuizRepository
	writer     QuizWriter
	attempts   AttemptRepository
	analytics  AnalyticsRepository
	notifier   Notifier
	enrollment EnrollmentChecker

	governor TimeGovernor
	limits   grading.Limits
	now      func() time.Time
	newID    func() string
	dispatch func(func())
	log      *zap.Logger
	metrics  *metrics.Metrics

	finalizing singleflight.Group
}

// Option customises an AssessmentService.
type Option func(*AssessmentService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AssessmentService) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *AssessmentService) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AssessmentService) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *AssessmentService) { s.notifier = n }
}

func WithEnrollment(e EnrollmentChecker) Option {
	return func(s *AssessmentService) { s.enrollment = e }
}

func WithTextLimits(l grading.Limits) Option {
	return func(s *AssessmentService) { s.limits = l }
}

// WithIDGenerator replaces uuid generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *AssessmentService) { s.newID = gen }
}

// WithDispatcher controls how fire-and-forget notifications run.
func WithDispatcher(dispatch func(func())) Option {
	return func(s *AssessmentService) { s.dispatch = dispatch }
}

func NewAssessmentService(quizzes QuizRepository, writer QuizWriter, attempts AttemptRepository, analytics AnalyticsRepository, opts ...Option) *AssessmentService {
	s := &AssessmentService{
		quizzes:    quizzes,
		writer:     writer,
		attempts:   attempts,
		analytics:  analytics,
		enrollment: allowAll{},
		limits:     grading.DefaultLimits,
		now:        time.Now,
		newID:      uuid.NewString,
		dispatch:   func(f func()) { go f() },
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AssessmentService) clock() time.Time {
	return s.now().UTC()
}

// notify hands the event to the notifier without waiting for it.
func (s *AssessmentService) notify(event domain.Event) {
	if s.notifier == nil {
		return
	}
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.log.Warn("notification failed",
				zap.String("event", string(event.Type)),
				zap.String("attempt_id", event.AttemptID),
				zap.Error(err))
		}
	})
}

func eventFor(typ domain.EventType, a domain.Attempt, at time.Time) domain.Event {
	passed := a.Passed != nil && *a.Passed
	return domain.Event{
		Type:       typ,
		AttemptID:  a.ID,
		QuizID:     a.QuizID,
		LearnerID:  a.LearnerID,
		State:      a.State,
		Points:     a.ScorePoints,
		Percentage: a.ScorePercentage,
		Passed:     passed,
		OccurredAt: at,
	}
}
