package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuizType mirrors how a quiz is used inside a course.
type QuizType string

const (
	QuizTypePractice QuizType = "practice"
	QuizTypeGraded   QuizType = "graded"
	QuizTypeFinal    QuizType = "final"
	QuizTypeSurvey   QuizType = "survey"
)

// AnswerOption is a selectable answer. Matching options carry the key they pair with,
// ordering options carry their position in the correct sequence.
type AnswerOption struct {
	ID       string `json:"id" yaml:"id"`
	Text     string `json:"text" yaml:"text"`
	Correct  bool   `json:"correct,omitempty" yaml:"correct"`
	MatchKey string `json:"matchKey,omitempty" yaml:"match_key"`
	Position int    `json:"position,omitempty" yaml:"position"`
}

// QuestionDefinition is one authored question.
type QuestionDefinition struct {
	ID              string         `json:"id" yaml:"id"`
	Kind            QuestionKind   `json:"kind" yaml:"kind"`
	Prompt          string         `json:"prompt" yaml:"prompt"`
	Explanation     string         `json:"explanation,omitempty" yaml:"explanation"`
	Points          int            `json:"points" yaml:"points"`
	Required        bool           `json:"required" yaml:"required"`
	Options         []AnswerOption `json:"options,omitempty" yaml:"options"`
	AcceptedAnswers []string       `json:"acceptedAnswers,omitempty" yaml:"accepted_answers"`
}

// Option looks up an option by ID.
func (q QuestionDefinition) Option(id string) (AnswerOption, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return AnswerOption{}, false
}

// QuizDefinition is the authored quiz configuration. It is frozen once an attempt references it.
type QuizDefinition struct {
	ID                   string               `json:"id" yaml:"id"`
	Version              int                  `json:"version" yaml:"version"`
	Title                string               `json:"title" yaml:"title"`
	Description          string               `json:"description,omitempty" yaml:"description"`
	Instructions         string               `json:"instructions,omitempty" yaml:"instructions"`
	Type                 QuizType             `json:"type,omitempty" yaml:"type"`
	Questions            []QuestionDefinition `json:"questions" yaml:"questions"`
	TimeLimitSeconds     *int                 `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds"`
	MaxAttempts          int                  `json:"maxAttempts" yaml:"max_attempts"` // 0 means unlimited
	PassingScore         int                  `json:"passingScore" yaml:"passing_score"`
	AvailableFrom        *time.Time           `json:"availableFrom,omitempty" yaml:"available_from"`
	AvailableUntil       *time.Time           `json:"availableUntil,omitempty" yaml:"available_until"`
	Active               bool                 `json:"active" yaml:"active"`
	ShuffleQuestions     bool                 `json:"shuffleQuestions,omitempty" yaml:"shuffle_questions"`
	ShuffleOptions       bool                 `json:"shuffleOptions,omitempty" yaml:"shuffle_options"`
	ShowCorrectAnswers   bool                 `json:"showCorrectAnswers,omitempty" yaml:"show_correct_answers"`
	ShowScoreImmediately bool                 `json:"showScoreImmediately,omitempty" yaml:"show_score_immediately"`
	AllowReview          bool                 `json:"allowReview,omitempty" yaml:"allow_review"`
}

// Question looks up a question by ID.
func (q QuizDefinition) Question(id string) (QuestionDefinition, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return QuestionDefinition{}, false
}

// MaxPoints is the total of points over required questions.
func (q QuizDefinition) MaxPoints() int {
	total := 0
	for _, question := range q.Questions {
		if question.Required {
			total += question.Points
		}
	}
	return total
}

// Available reports whether now falls inside the availability window.
func (q QuizDefinition) Available(now time.Time) bool {
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableUntil != nil && now.After(*q.AvailableUntil) {
		return false
	}
	return true
}

// AttemptState is the lifecycle state of an attempt.
type AttemptState string

const (
	AttemptInProgress  AttemptState = "in_progress"
	AttemptCompleted   AttemptState = "completed"
	AttemptTimeExpired AttemptState = "time_expired"
)

// Terminal reports whether no further responses may be written.
func (s AttemptState) Terminal() bool {
	return s == AttemptCompleted || s == AttemptTimeExpired
}

// CompletionTrigger records who ended an attempt.
type CompletionTrigger string

const (
	TriggerLearner  CompletionTrigger = "learner"
	TriggerDeadline CompletionTrigger = "deadline"
)

// AttemptSettings is the copy of quiz rules taken when the attempt starts.
type AttemptSettings struct {
	QuizVersion          int  `json:"quizVersion"`
	TimeLimitSeconds     *int `json:"timeLimitSeconds,omitempty"`
	MaxAttempts          int  `json:"maxAttempts"`
	PassingScore         int  `json:"passingScore"`
	ShowCorrectAnswers   bool `json:"showCorrectAnswers"`
	ShowScoreImmediately bool `json:"showScoreImmediately"`
	AllowReview          bool `json:"allowReview"`
}

// Score is the aggregate written onto a terminal attempt.
type Score struct {
	Points        int             `json:"points"`
	MaxPoints     int             `json:"maxPoints"`
	Percentage    decimal.Decimal `json:"percentage"`
	Passed        bool            `json:"passed"`
	PendingReview int             `json:"pendingReview"`
}

// Attempt is one learner's session on a quiz.
type Attempt struct {
	ID               string              `json:"id"`
	QuizID           string              `json:"quizId"`
	LearnerID        string              `json:"learnerId"`
	Number           int                 `json:"attemptNumber"`
	State            AttemptState        `json:"state"`
	Trigger          CompletionTrigger   `json:"trigger,omitempty"`
	Settings         AttemptSettings     `json:"settings"`
	QuestionOrder    []string            `json:"questionOrder"`
	OptionOrder      map[string][]string `json:"optionOrder,omitempty"`
	StartedAt        time.Time           `json:"startedAt"`
	ExpiresAt        *time.Time          `json:"expiresAt,omitempty"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty"`
	TimeSpentSeconds int                 `json:"timeSpentSeconds"`
	ScorePoints      int                 `json:"scorePoints"`
	MaxPoints        int                 `json:"maxPoints"`
	ScorePercentage  decimal.Decimal     `json:"scorePercentage"`
	Passed           *bool               `json:"passed"`
	PendingReview    int                 `json:"pendingReview"`
	Regrades         int                 `json:"regrades"`
}

// ApplyScore writes a score onto the attempt.
func (a *Attempt) ApplyScore(s Score) {
	passed := s.Passed
	a.ScorePoints = s.Points
	a.MaxPoints = s.MaxPoints
	a.ScorePercentage = s.Percentage
	a.Passed = &passed
	a.PendingReview = s.PendingReview
}

// Close moves an in_progress attempt into a terminal state.
func (a *Attempt) Close(state AttemptState, trigger CompletionTrigger, at time.Time) {
	at = at.UTC()
	a.State = state
	a.Trigger = trigger
	a.CompletedAt = &at
	spent := int(at.Sub(a.StartedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}
	a.TimeSpentSeconds = spent
}

// Payload is a submitted answer. Only the fields relevant to the question kind may be set.
type Payload struct {
	OptionIDs []string          `json:"optionIds,omitempty"`
	Text      string            `json:"text,omitempty"`
	Pairs     map[string]string `json:"pairs,omitempty"`
	Order     []string          `json:"order,omitempty"`
}

// ManualGrade is an instructor's verdict on an essay response.
type ManualGrade struct {
	Points   int       `json:"points"`
	Feedback string    `json:"feedback,omitempty"`
	GradedBy string    `json:"gradedBy,omitempty"`
	GradedAt time.Time `json:"gradedAt"`
}

// Response is the answer to one question within one attempt.
type Response struct {
	ID            string       `json:"id"`
	AttemptID     string       `json:"attemptId"`
	QuestionID    string       `json:"questionId"`
	Kind          QuestionKind `json:"kind"`
	Payload       Payload      `json:"payload"`
	IsCorrect     *bool        `json:"isCorrect"`
	AwardedPoints int          `json:"awardedPoints"`
	Grade         *ManualGrade `json:"grade,omitempty"`
	SubmittedAt   time.Time    `json:"submittedAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Evaluated reports whether the response carries a verdict.
func (r Response) Evaluated() bool {
	return r.IsCorrect != nil
}

// QuestionStat is per-question correctness over finalized attempts.
type QuestionStat struct {
	Responses   int             `json:"responses"`
	Correct     int             `json:"correct"`
	CorrectRate decimal.Decimal `json:"correctRate"`
}

// AnalyticsSnapshot is the quiz-level aggregate, recomputed in full after each finalization.
type AnalyticsSnapshot struct {
	QuizID                   string                  `json:"quizId"`
	TotalAttempts            int                     `json:"totalAttempts"`
	CompletedAttempts        int                     `json:"completedAttempts"`
	AverageScore             decimal.Decimal         `json:"averageScore"`
	PassRate                 decimal.Decimal         `json:"passRate"`
	AverageCompletionSeconds int                     `json:"averageCompletionSeconds"`
	Questions                map[string]QuestionStat `json:"questions"`
	CalculatedAt             time.Time               `json:"calculatedAt"`
}

// EventType names notifications emitted to collaborators.
type EventType string

const (
	EventAttemptFinalized EventType = "attempt.finalized"
	EventAttemptRegraded  EventType = "attempt.regraded"
)

// Event is handed to the notifier after finalization or re-aggregation.
type Event struct {
	Type       EventType       `json:"type"`
	AttemptID  string          `json:"attemptId"`
	QuizID     string          `json:"quizId"`
	LearnerID  string          `json:"learnerId"`
	State      AttemptState    `json:"state"`
	Points     int             `json:"points"`
	Percentage decimal.Decimal `json:"percentage"`
	Passed     bool            `json:"passed"`
	OccurredAt time.Time       `json:"occurredAt"`
}
