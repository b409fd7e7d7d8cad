package app

import (
	"sort"
	"time"

	"assessment-engine/internal/domain"
	"assessment-engine/internal/grading"
	"github.com/shopspring/decimal"
)

// Audience selects how much of an attempt a caller may see.
type Audience int

const (
	AudienceLearner Audience = iota
	AudienceInstructor
)

// PresentedOption is an option with its correctness stripped.
type PresentedOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PresentedQuestion is what a learner sees while taking the quiz.
type PresentedQuestion struct {
	ID       string              `json:"id"`
	Kind     domain.QuestionKind `json:"kind"`
	Prompt   string              `json:"prompt"`
	Points   int                 `json:"points"`
	Required bool                `json:"required"`
	Options  []PresentedOption   `json:"options,omitempty"`
	// Targets lists the keys matching options pair with.
	Targets []string `json:"targets,omitempty"`
}

// QuestionResult is the per-question review row.
type QuestionResult struct {
	QuestionID    string          `json:"questionId"`
	Answered      bool            `json:"answered"`
	IsCorrect     *bool           `json:"isCorrect"`
	AwardedPoints int             `json:"awardedPoints"`
	Points        int             `json:"points"`
	Pending       bool            `json:"pending,omitempty"`
	Feedback      string          `json:"feedback,omitempty"`
	CorrectAnswer *domain.Payload `json:"correctAnswer,omitempty"`
	Explanation   string          `json:"explanation,omitempty"`
}

// AttemptResult is returned by CompleteAttempt and ManualGradeEssay.
type AttemptResult struct {
	AttemptID        string              `json:"attemptId"`
	State            domain.AttemptState `json:"state"`
	Trigger          string              `json:"trigger,omitempty"`
	ScorePoints      *int                `json:"scorePoints,omitempty"`
	MaxPoints        int                 `json:"maxPoints"`
	ScorePercentage  *decimal.Decimal    `json:"scorePercentage,omitempty"`
	Passed           *bool               `json:"passed"`
	PendingReview    int                 `json:"pendingReview"`
	TimeSpentSeconds int                 `json:"timeSpentSeconds"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty"`
	Questions        []QuestionResult    `json:"perQuestionResult,omitempty"`
}

// StartedAttempt is returned by StartAttempt.
type StartedAttempt struct {
	AttemptID        string              `json:"attemptId"`
	AttemptNumber    int                 `json:"attemptNumber"`
	StartedAt        time.Time           `json:"startedAt"`
	ExpiresAt        *time.Time          `json:"expiresAt,omitempty"`
	TimeLimitSeconds *int                `json:"timeLimitSeconds"`
	MaxAttempts      int                 `json:"maxAttempts"`
	Title            string              `json:"title,omitempty"`
	Instructions     string              `json:"instructions,omitempty"`
	Questions        []PresentedQuestion `json:"questions"`
}

// SubmissionResult is returned by SubmitResponse. Attempt is set when the write hit the
// deadline and the attempt was closed as time_expired.
type SubmissionResult struct {
	Response domain.Response `json:"response"`
	Attempt  *AttemptResult  `json:"attempt,omitempty"`
}

// AttemptView is the full attempt state used to resume after a reload.
type AttemptView struct {
	Attempt          domain.Attempt      `json:"attempt"`
	RemainingSeconds *int                `json:"remainingSeconds"`
	Questions        []PresentedQuestion `json:"questions"`
	Responses        []domain.Response   `json:"responses"`
	Result           *AttemptResult      `json:"result,omitempty"`
}

func presentQuestions(quiz domain.QuizDefinition, a domain.Attempt) []PresentedQuestion {
	out := make([]PresentedQuestion, 0, len(a.QuestionOrder))
	for _, id := range a.QuestionOrder {
		q, ok := quiz.Question(id)
		if !ok {
			continue
		}
		pq := PresentedQuestion{
			ID:       q.ID,
			Kind:     q.Kind,
			Prompt:   q.Prompt,
			Points:   q.Points,
			Required: q.Required,
		}
		order := a.OptionOrder[q.ID]
		if len(order) == 0 {
			for _, opt := range q.Options {
				order = append(order, opt.ID)
			}
		}
		for _, optID := range order {
			opt, ok := q.Option(optID)
			if !ok {
				continue
			}
			pq.Options = append(pq.Options, PresentedOption{ID: opt.ID, Text: opt.Text})
		}
		if q.Kind == domain.KindMatching {
			pq.Targets = matchTargets(q)
		}
		out = append(out, pq)
	}
	return out
}

func matchTargets(q domain.QuestionDefinition) []string {
	targets := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		targets = append(targets, opt.MatchKey)
	}
	sort.Strings(targets)
	return targets
}

// resultFor renders a terminal attempt for the audience. Learners only see the score when the
// quiz shows it immediately, and per-question rows only when review is allowed.
func resultFor(quiz domain.QuizDefinition, a domain.Attempt, responses []domain.Response, audience Audience) *AttemptResult {
	res := &AttemptResult{
		AttemptID:        a.ID,
		State:            a.State,
		Trigger:          string(a.Trigger),
		MaxPoints:        a.MaxPoints,
		PendingReview:    a.PendingReview,
		TimeSpentSeconds: a.TimeSpentSeconds,
		CompletedAt:      a.CompletedAt,
	}
	instructor := audience == AudienceInstructor
	if instructor || a.Settings.ShowScoreImmediately {
		points, pct := a.ScorePoints, a.ScorePercentage
		res.ScorePoints = &points
		res.ScorePercentage = &pct
		res.Passed = a.Passed
	}
	if !instructor && !a.Settings.AllowReview {
		return res
	}

	byQuestion := make(map[string]domain.Response, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}
	for _, id := range a.QuestionOrder {
		q, ok := quiz.Question(id)
		if !ok {
			continue
		}
		row := QuestionResult{QuestionID: id, Points: q.Points}
		if r, ok := byQuestion[id]; ok {
			row.Answered = true
			row.IsCorrect = r.IsCorrect
			row.AwardedPoints = r.AwardedPoints
			row.Pending = !r.Evaluated()
			if r.Grade != nil {
				row.Feedback = r.Grade.Feedback
			}
		}
		if instructor || a.Settings.ShowCorrectAnswers {
			if q.Kind != domain.KindEssay {
				key := grading.AnswerKey(q)
				row.CorrectAnswer = &key
			}
			row.Explanation = q.Explanation
		}
		res.Questions = append(res.Questions, row)
	}
	return res
}

// redactResponses hides verdicts from learners who may not see their score yet.
func redactResponses(a domain.Attempt, responses []domain.Response, audience Audience) []domain.Response {
	if audience == AudienceInstructor || a.Settings.ShowScoreImmediately {
		return responses
	}
	out := make([]domain.Response, len(responses))
	for i, r := range responses {
		r.IsCorrect = nil
		r.AwardedPoints = 0
		r.Grade = nil
		out[i] = r
	}
	return out
}
