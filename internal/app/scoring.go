package app

import (
	"time"

	"assessment-engine/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// scoreFor returns the aggregation used when an attempt is finalized or re-graded.
func scoreFor(settings domain.AttemptSettings, maxPoints int) ScoreFunc {
	return func(responses []domain.Response) domain.Score {
		return aggregate(responses, maxPoints, settings.PassingScore)
	}
}

// aggregate sums awarded points over evaluated responses. Pending essays contribute nothing
// but are counted so callers can tell a provisional score from a final one.
func aggregate(responses []domain.Response, maxPoints, passingScore int) domain.Score {
	score := domain.Score{MaxPoints: maxPoints}
	for _, r := range responses {
		if !r.Evaluated() {
			if r.Kind == domain.KindEssay {
				score.PendingReview++
			}
			continue
		}
		score.Points += r.AwardedPoints
	}
	score.Percentage = percentage(score.Points, maxPoints)
	score.Passed = score.Percentage.GreaterThanOrEqual(decimal.NewFromInt(int64(passingScore)))
	return score
}

// percentage is points/max*100 rounded half-up to two places. Optional questions can push
// points past max, so the result is capped.
func percentage(points, max int) decimal.Decimal {
	if max <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(points)).Mul(hundred).DivRound(decimal.NewFromInt(int64(max)), 2)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

func ratio(part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).DivRound(decimal.NewFromInt(int64(whole)), 2)
}

// buildSnapshot recomputes the quiz aggregate from scratch.
func buildSnapshot(quizID string, attempts []domain.Attempt, responses []domain.Response, at time.Time) domain.AnalyticsSnapshot {
	snap := domain.AnalyticsSnapshot{
		QuizID:        quizID,
		TotalAttempts: len(attempts),
		AverageScore:  decimal.Zero,
		PassRate:      decimal.Zero,
		Questions:     map[string]domain.QuestionStat{},
		CalculatedAt:  at,
	}

	sum := decimal.Zero
	passed, seconds := 0, 0
	for _, a := range attempts {
		if !a.State.Terminal() {
			continue
		}
		snap.CompletedAttempts++
		sum = sum.Add(a.ScorePercentage)
		seconds += a.TimeSpentSeconds
		if a.Passed != nil && *a.Passed {
			passed++
		}
	}
	if n := snap.CompletedAttempts; n > 0 {
		snap.AverageScore = sum.DivRound(decimal.NewFromInt(int64(n)), 2)
		snap.PassRate = ratio(passed, n)
		snap.AverageCompletionSeconds = seconds / n
	}

	for _, r := range responses {
		stat := snap.Questions[r.QuestionID]
		stat.Responses++
		if r.IsCorrect != nil && *r.IsCorrect {
			stat.Correct++
		}
		snap.Questions[r.QuestionID] = stat
	}
	for id, stat := range snap.Questions {
		stat.CorrectRate = ratio(stat.Correct, stat.Responses)
		snap.Questions[id] = stat
	}
	return snap
}
