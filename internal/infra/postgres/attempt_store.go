package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID               string                 `bun:"id,pk"`
	QuizID           string                 `bun:"quiz_id,notnull"`
	LearnerID        string                 `bun:"learner_id,notnull"`
	Number           int                    `bun:"attempt_number,notnull"`
	State            string                 `bun:"state,notnull"`
	Trigger          string                 `bun:"completion_trigger,notnull"`
	Settings         domain.AttemptSettings `bun:"settings,type:jsonb"`
	QuestionOrder    []string               `bun:"question_order,type:jsonb"`
	OptionOrder      map[string][]string    `bun:"option_order,type:jsonb"`
	StartedAt        time.Time              `bun:"started_at,notnull"`
	ExpiresAt        *time.Time             `bun:"expires_at"`
	CompletedAt      *time.Time             `bun:"completed_at"`
	TimeSpentSeconds int                    `bun:"time_spent_seconds,notnull"`
	ScorePoints      int                    `bun:"score_points,notnull"`
	MaxPoints        int                    `bun:"max_points,notnull"`
	ScorePercentage  decimal.Decimal        `bun:"score_percentage,type:numeric"`
	Passed           *bool                  `bun:"passed"`
	PendingReview    int                    `bun:"pending_review,notnull"`
	Regrades         int                    `bun:"regrades,notnull"`
}

func attemptRowFrom(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:               a.ID,
		QuizID:           a.QuizID,
		LearnerID:        a.LearnerID,
		Number:           a.Number,
		State:            string(a.State),
		Trigger:          string(a.Trigger),
		Settings:         a.Settings,
		QuestionOrder:    a.QuestionOrder,
		OptionOrder:      a.OptionOrder,
		StartedAt:        a.StartedAt,
		ExpiresAt:        a.ExpiresAt,
		CompletedAt:      a.CompletedAt,
		TimeSpentSeconds: a.TimeSpentSeconds,
		ScorePoints:      a.ScorePoints,
		MaxPoints:        a.MaxPoints,
		ScorePercentage:  a.ScorePercentage,
		Passed:           a.Passed,
		PendingReview:    a.PendingReview,
		Regrades:         a.Regrades,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:               r.ID,
		QuizID:           r.QuizID,
		LearnerID:        r.LearnerID,
		Number:           r.Number,
		State:            domain.AttemptState(r.State),
		Trigger:          domain.CompletionTrigger(r.Trigger),
		Settings:         r.Settings,
		QuestionOrder:    r.QuestionOrder,
		OptionOrder:      r.OptionOrder,
		StartedAt:        r.StartedAt.UTC(),
		ExpiresAt:        utcPtr(r.ExpiresAt),
		CompletedAt:      utcPtr(r.CompletedAt),
		TimeSpentSeconds: r.TimeSpentSeconds,
		ScorePoints:      r.ScorePoints,
		MaxPoints:        r.MaxPoints,
		ScorePercentage:  r.ScorePercentage,
		Passed:           r.Passed,
		PendingReview:    r.PendingReview,
		Regrades:         r.Regrades,
	}
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses,alias:r"`

	ID            string              `bun:"id,pk"`
	AttemptID     string              `bun:"attempt_id,notnull"`
	QuestionID    string              `bun:"question_id,notnull"`
	Kind          string              `bun:"kind,notnull"`
	Payload       domain.Payload      `bun:"payload,type:jsonb"`
	IsCorrect     *bool               `bun:"is_correct"`
	AwardedPoints int                 `bun:"awarded_points,notnull"`
	Grade         *domain.ManualGrade `bun:"grade,type:jsonb"`
	SubmittedAt   time.Time           `bun:"submitted_at,notnull"`
	UpdatedAt     time.Time           `bun:"updated_at,notnull"`
}

func responseRowFrom(r domain.Response) responseRow {
	return responseRow{
		ID:            r.ID,
		AttemptID:     r.AttemptID,
		QuestionID:    r.QuestionID,
		Kind:          string(r.Kind),
		Payload:       r.Payload,
		IsCorrect:     r.IsCorrect,
		AwardedPoints: r.AwardedPoints,
		Grade:         r.Grade,
		SubmittedAt:   r.SubmittedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r responseRow) toDomain() domain.Response {
	return domain.Response{
		ID:            r.ID,
		AttemptID:     r.AttemptID,
		QuestionID:    r.QuestionID,
		Kind:          domain.QuestionKind(r.Kind),
		Payload:       r.Payload,
		IsCorrect:     r.IsCorrect,
		AwardedPoints: r.AwardedPoints,
		Grade:         r.Grade,
		SubmittedAt:   r.SubmittedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var terminalStates = []string{string(domain.AttemptCompleted), string(domain.AttemptTimeExpired)}

// AttemptStore persists attempts and responses with bun. Finalize and ApplyManualGrade lock
// the attempt row. Response writes never lock; they are conditional on the attempt being open.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := attemptRowFrom(attempt)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrAttemptInProgress
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, s.db, attemptID, "")
}

func getAttempt(ctx context.Context, db bun.IDB, attemptID, lock string) (domain.Attempt, error) {
	var row attemptRow
	q := db.NewSelect().Model(&row).Where("id = ?", attemptID)
	if lock != "" {
		q = q.For(lock)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("select attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) FindInProgress(ctx context.Context, quizID, learnerID string) (domain.Attempt, bool, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).
		Where("quiz_id = ?", quizID).
		Where("learner_id = ?", learnerID).
		Where("state = ?", string(domain.AttemptInProgress)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("select open attempt: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *AttemptStore) CountAttempts(ctx context.Context, quizID, learnerID string) (int, error) {
	q := s.db.NewSelect().Model((*attemptRow)(nil)).Where("quiz_id = ?", quizID)
	if learnerID != "" {
		q = q.Where("learner_id = ?", learnerID)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, filter app.AttemptFilter) ([]domain.Attempt, error) {
	var rows []attemptRow
	q := s.db.NewSelect().Model(&rows).Order("started_at DESC", "attempt_number DESC")
	if filter.QuizID != "" {
		q = q.Where("quiz_id = ?", filter.QuizID)
	}
	if filter.LearnerID != "" {
		q = q.Where("learner_id = ?", filter.LearnerID)
	}
	if filter.State != "" {
		q = q.Where("state = ?", string(filter.State))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.Attempt, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// upsertResponseSQL writes a response only while its attempt is in_progress. The state check and
// the write are one statement, so no row lock is taken on the attempt.
const upsertResponseSQL = `
INSERT INTO responses (id, attempt_id, question_id, kind, payload, is_correct, awarded_points, grade, submitted_at, updated_at)
SELECT ?, ?, ?, ?, ?::jsonb, ?, ?, NULL, ?, ?
WHERE EXISTS (SELECT 1 FROM attempts WHERE id = ? AND state = ?)
ON CONFLICT (attempt_id, question_id) DO UPDATE SET
	kind = EXCLUDED.kind,
	payload = EXCLUDED.payload,
	is_correct = EXCLUDED.is_correct,
	awarded_points = EXCLUDED.awarded_points,
	grade = NULL,
	updated_at = EXCLUDED.updated_at
RETURNING *`

func (s *AttemptStore) UpsertResponse(ctx context.Context, r domain.Response) (domain.Response, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return domain.Response{}, fmt.Errorf("encode payload: %w", err)
	}
	var row responseRow
	err = s.db.NewRaw(upsertResponseSQL,
		r.ID, r.AttemptID, r.QuestionID, string(r.Kind), string(payload), r.IsCorrect, r.AwardedPoints,
		r.SubmittedAt, r.UpdatedAt,
		r.AttemptID, string(domain.AttemptInProgress),
	).Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		// nothing written: the attempt is missing or already closed
		if _, err := s.GetAttempt(ctx, r.AttemptID); err != nil {
			return domain.Response{}, err
		}
		return domain.Response{}, domain.ErrAttemptTerminal
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("upsert response: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) GetResponse(ctx context.Context, responseID string) (domain.Response, error) {
	return getResponse(ctx, s.db, responseID)
}

func getResponse(ctx context.Context, db bun.IDB, responseID string) (domain.Response, error) {
	var row responseRow
	err := db.NewSelect().Model(&row).Where("id = ?", responseID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("select response: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) ListResponses(ctx context.Context, attemptID string) ([]domain.Response, error) {
	return listResponses(ctx, s.db, attemptID)
}

func listResponses(ctx context.Context, db bun.IDB, attemptID string) ([]domain.Response, error) {
	var rows []responseRow
	err := db.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("submitted_at ASC", "question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return toResponses(rows), nil
}

func (s *AttemptStore) ListQuizResponses(ctx context.Context, quizID string) ([]domain.Response, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Join("JOIN attempts AS a ON a.id = r.attempt_id").
		Where("a.quiz_id = ?", quizID).
		Where("a.state IN (?)", bun.In(terminalStates)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quiz responses: %w", err)
	}
	return toResponses(rows), nil
}

func toResponses(rows []responseRow) []domain.Response {
	out := make([]domain.Response, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out
}

func (s *AttemptStore) Finalize(ctx context.Context, attemptID string, state domain.AttemptState, trigger domain.CompletionTrigger, at time.Time, score app.ScoreFunc) (domain.Attempt, bool, error) {
	if !state.Terminal() {
		return domain.Attempt{}, false, fmt.Errorf("finalize into %q", state)
	}
	var (
		result    domain.Attempt
		finalized bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		attempt, err := getAttempt(ctx, tx, attemptID, "UPDATE")
		if err != nil {
			return err
		}
		if attempt.State.Terminal() {
			result = attempt
			return nil
		}
		responses, err := listResponses(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		attempt.Close(state, trigger, at)
		attempt.ApplyScore(score(responses))
		row := attemptRowFrom(attempt)
		if _, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		result, finalized = attempt, true
		return nil
	})
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return result, finalized, nil
}

func (s *AttemptStore) ApplyManualGrade(ctx context.Context, responseID string, grade domain.ManualGrade, correct bool, score app.ScoreFunc) (domain.Attempt, domain.Response, error) {
	var (
		attempt  domain.Attempt
		response domain.Response
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if response, err = getResponse(ctx, tx, responseID); err != nil {
			return err
		}
		if attempt, err = getAttempt(ctx, tx, response.AttemptID, "UPDATE"); err != nil {
			return err
		}
		if !attempt.State.Terminal() {
			return domain.ErrAttemptNotFinalized
		}

		response.Grade = &grade
		response.IsCorrect = &correct
		response.AwardedPoints = grade.Points
		response.UpdatedAt = grade.GradedAt
		row := responseRowFrom(response)
		if _, err := tx.NewUpdate().Model(&row).
			Column("grade", "is_correct", "awarded_points", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update response: %w", err)
		}

		responses, err := listResponses(ctx, tx, attempt.ID)
		if err != nil {
			return err
		}
		attempt.ApplyScore(score(responses))
		attempt.Regrades++
		arow := attemptRowFrom(attempt)
		if _, err := tx.NewUpdate().Model(&arow).
			Column("score_points", "score_percentage", "passed", "pending_review", "regrades").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, domain.Response{}, err
	}
	return attempt, response, nil
}

type analyticsRow struct {
	bun.BaseModel `bun:"table:quiz_analytics,alias:qa"`

	QuizID       string                   `bun:"quiz_id,pk"`
	Snapshot     domain.AnalyticsSnapshot `bun:"snapshot,type:jsonb"`
	CalculatedAt time.Time                `bun:"calculated_at,notnull"`
}

// AnalyticsStore overwrites one snapshot row per quiz.
type AnalyticsStore struct {
	db *bun.DB
}

func NewAnalyticsStore(db *bun.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

func (s *AnalyticsStore) SaveSnapshot(ctx context.Context, snap domain.AnalyticsSnapshot) error {
	row := analyticsRow{QuizID: snap.QuizID, Snapshot: snap, CalculatedAt: snap.CalculatedAt}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (quiz_id) DO UPDATE").
		Set("snapshot = EXCLUDED.snapshot").
		Set("calculated_at = EXCLUDED.calculated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) GetSnapshot(ctx context.Context, quizID string) (domain.AnalyticsSnapshot, bool, error) {
	var row analyticsRow
	err := s.db.NewSelect().Model(&row).Where("quiz_id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AnalyticsSnapshot{}, false, nil
	}
	if err != nil {
		return domain.AnalyticsSnapshot{}, false, fmt.Errorf("select snapshot: %w", err)
	}
	return row.Snapshot, true, nil
}
