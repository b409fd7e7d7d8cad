package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type submitResponseRequest struct {
	OptionIDs []string          `json:"optionIds" validate:"omitempty,max=50,dive,required,max=128"`
	Text      string            `json:"text" validate:"max=20000"`
	Pairs     map[string]string `json:"pairs" validate:"omitempty,max=50,dive,keys,required,endkeys,required"`
	Order     []string          `json:"order" validate:"omitempty,max=50,dive,required,max=128"`
}

func (r submitResponseRequest) payload() domain.Payload {
	return domain.Payload{OptionIDs: r.OptionIDs, Text: r.Text, Pairs: r.Pairs, Order: r.Order}
}

type gradeRequest struct {
	Points   *int   `json:"points" validate:"required,min=0"`
	Feedback string `json:"feedback" validate:"max=4000"`
}

type listQuery struct {
	QuizID  string `validate:"omitempty,max=128"`
	Learner string `validate:"omitempty,max=128"`
	State   string `validate:"omitempty,oneof=in_progress completed time_expired"`
}

func (h *Handler) publishQuiz(w http.ResponseWriter, r *http.Request) {
	var quiz domain.QuizDefinition
	if !h.decode(w, r, &quiz) {
		return
	}
	published, err := h.service.PublishQuiz(r.Context(), quiz)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, published)
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	started, err := h.service.StartAttempt(r.Context(), chi.URLParam(r, "quizID"), id.Subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	audience, err := h.authorizeRead(r, attemptID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.service.GetAttempt(r.Context(), attemptID, audience)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) submitResponse(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	if err := h.authorizeOwner(r, attemptID); err != nil {
		h.fail(w, r, err)
		return
	}
	var req submitResponseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, invalid(err))
		return
	}
	res, err := h.service.SubmitResponse(r.Context(), attemptID, chi.URLParam(r, "questionID"), req.payload())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) completeAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	if err := h.authorizeOwner(r, attemptID); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.CompleteAttempt(r.Context(), attemptID, domain.TriggerLearner, app.AudienceLearner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) gradeResponse(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, invalid(err))
		return
	}
	id, _ := IdentityFrom(r.Context())
	res, err := h.service.ManualGradeEssay(r.Context(), chi.URLParam(r, "responseID"), app.ManualGradeInput{
		Points:   *req.Points,
		Feedback: req.Feedback,
		GradedBy: id.Subject,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listQuizAttempts(w http.ResponseWriter, r *http.Request) {
	q := listQuery{
		QuizID:  chi.URLParam(r, "quizID"),
		Learner: r.URL.Query().Get("learner"),
		State:   r.URL.Query().Get("state"),
	}
	h.listAttempts(w, r, q, app.AudienceInstructor)
}

func (h *Handler) listOwnAttempts(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	q := listQuery{
		QuizID:  r.URL.Query().Get("quizId"),
		Learner: id.Subject,
		State:   r.URL.Query().Get("state"),
	}
	h.listAttempts(w, r, q, app.AudienceLearner)
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request, q listQuery, audience app.Audience) {
	if err := h.validate.Struct(q); err != nil {
		h.fail(w, r, invalid(err))
		return
	}
	attempts, err := h.service.ListAttempts(r.Context(), app.AttemptFilter{
		QuizID:    q.QuizID,
		LearnerID: q.Learner,
		State:     domain.AttemptState(q.State),
	}, audience)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetAnalytics(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// authorizeRead lets instructors read any attempt and learners only their own.
func (h *Handler) authorizeRead(r *http.Request, attemptID string) (app.Audience, error) {
	id, _ := IdentityFrom(r.Context())
	if id.Instructor() {
		return app.AudienceInstructor, nil
	}
	return app.AudienceLearner, h.authorizeOwner(r, attemptID)
}

func (h *Handler) authorizeOwner(r *http.Request, attemptID string) error {
	id, _ := IdentityFrom(r.Context())
	owner, err := h.service.OwnerOf(r.Context(), attemptID)
	if err != nil {
		return err
	}
	if owner != id.Subject {
		return errForbidden
	}
	return nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "bad json: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if domain.KindOf(err) == domain.KindInternal && !errors.Is(err, errForbidden) {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, err)
}

// invalid turns validator output into a validation-kind error.
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
}
