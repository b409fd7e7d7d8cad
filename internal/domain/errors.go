package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned for unknown attempt IDs.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrResponseNotFound is returned for unknown response IDs.
	ErrResponseNotFound = errors.New("response not found")

	// ErrQuestionNotInQuiz indicates a submitted question ID does not belong to the attempt's quiz.
	ErrQuestionNotInQuiz = errors.New("question not in quiz")
	// ErrInvalidPayload indicates the payload shape does not fit the question kind.
	ErrInvalidPayload = errors.New("invalid payload for question kind")
	// ErrInvalidQuiz indicates a quiz definition failed validation.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrInvalidGrade indicates manual points outside the question's range.
	ErrInvalidGrade = errors.New("invalid grade")
	// ErrUnknownQuestionKind is returned when a kind outside the supported set reaches grading.
	ErrUnknownQuestionKind = errors.New("unknown question kind")

	// ErrAttemptInProgress is returned when the learner already has an open attempt.
	ErrAttemptInProgress = errors.New("attempt already in progress")
	// ErrMaxAttemptsExceeded is returned when another attempt would exceed the quiz limit.
	ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")
	// ErrAttemptTerminal is returned when writing to a completed attempt.
	ErrAttemptTerminal = errors.New("attempt already finished")
	// ErrAttemptExpired is returned when writing to an attempt that ran out of time.
	ErrAttemptExpired = errors.New("attempt time expired")
	// ErrAttemptNotFinalized is returned when manual grading targets an attempt still in progress.
	ErrAttemptNotFinalized = errors.New("attempt not finalized")
	// ErrNotManuallyGradable is returned when manual grading targets an objective question.
	ErrNotManuallyGradable = errors.New("response is not manually gradable")
	// ErrQuizFrozen is returned when editing a quiz that attempts already reference.
	ErrQuizFrozen = errors.New("quiz is frozen by existing attempts")

	// ErrQuizUnavailable is returned outside the quiz availability window.
	ErrQuizUnavailable = errors.New("quiz not currently available")
	// ErrQuizInactive is returned when the quiz has been deactivated.
	ErrQuizInactive = errors.New("quiz inactive")

	// ErrNotEnrolled is returned when the enrollment collaborator denies access.
	ErrNotEnrolled = errors.New("learner not entitled to quiz")
)

// ErrorKind groups errors so callers can render a specific message.
type ErrorKind string

const (
	KindInternal      ErrorKind = "internal"
	KindNotFound      ErrorKind = "not_found"
	KindValidation    ErrorKind = "validation"
	KindStateConflict ErrorKind = "state_conflict"
	KindAvailability  ErrorKind = "availability"
	KindForbidden     ErrorKind = "forbidden"
)

var errorKinds = []struct {
	kind ErrorKind
	errs []error
}{
	{KindNotFound, []error{ErrQuizNotFound, ErrAttemptNotFound, ErrResponseNotFound}},
	{KindValidation, []error{ErrQuestionNotInQuiz, ErrInvalidPayload, ErrInvalidQuiz, ErrInvalidGrade, ErrUnknownQuestionKind}},
	{KindStateConflict, []error{ErrAttemptInProgress, ErrMaxAttemptsExceeded, ErrAttemptTerminal, ErrAttemptExpired, ErrAttemptNotFinalized, ErrNotManuallyGradable, ErrQuizFrozen}},
	{KindAvailability, []error{ErrQuizUnavailable, ErrQuizInactive}},
	{KindForbidden, []error{ErrNotEnrolled}},
}

// KindOf classifies err. Unrecognised errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, group := range errorKinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindInternal
}
