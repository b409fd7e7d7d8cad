package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"assessment-engine/internal/domain"
)

var errForbidden = errors.New("not allowed to access this attempt")

type problem struct {
	Error problemBody `json:"error"`
}

type problemBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindStateConflict:
		return http.StatusConflict
	case domain.KindAvailability, domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors onto status codes. Internal errors do not leak their message.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errForbidden) {
		writeProblem(w, http.StatusForbidden, string(domain.KindForbidden), err.Error())
		return
	}
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		msg = "internal error"
	}
	writeProblem(w, statusFor(kind), string(kind), msg)
}

func writeProblem(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, problem{Error: problemBody{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
