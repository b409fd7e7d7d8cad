package http

import (
	"encoding/json"
	"net/http"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/notify"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler runs a live session for one attempt: answers and completion go in, attempt state and
// lifecycle events come out.
type WSHandler struct {
	service     *app.AssessmentService
	broadcaster *notify.Broadcaster
	upgrader    websocket.Upgrader
	validate    *validator.Validate
	log         *zap.Logger
}

func NewWSHandler(service *app.AssessmentService, broadcaster *notify.Broadcaster, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service:     service,
		broadcaster: broadcaster,
		validate:    validator.New(),
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	submitResponseRequest
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and binds the socket to ?attemptId. Learners may only attach to their
// own attempt. Instructors may watch any attempt but cannot answer on it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attemptId")
	if attemptID == "" {
		writeProblem(w, http.StatusBadRequest, "bad_request", "missing attemptId")
		return
	}
	id, _ := IdentityFrom(r.Context())
	owner, err := h.service.OwnerOf(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	isOwner := owner == id.Subject
	if !isOwner && !id.Instructor() {
		writeError(w, errForbidden)
		return
	}
	audience := app.AudienceLearner
	if !isOwner {
		audience = app.AudienceInstructor
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	log := h.log.With(zap.String("attempt_id", attemptID), zap.String("subject", id.Subject))

	var events <-chan domain.Event
	cancel := func() {}
	if h.broadcaster != nil {
		events, cancel = h.broadcaster.Subscribe(attemptID)
	}
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "event", Payload: e}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	ctx := r.Context()
	// push reports false once the writer has stopped; the session ends then.
	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}
	fail := func(err error) bool {
		kind := domain.KindOf(err)
		msg := err.Error()
		if kind == domain.KindInternal {
			log.Error("ws request failed", zap.Error(err))
			msg = "internal error"
		}
		return push(outboundMessage{Type: "error", Payload: errorPayload{Kind: string(kind), Message: msg}})
	}
	reject := func(kind, msg string) bool {
		return push(outboundMessage{Type: "error", Payload: errorPayload{Kind: kind, Message: msg}})
	}

	alive := true
	if view, err := h.service.GetAttempt(ctx, attemptID, audience); err != nil {
		alive = fail(err)
	} else {
		alive = push(outboundMessage{Type: "state", Payload: view})
	}

	for alive {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "state":
			view, err := h.service.GetAttempt(ctx, attemptID, audience)
			if err != nil {
				alive = fail(err)
				continue
			}
			alive = push(outboundMessage{Type: "state", Payload: view})
		case "answer":
			if !isOwner {
				alive = reject(string(domain.KindForbidden), errForbidden.Error())
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				alive = reject("bad_request", "invalid answer payload")
				continue
			}
			if err := h.validate.Struct(payload.submitResponseRequest); err != nil {
				alive = fail(invalid(err))
				continue
			}
			res, err := h.service.SubmitResponse(ctx, attemptID, payload.QuestionID, payload.payload())
			if err != nil {
				alive = fail(err)
				continue
			}
			alive = push(outboundMessage{Type: "responseRecorded", Payload: res.Response})
			if alive && res.Attempt != nil {
				alive = push(outboundMessage{Type: "result", Payload: res.Attempt})
			}
		case "complete":
			if !isOwner {
				alive = reject(string(domain.KindForbidden), errForbidden.Error())
				continue
			}
			res, err := h.service.CompleteAttempt(ctx, attemptID, domain.TriggerLearner, app.AudienceLearner)
			if err != nil {
				alive = fail(err)
				continue
			}
			alive = push(outboundMessage{Type: "result", Payload: res})
		default:
			alive = reject("bad_request", "unsupported message type")
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}
