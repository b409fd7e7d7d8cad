package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assessment-engine/internal/metrics"
)

type client struct {
	t      *testing.T
	server *httptest.Server
}

func (c client) do(method, path, user, role string, body any) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.server.URL+path, rd)
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func newTestServer(t *testing.T) (client, *metrics.Metrics) {
	t.Helper()
	svc, b := newTestService(t)
	m := metrics.New()
	srv := httptest.NewServer(NewRouter(RouterConfig{Service: svc, Broadcaster: b, Metrics: m}))
	t.Cleanup(srv.Close)
	return client{t: t, server: srv}, m
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	c, _ := newTestServer(t)

	status, started := c.do(http.MethodPost, "/api/quizzes/quiz-1/attempts", "alice", "", nil)
	if status != http.StatusCreated {
		t.Fatalf("start status %d: %v", status, started)
	}
	attemptID, _ := started["attemptId"].(string)
	if attemptID == "" {
		t.Fatalf("missing attempt id in %v", started)
	}
	if limit, ok := started["timeLimitSeconds"]; !ok || limit != nil {
		t.Fatalf("expected timeLimitSeconds: null, got %v", started)
	}
	if started["maxAttempts"] != float64(0) {
		t.Fatalf("expected maxAttempts in start payload, got %v", started)
	}

	status, _ = c.do(http.MethodPut, "/api/attempts/"+attemptID+"/responses/q1", "alice", "", map[string]any{"optionIds": []string{"o2"}})
	if status != http.StatusOK {
		t.Fatalf("submit status %d", status)
	}
	status, body := c.do(http.MethodPut, "/api/attempts/"+attemptID+"/responses/q2", "alice", "", map[string]any{"text": "because"})
	if status != http.StatusOK {
		t.Fatalf("essay status %d", status)
	}
	essayID := body["response"].(map[string]any)["id"].(string)

	if status, _ := c.do(http.MethodPut, "/api/attempts/"+attemptID+"/responses/q1", "mallory", "", map[string]any{"optionIds": []string{"o1"}}); status != http.StatusForbidden {
		t.Fatalf("expected 403 for another learner, got %d", status)
	}

	status, result := c.do(http.MethodPost, "/api/attempts/"+attemptID+"/complete", "alice", "", nil)
	if status != http.StatusOK {
		t.Fatalf("complete status %d: %v", status, result)
	}
	if result["state"] != "completed" || result["pendingReview"] != float64(1) {
		t.Fatalf("unexpected result %v", result)
	}

	if status, _ := c.do(http.MethodPost, "/api/responses/"+essayID+"/grade", "alice", "", map[string]any{"points": 4}); status != http.StatusForbidden {
		t.Fatalf("learners cannot grade, got %d", status)
	}
	status, graded := c.do(http.MethodPost, "/api/responses/"+essayID+"/grade", "instructor-1", "instructor", map[string]any{"points": 4, "feedback": "good"})
	if status != http.StatusOK {
		t.Fatalf("grade status %d: %v", status, graded)
	}
	if graded["scorePoints"] != float64(5) || graded["pendingReview"] != float64(0) {
		t.Fatalf("unexpected regrade %v", graded)
	}

	status, snap := c.do(http.MethodGet, "/api/quizzes/quiz-1/analytics", "instructor-1", "instructor", nil)
	if status != http.StatusOK || snap["completedAttempts"] != float64(1) {
		t.Fatalf("unexpected analytics %d %v", status, snap)
	}

	status, list := c.do(http.MethodGet, "/api/attempts", "alice", "", nil)
	if status != http.StatusOK || len(list["attempts"].([]any)) != 1 {
		t.Fatalf("unexpected list %d %v", status, list)
	}
}

func TestErrorMapping(t *testing.T) {
	c, _ := newTestServer(t)

	if status, _ := c.do(http.MethodPost, "/api/quizzes/quiz-1/attempts", "", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", status)
	}
	status, body := c.do(http.MethodPost, "/api/quizzes/missing/attempts", "alice", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if body["error"].(map[string]any)["kind"] != "not_found" {
		t.Fatalf("unexpected problem %v", body)
	}

	_, started := c.do(http.MethodPost, "/api/quizzes/quiz-1/attempts", "alice", "", nil)
	attemptID := started["attemptId"].(string)
	if status, _ := c.do(http.MethodPost, "/api/quizzes/quiz-1/attempts", "alice", "", nil); status != http.StatusConflict {
		t.Fatalf("expected 409 for second open attempt, got %d", status)
	}
	if status, _ := c.do(http.MethodPut, "/api/attempts/"+attemptID+"/responses/q1", "alice", "", map[string]any{"optionIds": []string{"nope"}}); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown option, got %d", status)
	}
	if status, _ := c.do(http.MethodPut, "/api/attempts/"+attemptID+"/responses/zz", "alice", "", map[string]any{"optionIds": []string{"o1"}}); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for foreign question, got %d", status)
	}
	if status, _ := c.do(http.MethodPut, "/api/attempts/"+attemptID+"/responses/q1", "alice", "", map[string]any{"unknown": true}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", status)
	}
	if status, _ := c.do(http.MethodGet, "/api/quizzes/quiz-1/attempts?state=bogus", "instructor-1", "instructor", nil); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad state filter, got %d", status)
	}
}

func TestPublishRequiresInstructor(t *testing.T) {
	c, _ := newTestServer(t)
	quiz := sampleQuiz()
	quiz.ID = "quiz-2"

	if status, _ := c.do(http.MethodPost, "/api/quizzes", "alice", "", quiz); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	status, body := c.do(http.MethodPost, "/api/quizzes", "instructor-1", "instructor", quiz)
	if status != http.StatusCreated || body["version"] != float64(1) {
		t.Fatalf("unexpected publish %d %v", status, body)
	}
	quiz.Questions = nil
	if status, _ := c.do(http.MethodPost, "/api/quizzes", "instructor-1", "instructor", quiz); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty quiz, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	c, _ := newTestServer(t)
	c.do(http.MethodPost, "/api/quizzes/quiz-1/attempts", "alice", "", nil)

	resp, err := http.Get(c.server.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(c.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `route="/api/quizzes/{quizID}/attempts"`) {
		t.Fatalf("expected route-labelled request metric, got:\n%s", data)
	}
}

func TestJWTAuthentication(t *testing.T) {
	svc, b := newTestService(t)
	auth := NewAuthenticator("s3cret", "assessment-engine")
	srv := httptest.NewServer(NewRouter(RouterConfig{Service: svc, Broadcaster: b, Auth: auth}))
	defer srv.Close()

	token, err := auth.IssueToken("alice", RoleLearner, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/quizzes/quiz-1/attempts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with valid token, got %d", resp.StatusCode)
	}

	other := NewAuthenticator("different", "assessment-engine")
	forged, _ := other.IssueToken("alice", RoleInstructor, time.Minute)
	if _, err := auth.Parse(forged); err == nil {
		t.Fatalf("token signed with another key must be rejected")
	}
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/quizzes/quiz-1/attempts", nil)
	req.Header.Set("X-User-ID", "alice")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dev headers must be ignored when a secret is set, got %d", resp.StatusCode)
	}
}
