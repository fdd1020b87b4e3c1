package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/middleware"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
	"github.com/stemsi/exstem-attempts/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// stubAttempts returns canned results and records the last call's inputs.
type stubAttempts struct {
	mu       sync.Mutex
	err      error
	cheatErr error
	status   model.AttemptStatus
	lateCode string
	userID   int
	cheat    model.RecordAntiCheatRequest
	submit   model.SubmitAttemptRequest
	recorded bool
}

func (s *stubAttempts) StartAttempt(_ context.Context, _ uuid.UUID, userID int, lateCode string) (*service.StartResult, error) {
	s.userID, s.lateCode = userID, lateCode
	if s.err != nil {
		return nil, s.err
	}
	return &service.StartResult{AttemptID: uuid.New(), ResumeToken: "token"}, nil
}

func (s *stubAttempts) ResumeAttempt(_ context.Context, id uuid.UUID, userID int, _ string) (*service.ResumeResult, error) {
	s.userID = userID
	if s.err != nil {
		return nil, s.err
	}
	return &service.ResumeResult{Attempt: &model.AttemptSession{ID: id}, Responses: []model.DraftResponse{}}, nil
}

func (s *stubAttempts) GetAttempt(_ context.Context, id uuid.UUID, userID int) (*service.AttemptDetail, error) {
	s.userID = userID
	if s.err != nil {
		return nil, s.err
	}
	status := s.status
	if status == "" {
		status = model.AttemptStatusStarted
	}
	return &service.AttemptDetail{Attempt: &model.AttemptSession{ID: id, Status: status}}, nil
}

func (s *stubAttempts) SaveDraftResponse(_ context.Context, _ uuid.UUID, _ int, questionID uuid.UUID, req model.SaveDraftRequest) (*model.DraftResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.DraftResponse{QuestionID: questionID, Answer: req.Answer, SavedAt: time.Now()}, nil
}

func (s *stubAttempts) RecordAntiCheatEvent(_ context.Context, _ uuid.UUID, _ int, req model.RecordAntiCheatRequest) (*service.AntiCheatResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cheat = req
	if s.cheatErr != nil {
		return nil, s.cheatErr
	}
	if s.err != nil {
		return nil, s.err
	}
	return &service.AntiCheatResult{Recorded: s.recorded, TabSwitches: 2, Status: model.AttemptStatusStarted}, nil
}

func (s *stubAttempts) lastCheat() model.RecordAntiCheatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cheat
}

func (s *stubAttempts) SubmitAttempt(_ context.Context, id uuid.UUID, _ int, req model.SubmitAttemptRequest) (*service.SubmitResult, error) {
	s.submit = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.SubmitResult{Attempt: &model.AttemptSession{ID: id, Status: model.AttemptStatusCompleted}}, nil
}

// withClaims stands in for the JWT middleware.
func withClaims(userID int, perms ...model.Permission) gin.HandlerFunc {
	granted := make([]string, len(perms))
	for i, p := range perms {
		granted[i] = string(p)
	}
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: userID, Permissions: granted})
		c.Next()
	}
}

func newAttemptRouter(stub *stubAttempts) *gin.Engine {
	h := NewAttemptHandler(stub, zerolog.Nop())
	r := gin.New()
	r.Use(withClaims(7))
	r.POST("/exams/:exam_id/attempts", h.StartAttempt)
	r.GET("/attempts/:attempt_id", h.GetAttempt)
	r.POST("/attempts/:attempt_id/resume", h.ResumeAttempt)
	r.PUT("/attempts/:attempt_id/responses/:question_id", h.SaveDraft)
	r.POST("/attempts/:attempt_id/anticheat", h.RecordAntiCheat)
	r.POST("/attempts/:attempt_id/submit", h.SubmitAttempt)
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, response.Response) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestStartAttempt(t *testing.T) {
	examID := uuid.NewString()

	tests := []struct {
		name     string
		path     string
		body     string
		err      error
		want     int
		wantCode response.ErrCode
		lateCode string
	}{
		{name: "no body", path: "/exams/" + examID + "/attempts", want: http.StatusCreated},
		{name: "late code", path: "/exams/" + examID + "/attempts", body: `{"late_code":"abcd2345"}`, want: http.StatusCreated, lateCode: "abcd2345"},
		{name: "malformed late code", path: "/exams/" + examID + "/attempts", body: `{"late_code":"00"}`, want: http.StatusBadRequest, wantCode: response.ErrValidation},
		{name: "bad exam id", path: "/exams/nope/attempts", want: http.StatusBadRequest, wantCode: response.ErrInvalidID},
		{name: "limit reached", path: "/exams/" + examID + "/attempts", err: service.ErrAttemptLimitReached, want: http.StatusConflict, wantCode: response.ErrAttemptLimitReached},
		{name: "closed", path: "/exams/" + examID + "/attempts", err: service.ErrExamClosed, want: http.StatusForbidden, wantCode: response.ErrExamClosed},
		{name: "late code exhausted", path: "/exams/" + examID + "/attempts", err: service.ErrLateCodeExhausted, want: http.StatusGone, wantCode: response.ErrLateCodeExhausted},
		{name: "unexpected", path: "/exams/" + examID + "/attempts", err: fmt.Errorf("create attempt: %w", context.DeadlineExceeded), want: http.StatusInternalServerError, wantCode: response.ErrInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubAttempts{err: tc.err}
			w, env := do(newAttemptRouter(stub), http.MethodPost, tc.path, tc.body)

			if w.Code != tc.want {
				t.Fatalf("Expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if tc.wantCode != "" && (env.Error == nil || env.Error.Code != tc.wantCode) {
				t.Fatalf("Expected code %s, got %+v", tc.wantCode, env.Error)
			}
			if tc.want == http.StatusCreated && (stub.userID != 7 || stub.lateCode != tc.lateCode) {
				t.Errorf("unexpected call: user=%d code=%q", stub.userID, stub.lateCode)
			}
		})
	}
}

func TestStartAttempt_TypedErrors(t *testing.T) {
	active := uuid.New()

	t.Run("cooldown", func(t *testing.T) {
		stub := &stubAttempts{err: &service.CooldownError{Remaining: 90*time.Minute + 200*time.Millisecond}}
		w, env := do(newAttemptRouter(stub), http.MethodPost, "/exams/"+uuid.NewString()+"/attempts", "")

		if w.Code != http.StatusTooManyRequests || env.Error.Code != response.ErrCooldownActive {
			t.Fatalf("unexpected response %d %+v", w.Code, env.Error)
		}
		if env.Error.Fields["retry_after_seconds"] != "5401" || w.Header().Get("Retry-After") != "5401" {
			t.Errorf("unexpected retry hint: %v / %q", env.Error.Fields, w.Header().Get("Retry-After"))
		}
	})

	t.Run("in progress", func(t *testing.T) {
		stub := &stubAttempts{err: &service.InProgressError{AttemptID: active}}
		w, env := do(newAttemptRouter(stub), http.MethodPost, "/exams/"+uuid.NewString()+"/attempts", "")

		if w.Code != http.StatusConflict || env.Error.Code != response.ErrAttemptInProgress {
			t.Fatalf("unexpected response %d %+v", w.Code, env.Error)
		}
		if env.Error.Fields["attempt_id"] != active.String() {
			t.Errorf("expected active attempt id, got %v", env.Error.Fields)
		}
	})
}

func TestAttemptErrors(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		err      error
		want     int
		wantCode response.ErrCode
	}{
		{"get not owner", http.MethodGet, "/attempts/" + id, "", service.ErrNotAttemptOwner, http.StatusForbidden, response.ErrNotAttemptOwner},
		{"get missing", http.MethodGet, "/attempts/" + id, "", service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
		{"resume bad token", http.MethodPost, "/attempts/" + id + "/resume", `{"resume_token":"0123456789abcdef0123"}`, service.ErrInvalidResumeToken, http.StatusUnauthorized, response.ErrInvalidResume},
		{"resume missing token", http.MethodPost, "/attempts/" + id + "/resume", `{}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"draft unknown question", http.MethodPut, "/attempts/" + id + "/responses/" + uuid.NewString(), `{"answer":"A"}`, service.ErrUnknownQuestion, http.StatusUnprocessableEntity, response.ErrUnknownQuestion},
		{"draft bad question id", http.MethodPut, "/attempts/" + id + "/responses/x", `{"answer":"A"}`, nil, http.StatusBadRequest, response.ErrInvalidID},
		{"cheat abandoned", http.MethodPost, "/attempts/" + id + "/anticheat", `{"type":"TAB_SWITCH"}`, service.ErrAttemptAbandoned, http.StatusConflict, response.ErrAttemptAbandoned},
		{"cheat bad type", http.MethodPost, "/attempts/" + id + "/anticheat", `{"type":"SCREENSHOT"}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"submit expired", http.MethodPost, "/attempts/" + id + "/submit", `{}`, service.ErrAttemptExpired, http.StatusGone, response.ErrAttemptExpired},
		{"submit not in progress", http.MethodPost, "/attempts/" + id + "/submit", `{}`, fmt.Errorf("%w (status ABANDONED)", service.ErrAttemptNotInProgress), http.StatusConflict, response.ErrAttemptNotInProgress},
		{"submit duplicate", http.MethodPost, "/attempts/" + id + "/submit", `{}`, service.ErrDuplicateResponse, http.StatusConflict, response.ErrDuplicateResponse},
		{"submit unknown decorator", http.MethodPost, "/attempts/" + id + "/submit", `{"decorators":["confetti"]}`, nil, http.StatusBadRequest, response.ErrValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, env := do(newAttemptRouter(&stubAttempts{err: tc.err}), tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Fatalf("Expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if env.Error == nil || env.Error.Code != tc.wantCode {
				t.Fatalf("Expected code %s, got %+v", tc.wantCode, env.Error)
			}
			if env.Error.Message != response.GetMessage(tc.wantCode) {
				t.Errorf("unexpected message %q", env.Error.Message)
			}
		})
	}
}

func TestSubmitAttempt_PassesPayload(t *testing.T) {
	stub := &stubAttempts{}
	q := uuid.New()
	body := fmt.Sprintf(`{"responses":[{"question_id":"%s","answer":"B","time_spent":12}],"decorators":["badges","time_bonus"]}`, q)

	w, env := do(newAttemptRouter(stub), http.MethodPost, "/attempts/"+uuid.NewString()+"/submit", body)
	if w.Code != http.StatusOK || env.Error != nil {
		t.Fatalf("unexpected response %d: %s", w.Code, w.Body.String())
	}
	if len(stub.submit.Responses) != 1 || stub.submit.Responses[0].QuestionID != q || stub.submit.Responses[0].TimeSpent != 12 {
		t.Errorf("unexpected responses: %+v", stub.submit.Responses)
	}
	if len(stub.submit.Decorators) != 2 {
		t.Errorf("unexpected decorators: %v", stub.submit.Decorators)
	}
}

func TestRecordAntiCheat_PassesPayload(t *testing.T) {
	stub := &stubAttempts{recorded: true}
	body := `{"event_id":"evt-1","type":"BLUR","occurred_at":"2026-03-02T09:00:00Z","metadata":{"x":1}}`

	w, _ := do(newAttemptRouter(stub), http.MethodPost, "/attempts/"+uuid.NewString()+"/anticheat", body)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected response %d: %s", w.Code, w.Body.String())
	}
	if stub.cheat.EventID != "evt-1" || stub.cheat.Type != model.AntiCheatBlur || stub.cheat.OccurredAt == nil {
		t.Errorf("unexpected request: %+v", stub.cheat)
	}
}
