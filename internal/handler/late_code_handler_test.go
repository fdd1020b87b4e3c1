package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
)

type stubLateCodes struct {
	err   error
	actor service.Actor
	req   model.GenerateLateCodeRequest
	code  string
}

func (s *stubLateCodes) Generate(_ context.Context, examID uuid.UUID, actor service.Actor, req model.GenerateLateCodeRequest) (*model.LateAccessCode, error) {
	s.actor, s.req = actor, req
	if s.err != nil {
		return nil, s.err
	}
	return &model.LateAccessCode{ID: uuid.New(), Code: "ABCD2345", ExamID: examID, MaxUsages: 1}, nil
}

func (s *stubLateCodes) Check(_ context.Context, code string, _ uuid.UUID, _ int) (*model.LateAccessCode, error) {
	s.code = code
	if s.err != nil {
		return nil, s.err
	}
	return &model.LateAccessCode{MaxUsages: 3, UsageHistory: []model.LateCodeUsage{{UserID: 1}}, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubLateCodes) Revoke(_ context.Context, id uuid.UUID, actor service.Actor) (*model.LateAccessCode, error) {
	s.actor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &model.LateAccessCode{ID: id, Status: model.LateCodeRevoked}, nil
}

func (s *stubLateCodes) List(_ context.Context, _ uuid.UUID, actor service.Actor) ([]model.LateAccessCode, error) {
	s.actor = actor
	if s.err != nil {
		return nil, s.err
	}
	return []model.LateAccessCode{}, nil
}

func newLateCodeRouter(stub *stubLateCodes, perms ...model.Permission) *gin.Engine {
	h := NewLateCodeHandler(stub, zerolog.Nop())
	r := gin.New()
	r.Use(withClaims(9, perms...))
	r.POST("/staff/exams/:exam_id/late-codes", h.Generate)
	r.GET("/staff/exams/:exam_id/late-codes", h.List)
	r.DELETE("/staff/late-codes/:code_id", h.Revoke)
	r.POST("/student/exams/:exam_id/late-codes/check", h.Check)
	return r
}

func TestLateCodeHandler_Generate(t *testing.T) {
	examPath := "/staff/exams/" + uuid.NewString() + "/late-codes"

	t.Run("author", func(t *testing.T) {
		stub := &stubLateCodes{}
		w, _ := do(newLateCodeRouter(stub, model.PermissionLateCodesIssue), http.MethodPost, examPath, `{"max_usages":5,"expires_in_hours":24}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if stub.actor.UserID != 9 || stub.actor.Inspector {
			t.Errorf("unexpected actor %+v", stub.actor)
		}
		if stub.req.MaxUsages != 5 || stub.req.ExpiresInHours != 24 {
			t.Errorf("unexpected request %+v", stub.req)
		}
	})

	t.Run("inspector", func(t *testing.T) {
		stub := &stubLateCodes{}
		w, _ := do(newLateCodeRouter(stub, model.PermissionLateCodesInspect), http.MethodPost, examPath, "")
		if w.Code != http.StatusCreated || !stub.actor.Inspector {
			t.Fatalf("Expected inspector actor, got %d %+v", w.Code, stub.actor)
		}
	})

	t.Run("not author", func(t *testing.T) {
		stub := &stubLateCodes{err: service.ErrNotAuthorizedForCodes}
		w, env := do(newLateCodeRouter(stub), http.MethodPost, examPath, "")
		if w.Code != http.StatusForbidden || env.Error.Code != response.ErrNotExamAuthor {
			t.Fatalf("unexpected response %d %+v", w.Code, env.Error)
		}
	})

	t.Run("invalid max usages", func(t *testing.T) {
		w, env := do(newLateCodeRouter(&stubLateCodes{}), http.MethodPost, examPath, `{"max_usages":-2}`)
		if w.Code != http.StatusBadRequest || env.Error.Code != response.ErrValidation {
			t.Fatalf("unexpected response %d %+v", w.Code, env.Error)
		}
	})
}

func TestLateCodeHandler_RevokeAndList(t *testing.T) {
	w, _ := do(newLateCodeRouter(&stubLateCodes{}), http.MethodDelete, "/staff/late-codes/"+uuid.NewString(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Revoke: expected 200, got %d", w.Code)
	}

	w, env := do(newLateCodeRouter(&stubLateCodes{err: service.ErrLateCodeNotFound}), http.MethodDelete, "/staff/late-codes/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound || env.Error.Code != response.ErrLateCodeNotFound {
		t.Fatalf("Revoke missing: unexpected response %d %+v", w.Code, env.Error)
	}

	w, _ = do(newLateCodeRouter(&stubLateCodes{}), http.MethodGet, "/staff/exams/"+uuid.NewString()+"/late-codes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("List: expected 200, got %d", w.Code)
	}
}

func TestLateCodeHandler_Check(t *testing.T) {
	path := "/student/exams/" + uuid.NewString() + "/late-codes/check"

	tests := []struct {
		name     string
		body     string
		err      error
		want     int
		wantCode response.ErrCode
	}{
		{"valid", `{"code":"abcd2345"}`, nil, http.StatusOK, ""},
		{"bad alphabet", `{"code":"ABCD0000"}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"missing", `{}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"unknown", `{"code":"ABCD2345"}`, service.ErrLateCodeInvalid, http.StatusBadRequest, response.ErrLateCodeInvalid},
		{"expired", `{"code":"ABCD2345"}`, service.ErrLateCodeExpired, http.StatusGone, response.ErrLateCodeExpired},
		{"deactivated", `{"code":"ABCD2345"}`, service.ErrLateCodeDeactivated, http.StatusGone, response.ErrLateCodeDeactivated},
		{"not yours", `{"code":"ABCD2345"}`, service.ErrLateCodeNotYours, http.StatusForbidden, response.ErrLateCodeNotYours},
		{"already used", `{"code":"ABCD2345"}`, service.ErrLateCodeAlreadyUsed, http.StatusConflict, response.ErrLateCodeAlreadyUsed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubLateCodes{err: tc.err}
			w, env := do(newLateCodeRouter(stub), http.MethodPost, path, tc.body)
			if w.Code != tc.want {
				t.Fatalf("Expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if tc.wantCode != "" {
				if env.Error == nil || env.Error.Code != tc.wantCode {
					t.Fatalf("Expected %s, got %+v", tc.wantCode, env.Error)
				}
				return
			}

			data, _ := env.Data.(map[string]any)
			if data["valid"] != true || data["usages_remaining"] != float64(2) {
				t.Errorf("unexpected data %v", env.Data)
			}
			if _, leaked := data["usage_history"]; leaked {
				t.Error("check must not expose the usage history")
			}
		})
	}
}
