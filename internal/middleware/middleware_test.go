package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret"})
}

func token(t *testing.T, auth *service.AuthService, typ service.TokenType, perms ...string) string {
	t.Helper()
	tok, err := auth.GenerateToken(typ, 42, perms, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func serve(r *gin.Engine, header string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireJWT(t *testing.T) {
	auth := newAuth()
	other := service.NewAuthService(&config.Config{JWTSecret: "other-secret"})

	tests := []struct {
		name   string
		staff  bool
		header string
		want   int
	}{
		{"student ok", false, "Bearer " + token(t, auth, service.TokenTypeStudent), http.StatusOK},
		{"staff ok", true, "Bearer " + token(t, auth, service.TokenTypeStaff), http.StatusOK},
		{"missing", false, "", http.StatusUnauthorized},
		{"wrong scheme", false, "Basic abc", http.StatusUnauthorized},
		{"bad signature", false, "Bearer " + token(t, other, service.TokenTypeStudent), http.StatusUnauthorized},
		{"staff on student route", false, "Bearer " + token(t, auth, service.TokenTypeStaff), http.StatusForbidden},
		{"student on staff route", true, "Bearer " + token(t, auth, service.TokenTypeStudent), http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			guard := RequireStudentJWT(auth)
			if tc.staff {
				guard = RequireStaffJWT(auth)
			}
			r := gin.New()
			r.GET("/", guard, func(c *gin.Context) {
				if GetClaims(c) == nil || GetClaims(c).UserID != 42 {
					c.Status(http.StatusTeapot)
					return
				}
				c.Status(http.StatusOK)
			})

			if got := serve(r, tc.header); got != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestRequireJWT_EventStreamQueryToken(t *testing.T) {
	auth := newAuth()
	tok := token(t, auth, service.TokenTypeStaff)

	r := gin.New()
	r.GET("/", RequireStaffJWT(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		accept string
		want   int
	}{
		{"event stream", "text/event-stream", http.StatusOK},
		{"plain request", "application/json", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?token="+tok, nil)
			req.Header.Set("Accept", tc.accept)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestRequireAnyPermission(t *testing.T) {
	auth := newAuth()
	perms := []model.Permission{model.PermissionLateCodesIssue, model.PermissionLateCodesInspect}

	tests := []struct {
		name  string
		perms []string
		want  int
	}{
		{"issuer", []string{string(model.PermissionLateCodesIssue)}, http.StatusOK},
		{"inspector", []string{"other", string(model.PermissionLateCodesInspect)}, http.StatusOK},
		{"none", []string{"other"}, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", RequireStaffJWT(auth), RequireAnyPermission(perms...), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
			if got := serve(r, "Bearer "+token(t, auth, service.TokenTypeStaff, tc.perms...)); got != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute, nil)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("a") {
		t.Fatal("fourth request within the window should be denied")
	}
	if !rl.Allow("b") {
		t.Fatal("other keys have their own bucket")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("bucket should refill after the interval")
	}

	now = now.Add(5 * time.Minute)
	rl.Sweep()
	if len(rl.buckets) != 0 {
		t.Errorf("expected idle buckets to be swept, %d left", len(rl.buckets))
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour, ByClientIP)
	r := gin.New()
	r.GET("/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	if got := serve(r, ""); got != http.StatusOK {
		t.Fatalf("Expected 200, got %d", got)
	}
	if got := serve(r, ""); got != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", got)
	}
}
