package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/service"
	ws "github.com/stemsi/exstem-attempts/internal/websocket"
)

func dialStream(t *testing.T, stub *stubAttempts) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := NewWSHandler(stub, zerolog.Nop(), nil)
	r := gin.New()
	r.Use(withClaims(7))
	r.GET("/attempts/:attempt_id/stream", h.AttemptStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/attempts/" + uuid.NewString() + "/stream"
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestAttemptStream_RejectsFinishedAttempt(t *testing.T) {
	_, resp, err := dialStream(t, &stubAttempts{status: model.AttemptStatusCompleted})
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before upgrade, got %v", resp)
	}
}

func TestAttemptStream_Actions(t *testing.T) {
	stub := &stubAttempts{recorded: true}
	conn, _, err := dialStream(t, stub)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.WriteJSON(map[string]string{"action": "ping"})
	var pong ws.PongResponse
	readEvent(t, conn, &pong)
	if pong.Event != ws.EventPong {
		t.Errorf("expected pong, got %q", pong.Event)
	}

	q := uuid.NewString()
	_ = conn.WriteJSON(map[string]any{"action": "autosave", "q_id": q, "ans": "B", "time_spent": 4})
	var saved ws.SavedResponse
	readEvent(t, conn, &saved)
	if saved.Event != ws.EventSaved || saved.QID != q {
		t.Errorf("unexpected autosave reply %+v", saved)
	}

	_ = conn.WriteJSON(map[string]string{"action": "autosave", "q_id": "not-a-uuid"})
	var bad ws.ErrorResponse
	readEvent(t, conn, &bad)
	if bad.Event != ws.EventError || bad.Code != "INVALID_ID" {
		t.Errorf("unexpected error reply %+v", bad)
	}

	_ = conn.WriteJSON(map[string]string{"action": "cheat", "event_id": "e-1", "type": "tab_switch"})
	var rec ws.RecordedResponse
	readEvent(t, conn, &rec)
	if rec.Event != ws.EventRecorded || rec.TabSwitches != 2 || rec.Duplicate {
		t.Errorf("unexpected cheat reply %+v", rec)
	}
	if got := stub.lastCheat(); got.Type != model.AntiCheatTabSwitch || got.EventID != "e-1" {
		t.Errorf("unexpected service call %+v", got)
	}

	_ = conn.WriteJSON(map[string]string{"action": "submit"})
	var unknown ws.ErrorResponse
	readEvent(t, conn, &unknown)
	if unknown.Event != ws.EventError {
		t.Errorf("expected error for unknown action, got %+v", unknown)
	}
}

func TestAttemptStream_AbandonClosesConnection(t *testing.T) {
	stub := &stubAttempts{cheatErr: service.ErrAttemptAbandoned}
	conn, _, err := dialStream(t, stub)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.WriteJSON(map[string]string{"action": "cheat", "type": "TAB_SWITCH"})

	var abandoned ws.AbandonedResponse
	readEvent(t, conn, &abandoned)
	if abandoned.Event != ws.EventAbandoned || abandoned.Code != "ATTEMPT_ABANDONED" {
		t.Fatalf("unexpected reply %+v", abandoned)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("expected policy-violation close, got %v", err)
	}
}
