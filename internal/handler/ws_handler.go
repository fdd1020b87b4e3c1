package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/middleware"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
	ws "github.com/stemsi/exstem-attempts/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams autosave and anti-cheat traffic for one attempt.
type WSHandler struct {
	attempts Attempts
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts Attempts, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Ownership and STARTED status are checked before the upgrade so failures
// surface as ordinary HTTP errors.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	detail, err := h.attempts.GetAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}
	if detail.Attempt.Status != model.AttemptStatusStarted {
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotInProgress)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &stream{
		h:         h,
		conn:      conn,
		attemptID: attemptID,
		userID:    claims.UserID,
		log: h.log.With().
			Int("user_id", claims.UserID).
			Str("attempt_id", attemptID.String()).
			Logger(),
	}
	s.log.Info().Msg("Student connected")
	s.run()
}

// stream is the per-connection state of AttemptStream.
type stream struct {
	h         *WSHandler
	conn      *websocket.Conn
	attemptID uuid.UUID
	userID    int
	log       zerolog.Logger
}

func (s *stream) run() {
	for {
		data, err := ws.ReadMessage(s.conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = ws.WriteError(s.conn, string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		var done bool
		switch env.Action {
		case ws.ActionAutosave:
			done = s.autosave(data)
		case ws.ActionCheat:
			done = s.cheat(data)
		case ws.ActionPing:
			_ = ws.WriteTyped(s.conn, ws.PongResponse{Event: ws.EventPong})
		default:
			s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = ws.WriteError(s.conn, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
		if done {
			return
		}
	}
}

func (s *stream) autosave(data []byte) bool {
	var msg ws.AutosaveRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = ws.WriteError(s.conn, string(response.ErrInvalidPayload), "malformed autosave")
		return false
	}

	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		_ = ws.WriteError(s.conn, string(response.ErrInvalidID), "invalid q_id format")
		return false
	}
	if msg.TimeSpent < 0 {
		msg.TimeSpent = 0
	}

	draft, err := s.h.attempts.SaveDraftResponse(context.Background(), s.attemptID, s.userID, questionID, model.SaveDraftRequest{
		Answer:    msg.Answer,
		TimeSpent: msg.TimeSpent,
	})
	if err != nil {
		return s.writeServiceError(err)
	}

	_ = ws.WriteTyped(s.conn, ws.SavedResponse{Event: ws.EventSaved, QID: msg.QID, SavedAt: draft.SavedAt})
	return false
}

// cheat records an anti-cheat event. It reports true when the attempt was
// abandoned and the connection should close.
func (s *stream) cheat(data []byte) bool {
	var msg ws.CheatRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = ws.WriteError(s.conn, string(response.ErrInvalidPayload), "malformed cheat event")
		return false
	}

	typ := model.AntiCheatEventType(strings.ToUpper(msg.Type))
	switch typ {
	case model.AntiCheatTabSwitch, model.AntiCheatFullscreenExit, model.AntiCheatCopyPaste,
		model.AntiCheatRightClick, model.AntiCheatBlur:
	default:
		_ = ws.WriteError(s.conn, string(response.ErrValidation), "unknown event type: "+msg.Type)
		return false
	}

	res, err := s.h.attempts.RecordAntiCheatEvent(context.Background(), s.attemptID, s.userID, model.RecordAntiCheatRequest{
		EventID:    msg.EventID,
		Type:       typ,
		Metadata:   msg.Metadata,
		OccurredAt: msg.OccurredAt,
	})
	if errors.Is(err, service.ErrAttemptAbandoned) {
		s.log.Warn().Msg("Attempt abandoned over stream")
		_ = ws.WriteTyped(s.conn, ws.AbandonedResponse{
			Event:  ws.EventAbandoned,
			Code:   string(response.ErrAttemptAbandoned),
			Reason: response.GetMessage(response.ErrAttemptAbandoned),
		})
		ws.Close(s.conn, websocket.ClosePolicyViolation, "attempt abandoned")
		return true
	}
	if err != nil {
		return s.writeServiceError(err)
	}

	_ = ws.WriteTyped(s.conn, ws.RecordedResponse{
		Event:       ws.EventRecorded,
		EventID:     msg.EventID,
		Duplicate:   !res.Recorded,
		TabSwitches: res.TabSwitches,
		Suspicious:  res.Suspicious,
	})
	return false
}

// writeServiceError reports err to the client and returns true when the
// attempt can no longer accept traffic.
func (s *stream) writeServiceError(err error) bool {
	e := translateError(err)
	if e.code == response.ErrInternal {
		s.log.Error().Err(err).Msg("Stream action failed")
	}
	_ = ws.WriteError(s.conn, string(e.code), response.GetMessage(e.code))

	if errors.Is(err, service.ErrAttemptNotInProgress) {
		ws.Close(s.conn, websocket.CloseNormalClosure, "attempt no longer in progress")
		return true
	}
	return false
}
