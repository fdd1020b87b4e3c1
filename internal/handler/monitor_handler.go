package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/middleware"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second
)

var pingPayload = []byte(`{"type":"ping"}`)

// Monitor is the live exam monitor as seen by the transport layer.
type Monitor interface {
	Snapshot(ctx context.Context, examID uuid.UUID, actor service.Actor) (*model.MonitorSnapshot, error)
	Refresh(ctx context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error)
	Subscribe(ctx context.Context, examID uuid.UUID) (<-chan string, func())
}

// MonitorHandler streams attempt activity of one exam to staff over SSE.
type MonitorHandler struct {
	monitor Monitor
	log     zerolog.Logger

	refreshEvery   time.Duration
	keepAliveEvery time.Duration
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitor Monitor, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor:        monitor,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		refreshEvery:   refreshInterval,
		keepAliveEvery: keepAliveInterval,
	}
}

// MonitorExamSSE godoc
// GET /api/v1/staff/exams/:exam_id/monitor
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	actor := actorFrom(claims)
	reqCtx := c.Request.Context()

	// Errors are reported as JSON before the stream starts.
	snap, err := h.monitor.Snapshot(reqCtx, examID, actor)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": snap})
	c.Writer.Flush()

	events, stop := h.monitor.Subscribe(reqCtx, examID)
	defer stop()

	keepAlive := time.NewTicker(h.keepAliveEvery)
	defer keepAlive.Stop()
	refresh := time.NewTicker(h.refreshEvery)
	defer refresh.Stop()

	// Skip refreshes until something happens on the exam.
	active := len(snap.Attempts) > 0

	h.log.Info().
		Int("user_id", actor.UserID).
		Str("exam_id", examID.String()).
		Msg("Staff attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Staff detached from live monitor")
			return

		case payload, ok := <-events:
			if !ok {
				return
			}
			// Payloads are already JSON.
			h.writeData(c, []byte(payload))
			active = true

		case <-refresh.C:
			if !active {
				continue
			}
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAlive.C:
			h.writeData(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) writeData(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *MonitorHandler) sendRefresh(c *gin.Context, parent context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitor.Refresh(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Monitor refresh failed")
		return
	}

	c.SSEvent("message", gin.H{
		"type":     "refresh",
		"stats":    snap.Stats,
		"attempts": snap.Attempts,
	})
	c.Writer.Flush()
}
