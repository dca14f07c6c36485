package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // a slow query must not stall the SSE loop
)

// MonitorHandler serves the examiner's live view of an exam.
type MonitorHandler struct {
	rdb             *redis.Client
	examService     *service.ExamService
	proctorService  *service.ProctorService
	refreshInterval time.Duration
	log             zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. refreshInterval is the
// period of full snapshot refreshes on the stream.
func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	proctorService *service.ProctorService,
	refreshInterval time.Duration,
	log zerolog.Logger,
) *MonitorHandler {
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Second
	}
	return &MonitorHandler{
		rdb:             rdb,
		examService:     examService,
		proctorService:  proctorService,
		refreshInterval: refreshInterval,
		log:             log.With().Str("component", "monitor_handler").Logger(),
	}
}

func (h *MonitorHandler) parseRequest(c *gin.Context) (uuid.UUID, model.MonitorFilter, bool) {
	examID, ok := parseID(c, "examId")
	if !ok {
		return uuid.Nil, "", false
	}
	filter, err := proctor.ParseFilter(c.Query("filter"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"filter": "filter must be one of [all active finished warnings]"})
		return uuid.Nil, "", false
	}
	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		failWithError(c, h.log, err)
		return uuid.Nil, "", false
	}
	// Only the examiner who created the exam may watch its sessions.
	claims := middleware.GetClaims(c)
	if claims == nil || exam.ExaminerID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotExamOwner)
		return uuid.Nil, "", false
	}
	return examID, filter, true
}

// ListSessions godoc
// GET /api/v1/sessions/:examId?filter=all|active|finished|warnings
// Returns the filtered sessions of an exam with unfiltered stats.
func (h *MonitorHandler) ListSessions(c *gin.Context) {
	examID, filter, ok := h.parseRequest(c)
	if !ok {
		return
	}

	snapshot, err := h.proctorService.Monitor(c.Request.Context(), examID, filter)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

// StreamSessions godoc
// GET /api/v1/sessions/:examId/stream?filter=
// Server-sent events: a snapshot first, then every session update published
// for the exam, with periodic snapshot refreshes.
func (h *MonitorHandler) StreamSessions(c *gin.Context) {
	examID, filter, ok := h.parseRequest(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Monitor subscribe failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	ch := pubsub.Channel()

	first, err := h.proctorService.Monitor(reqCtx, examID, filter)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", first)
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	refresh := time.NewTicker(h.refreshInterval)
	defer refresh.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Examiner attached to monitor stream")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Examiner detached from monitor stream")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			var note model.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
				h.log.Warn().Err(err).Msg("Dropping malformed monitor event")
				continue
			}
			c.SSEvent("update", h.proctorService.ApplyEvent(note))
			c.Writer.Flush()

		case <-refresh.C:
			h.sendSnapshot(c, examID, filter)

		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, examID uuid.UUID, filter model.MonitorFilter) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), refreshTimeout)
	defer cancel()

	snapshot, err := h.proctorService.Monitor(ctx, examID, filter)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Monitor snapshot failed")
		return
	}
	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()
}
