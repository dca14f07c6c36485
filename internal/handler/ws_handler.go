package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// WSHandler serves the student's exam page stream: integrity signals and
// answers in, session state and notices out.
type WSHandler struct {
	rdb            *redis.Client
	proctorService *service.ProctorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, proctorService *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/:id/stream
// Only the owning student may attach. The camera lease is released when the
// page disconnects.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	owner, err := h.proctorService.Owner(c.Request.Context(), sessionID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}
	if owner != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
		return
	}

	lc, err := h.proctorService.Lifecycle(c.Request.Context(), sessionID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsLog := h.log.With().
		Str("session_id", sessionID.String()).
		Str("student_id", owner.String()).
		Logger()

	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.SessionEventsChannel(sessionID.String()))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		wsLog.Error().Err(err).Msg("Session event subscribe failed")
		_ = conn.WriteError("stream unavailable")
		return
	}
	go h.forward(ctx, conn, pubsub.Channel(), wsLog)

	src := proctor.NewChannelSource(16)
	defer src.Close()
	lc.Attach(src)
	defer lc.ReleaseCamera(context.Background())

	if err := conn.WriteTyped(ws.SessionEvent{Event: ws.EventSession, Session: lc.Detail()}); err != nil {
		return
	}

	wsLog.Info().Msg("Student connected")

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(frame, &env); err != nil {
			_ = conn.WriteError("malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionSignal:
			h.handleSignal(ctx, conn, src, frame)
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, sessionID, frame)
		case ws.ActionWebcam:
			h.handleWebcam(ctx, conn, lc, frame)
		case ws.ActionAck:
			var req ws.AckRequest
			_ = json.Unmarshal(frame, &req)
			_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventAcked, Kind: req.Kind})
		case ws.ActionSubmit:
			lc.Submit(ctx)
			_ = conn.WriteTyped(ws.SubmittedResponse{
				Event:  ws.EventSubmitted,
				Status: lc.Snapshot().Status,
				Score:  lc.Score(),
			})
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = conn.WriteError("unknown action: " + string(env.Action))
		}
	}
}

// forward relays notifications published for the session.
func (h *WSHandler) forward(ctx context.Context, conn *ws.Conn, ch <-chan *redis.Message, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			err := conn.WriteTyped(ws.NotificationEvent{
				Event:        ws.EventNotification,
				Notification: json.RawMessage(msg.Payload),
			})
			if err != nil {
				log.Debug().Err(err).Msg("Notification relay stopped")
				return
			}
		}
	}
}

func (h *WSHandler) handleSignal(ctx context.Context, conn *ws.Conn, src *proctor.ChannelSource, frame []byte) {
	var req ws.SignalRequest
	if err := json.Unmarshal(frame, &req); err != nil || req.Kind == "" {
		_ = conn.WriteError("kind is required")
		return
	}

	signal := proctor.Signal{
		Kind:        proctor.SignalKind(req.Kind),
		Description: req.Description,
		At:          time.Now().UTC(),
	}
	if _, known := proctor.Classify(signal); !known {
		_ = conn.WriteError("unknown signal kind: " + req.Kind)
		return
	}

	emitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := src.Emit(emitCtx, signal); err != nil {
		_ = conn.WriteError("signal dropped")
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *ws.Conn, sessionID uuid.UUID, frame []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(frame, &req); err != nil || req.QuestionID == uuid.Nil || req.Answer == "" {
		_ = conn.WriteError("questionId and answer are required")
		return
	}

	if _, err := h.proctorService.SubmitAnswer(ctx, sessionID, req.QuestionID, req.Answer); err != nil {
		_ = conn.WriteError(streamError(err))
		return
	}

	_ = conn.WriteTyped(ws.AnswerSavedResponse{
		Event:      ws.EventAnswerSaved,
		QuestionID: req.QuestionID,
		Status:     "saved",
	})
}

func (h *WSHandler) handleWebcam(ctx context.Context, conn *ws.Conn, lc *proctor.Lifecycle, frame []byte) {
	var req ws.WebcamRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		_ = conn.WriteError("malformed message")
		return
	}
	if req.Status != model.WebcamOn && req.Status != model.WebcamOff {
		_ = conn.WriteError("status must be one of [on off]")
		return
	}

	if _, err := lc.SetWebcam(ctx, req.Status); err != nil {
		_ = conn.WriteError(streamError(err))
		return
	}
	_ = conn.WriteTyped(ws.SessionEvent{Event: ws.EventSession, Session: lc.Detail()})
}

func streamError(err error) string {
	switch {
	case errors.Is(err, proctor.ErrSessionNotActive):
		return "session is not active"
	case errors.Is(err, proctor.ErrUnknownQuestion):
		return "unknown question"
	case errors.Is(err, proctor.ErrValidation):
		return err.Error()
	}
	return "request failed"
}
