package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	pingTimeout     = 2 * time.Second
)

// Pinger is a dependency whose reachability the health check reports.
type Pinger func(ctx context.Context) error

// QueueDepther reports the backlog of the persistence queues.
type QueueDepther interface {
	QueueDepths(ctx context.Context) (map[string]int64, error)
}

// SystemHandler serves the health check and streams runtime metrics via SSE.
type SystemHandler struct {
	checks    map[string]Pinger
	queues    QueueDepther
	live      func() int
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. checks are keyed by the name
// reported in the health payload.
func NewSystemHandler(checks map[string]Pinger, queues QueueDepther, live func() int, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		queues:    queues,
		live:      live,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
	LiveSessions int               `json:"liveSessions"`
}

// Health godoc
// GET /health
// 200 when every dependency answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	report := healthReport{
		Status:       "ok",
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Dependencies: make(map[string]string, len(h.checks)),
		LiveSessions: h.live(),
	}
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			report.Dependencies[name] = "down"
			report.Status = "degraded"
			continue
		}
		report.Dependencies[name] = "up"
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}

type systemMetrics struct {
	Timestamp    int64            `json:"timestamp"`
	Uptime       string           `json:"uptime"`
	Goroutines   int              `json:"goroutines"`
	HeapAlloc    uint64           `json:"heapAlloc"`
	HeapSys      uint64           `json:"heapSys"`
	StackInuse   uint64           `json:"stackInuse"`
	NumGC        uint32           `json:"numGc"`
	GoVersion    string           `json:"goVersion"`
	NumCPU       int              `json:"numCpu"`
	LiveSessions int              `json:"liveSessions"`
	Queues       map[string]int64 `json:"queues"`
}

// SystemMetricsSSE godoc
// GET /api/v1/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Examiner connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Examiner disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	c.SSEvent("metrics", h.collect(c.Request.Context()))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp:    time.Now().Unix(),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		Goroutines:   runtime.NumGoroutine(),
		LiveSessions: h.live(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.HeapSys
	m.StackInuse = ms.StackInuse
	m.NumGC = ms.NumGC

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if depths, err := h.queues.QueueDepths(ctx); err == nil {
		m.Queues = depths
	} else {
		h.log.Debug().Err(err).Msg("Queue depth lookup failed")
	}

	return m
}
