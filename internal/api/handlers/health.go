package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnstp/internal/api/models"
	"github.com/shirou/gopsutil/v3/process"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status; degraded when the upload journal is unreachable
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Failure 503 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	if h.store != nil {
		if err := h.store.Health(c.Request.Context()); err != nil {
			h.logger.Warn("upload journal unhealthy", "err", err)
			c.JSON(http.StatusServiceUnavailable, models.StatusResponse{Status: "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns runtime, process, socket and dispatcher statistics
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		GoRoutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		NumCPU:        runtime.NumCPU(),
		Process:       processStats(c),
	}
	if h.registry != nil {
		resp.Sessions = h.registry.Len()
	}

	dispatcherStats, socketStats := h.statsFuncs()
	if dispatcherStats != nil {
		ds := dispatcherStats()
		resp.Dispatcher = &ds
	}
	if socketStats != nil {
		ss := socketStats()
		resp.Socket = &ss
	}
	if h.store != nil {
		if n, err := h.store.CountUploads(c.Request.Context(), ""); err == nil {
			resp.Uploads = &n
		} else {
			h.logger.Warn("failed to count uploads", "err", err)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// processStats asks the OS about this process. Fields the platform cannot
// report stay zero; nil means the process could not be inspected at all.
func processStats(c *gin.Context) *models.ProcessStats {
	ctx := c.Request.Context()
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return nil
	}
	ps := &models.ProcessStats{}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		ps.RSSMB = float64(mem.RSS) / 1024 / 1024
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		ps.NumThreads = n
	}
	if n, err := p.NumFDsWithContext(ctx); err == nil {
		ps.NumFDs = n
	}
	return ps
}
