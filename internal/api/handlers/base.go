// Package handlers implements the REST API endpoint handlers for dnstp.
//
// REST API Endpoints:
//
// System:
//   - GET /api/v1/health - Health check status
//   - GET /api/v1/stats - Runtime, process, socket and dispatcher statistics
//
// Sessions:
//   - GET /api/v1/sessions - List live sessions
//   - GET /api/v1/sessions/:fingerprint - One live session
//   - POST /api/v1/sessions/:fingerprint/outbox - Queue a payload for the next download poll
//   - GET /api/v1/sessions/:fingerprint/uploads - Decrypted uploads from the journal
//
// Authentication:
//
// All endpoints except /health require the X-API-Key header when an API key
// is configured.
//
// @title dnstp Management API
// @version 1.0
// @description Inspect tunnel sessions, read uploads and queue downloads.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jroosing/dnstp/internal/api/models"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/store"
)

// DispatcherStatsFunc returns the dispatcher counters.
type DispatcherStatsFunc func() models.DispatcherStats

// SocketStatsFunc returns the UDP socket counters.
type SocketStatsFunc func() models.SocketStats

// Handler contains dependencies for API handlers.
type Handler struct {
	registry  *session.Registry
	store     *store.Store // nil when the upload journal is disabled
	logger    *slog.Logger
	startTime time.Time

	// Runtime components (set after the server starts)
	dispatcherStatsFunc DispatcherStatsFunc
	socketStatsFunc     SocketStatsFunc
	mu                  sync.RWMutex
}

// New creates a Handler over the live session registry and the optional
// upload journal.
func New(registry *session.Registry, st *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:  registry,
		store:     st,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetDispatcherStatsFunc sets the function to retrieve dispatcher statistics.
func (h *Handler) SetDispatcherStatsFunc(fn DispatcherStatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcherStatsFunc = fn
}

// SetSocketStatsFunc sets the function to retrieve socket statistics.
func (h *Handler) SetSocketStatsFunc(fn SocketStatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.socketStatsFunc = fn
}

func (h *Handler) statsFuncs() (DispatcherStatsFunc, SocketStatsFunc) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dispatcherStatsFunc, h.socketStatsFunc
}
