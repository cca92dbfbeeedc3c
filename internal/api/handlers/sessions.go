package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnstp/internal/api/models"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/store"
)

// MaxPayloadSize bounds one queued download payload.
const MaxPayloadSize = 1024

const (
	defaultUploadLimit = 50
	maxUploadLimit     = 500
)

func sessionResponse(info session.Info) models.SessionResponse {
	return models.SessionResponse{
		Fingerprint: info.Fingerprint,
		ClientID:    info.ID,
		Peer:        info.Peer.String(),
		FirstSeen:   info.FirstSeen,
		LastSeen:    info.LastSeen,
		Pending:     info.Pending,
	}
}

// ListSessions godoc
// @Summary List sessions
// @Description Returns every live session, oldest handshake first
// @Tags sessions
// @Produce json
// @Success 200 {object} models.SessionListResponse
// @Security ApiKeyAuth
// @Router /sessions [get]
func (h *Handler) ListSessions(c *gin.Context) {
	infos := h.registry.List()
	resp := models.SessionListResponse{
		Sessions: make([]models.SessionResponse, 0, len(infos)),
		Count:    len(infos),
	}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, sessionResponse(info))
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession godoc
// @Summary Get session
// @Description Returns one live session by fingerprint
// @Tags sessions
// @Produce json
// @Param fingerprint path string true "Session fingerprint"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /sessions/{fingerprint} [get]
func (h *Handler) GetSession(c *gin.Context) {
	info, ok := h.registry.Lookup(c.Param("fingerprint"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(info))
}

// EnqueuePayload godoc
// @Summary Queue a download
// @Description Queues a payload that the client receives, encrypted, on its next download poll
// @Tags sessions
// @Accept json
// @Produce json
// @Param fingerprint path string true "Session fingerprint"
// @Param request body models.OutboxRequest true "Payload"
// @Success 202 {object} models.OutboxResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /sessions/{fingerprint}/outbox [post]
func (h *Handler) EnqueuePayload(c *gin.Context) {
	fp := c.Param("fingerprint")

	var req models.OutboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	payload := []byte(req.Payload)
	if req.Encoding == models.EncodingBase64 {
		decoded, err := base64.StdEncoding.DecodeString(req.Payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "payload is not valid base64"})
			return
		}
		payload = decoded
	}
	if len(payload) > MaxPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Error: fmt.Sprintf("payload exceeds %d bytes", MaxPayloadSize),
		})
		return
	}

	switch err := h.registry.Enqueue(fp, payload); {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "session not found"})
		return
	case errors.Is(err, session.ErrOutboxFull):
		c.JSON(http.StatusTooManyRequests, models.ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("failed to queue payload", "session", fp, "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
		return
	}

	resp := models.OutboxResponse{Fingerprint: fp}
	if info, ok := h.registry.Lookup(fp); ok {
		resp.Pending = info.Pending
	}
	h.logger.Info("queued download payload", "session", fp, "bytes", len(payload), "pending", resp.Pending)
	c.JSON(http.StatusAccepted, resp)
}

// ListUploads godoc
// @Summary List uploads
// @Description Returns decrypted uploads journalled for a session, newest first
// @Tags sessions
// @Produce json
// @Param fingerprint path string true "Session fingerprint"
// @Param limit query int false "Maximum uploads to return (default 50, max 500)"
// @Success 200 {object} models.UploadListResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /sessions/{fingerprint}/uploads [get]
func (h *Handler) ListUploads(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "upload journal disabled"})
		return
	}
	fp := c.Param("fingerprint")
	ctx := c.Request.Context()

	limit := defaultUploadLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxUploadLimit)
	}

	// Evicted sessions are still readable from the journal.
	if _, err := h.store.GetSession(ctx, fp); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "session not found"})
			return
		}
		h.logger.Error("failed to read session", "session", fp, "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
		return
	}

	uploads, err := h.store.ListUploads(ctx, fp, limit)
	if err != nil {
		h.logger.Error("failed to list uploads", "session", fp, "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
		return
	}
	total, err := h.store.CountUploads(ctx, fp)
	if err != nil {
		h.logger.Error("failed to count uploads", "session", fp, "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
		return
	}

	resp := models.UploadListResponse{
		Fingerprint: fp,
		Uploads:     make([]models.UploadResponse, 0, len(uploads)),
		Count:       len(uploads),
		Total:       total,
	}
	for _, u := range uploads {
		resp.Uploads = append(resp.Uploads, models.UploadResponse{
			ID:         u.ID,
			Key:        u.Key,
			HasKey:     u.HasKey,
			Value:      u.Value,
			ReceivedAt: u.ReceivedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}
