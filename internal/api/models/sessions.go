package models

import "time"

// SessionResponse describes a live session. The raw client id is the
// client's public key and is included for correlation only.
type SessionResponse struct {
	Fingerprint string    `json:"fingerprint"`
	ClientID    string    `json:"client_id"`
	Peer        string    `json:"peer"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Pending     int       `json:"pending"`
}

// SessionListResponse is the body of GET /sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

// Payload encodings accepted by OutboxRequest.
const (
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

// OutboxRequest queues a payload for the session's next download poll.
type OutboxRequest struct {
	Payload  string `json:"payload" binding:"required"`
	Encoding string `json:"encoding,omitempty" binding:"omitempty,oneof=text base64"`
}

// OutboxResponse reports the queue depth after an enqueue.
type OutboxResponse struct {
	Fingerprint string `json:"fingerprint"`
	Pending     int    `json:"pending"`
}

// UploadResponse is one journalled upload.
type UploadResponse struct {
	ID         string    `json:"id"`
	Key        string    `json:"key,omitempty"`
	HasKey     bool      `json:"has_key"`
	Value      string    `json:"value"`
	ReceivedAt time.Time `json:"received_at"`
}

// UploadListResponse is the body of GET /sessions/{fingerprint}/uploads.
type UploadListResponse struct {
	Fingerprint string           `json:"fingerprint"`
	Uploads     []UploadResponse `json:"uploads"`
	Count       int              `json:"count"`
	Total       int64            `json:"total"`
}
