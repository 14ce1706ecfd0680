package models

import "time"

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// ChatResponse is returned by POST /api/v1/chat
type ChatResponse struct {
	Status          string `json:"status"`
	Reply           string `json:"reply"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// PendingResponse is returned by GET /api/v1/operations/pending/{userID}
type PendingResponse struct {
	UserID        string     `json:"user_id"`
	Pending       bool       `json:"pending"`
	ID            string     `json:"id,omitempty"`
	OperationType string     `json:"operation_type,omitempty"`
	Table         string     `json:"table,omitempty"`
	Reasoning     string     `json:"reasoning,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}
