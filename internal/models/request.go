package models

// OperationRequest for POST /api/v1/operations
type OperationRequest struct {
	UserID    string         `json:"user_id"`
	Operation map[string]any `json:"operation"`
	IsRetry   bool           `json:"is_retry"`
}

// UserRequest for POST /api/v1/operations/confirm and /cancel
type UserRequest struct {
	UserID string `json:"user_id"`
}

// ChatRequest for POST /api/v1/chat
type ChatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	Timeout int    `json:"timeout"`
}

func (r *ChatRequest) SetDefaults() {
	if r.Timeout == 0 {
		r.Timeout = 60
	}
	if r.Timeout < 10 {
		r.Timeout = 10
	}
	if r.Timeout > 300 {
		r.Timeout = 300
	}
}
