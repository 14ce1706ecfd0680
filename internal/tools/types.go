// Package tools defines the Tool type and the finance tools the agent can call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool represents a callable function the LLM can invoke
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Execute     func(ctx context.Context, input map[string]interface{}) (string, error)
}

type userKey struct{}

// WithUserID attaches the requesting user's id to ctx. Destructive operations
// are confirmed per user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the id set by WithUserID, or "".
func UserID(ctx context.Context) string {
	s, _ := ctx.Value(userKey{}).(string)
	return s
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(b), nil
}

