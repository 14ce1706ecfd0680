// Package confirm gates destructive operations behind a per-user, time-boxed
// confirmation handshake.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finbot/finbot/internal/operation"
)

// ErrNoPending is returned when a user has no live pending operation.
var ErrNoPending = errors.New("confirm: no pending operation")

// DefaultTTL is how long a pending operation waits for confirmation.
const DefaultTTL = 5 * time.Minute

// Pending is an operation awaiting the user's confirmation.
type Pending struct {
	ID        string              `json:"id"`
	Operation operation.Operation `json:"operation"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Expired reports whether the entry is past its deadline at now.
func (p Pending) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Store persists at most one pending entry per user. Take must read and delete atomically.
type Store interface {
	Upsert(ctx context.Context, userID string, p Pending) error
	Peek(ctx context.Context, userID string) (Pending, error)
	Take(ctx context.Context, userID string) (Pending, error)
	Delete(ctx context.Context, userID string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

func encodeOperation(op operation.Operation) ([]byte, error) {
	b, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode pending operation: %w", err)
	}
	return b, nil
}

func decodeOperation(b []byte) (operation.Operation, error) {
	var op operation.Operation
	if err := json.Unmarshal(b, &op); err != nil {
		return op, fmt.Errorf("decode pending operation: %w", err)
	}
	return op, nil
}

// MemoryStore keeps pending entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Pending
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Pending)}
}

func (s *MemoryStore) Upsert(_ context.Context, userID string, p Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = p
	return nil
}

func (s *MemoryStore) Peek(_ context.Context, userID string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[userID]
	if !ok {
		return Pending{}, ErrNoPending
	}
	return p, nil
}

func (s *MemoryStore) Take(_ context.Context, userID string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[userID]
	if !ok {
		return Pending{}, ErrNoPending
	}
	delete(s.entries, userID)
	return p, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.entries {
		if p.Expired(now) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }
