package confirm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finbot/finbot/internal/operation"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// Action tells the caller what to do with a submitted operation.
type Action int

const (
	// ActionAwait means the operation was stored and the user must confirm.
	ActionAwait Action = iota
	// ActionExecute means the returned operation is confirmed and should run now.
	ActionExecute
)

func (a Action) String() string {
	if a == ActionExecute {
		return "execute"
	}
	return "await"
}

// Decision is the outcome of Submit.
type Decision struct {
	Action    Action
	Operation operation.Operation
	Pending   Pending
	// Superseded is set when a pending operation of a different type was replaced.
	Superseded bool
}

// Gate implements the NONE -> PENDING -> NONE confirmation state machine per user.
type Gate struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	locks *keyedMutex
}

type Option func(*Gate)

func WithTTL(d time.Duration) Option        { return func(g *Gate) { g.ttl = d } }
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

func NewGate(store Store, opts ...Option) *Gate {
	g := &Gate{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Sweep removes every expired entry.
func (g *Gate) Sweep(ctx context.Context) {
	n, err := g.store.SweepExpired(ctx, g.now())
	if err != nil {
		log.Warn().Err(err).Msg("sweep pending confirmations failed")
		return
	}
	if n > 0 {
		log.Debug().Int("expired", n).Msg("swept pending confirmations")
	}
}

// Submit records a destructive operation or, when a pending operation of the
// same type already exists, releases the stored one for execution. The stored
// operation runs, not the newly submitted one.
func (g *Gate) Submit(ctx context.Context, userID string, op operation.Operation) (Decision, error) {
	unlock := g.locks.Lock(userID)
	defer unlock()

	g.Sweep(ctx)

	current, err := g.live(ctx, userID)
	switch {
	case errors.Is(err, ErrNoPending):
		return g.await(ctx, userID, op, false)
	case err != nil:
		return Decision{}, err
	case current.Operation.Type != op.Type:
		log.Info().
			Str("user", userID).
			Str("replaced", string(current.Operation.Type)).
			Str("with", string(op.Type)).
			Msg("pending operation superseded")
		return g.await(ctx, userID, op, true)
	}

	taken, err := g.store.Take(ctx, userID)
	if errors.Is(err, ErrNoPending) || (err == nil && taken.Expired(g.now())) {
		return g.await(ctx, userID, op, false)
	}
	if err != nil {
		return Decision{}, err
	}
	return Decision{Action: ActionExecute, Operation: taken.Operation, Pending: taken}, nil
}

func (g *Gate) await(ctx context.Context, userID string, op operation.Operation, superseded bool) (Decision, error) {
	p := Pending{
		ID:        ulid.Make().String(),
		Operation: op,
		ExpiresAt: g.now().Add(g.ttl),
	}
	if err := g.store.Upsert(ctx, userID, p); err != nil {
		return Decision{}, fmt.Errorf("store pending: %w", err)
	}
	return Decision{Action: ActionAwait, Operation: op, Pending: p, Superseded: superseded}, nil
}

// Confirm releases the user's pending operation regardless of its type.
func (g *Gate) Confirm(ctx context.Context, userID string) (Pending, error) {
	unlock := g.locks.Lock(userID)
	defer unlock()

	g.Sweep(ctx)

	p, err := g.store.Take(ctx, userID)
	if err != nil {
		return Pending{}, err
	}
	if p.Expired(g.now()) {
		return Pending{}, ErrNoPending
	}
	return p, nil
}

// Cancel discards the user's pending operation. It reports whether one existed.
func (g *Gate) Cancel(ctx context.Context, userID string) (bool, error) {
	unlock := g.locks.Lock(userID)
	defer unlock()

	g.Sweep(ctx)

	if _, err := g.live(ctx, userID); err != nil {
		if errors.Is(err, ErrNoPending) {
			return false, nil
		}
		return false, err
	}
	if err := g.store.Delete(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

// Pending returns the user's live pending operation.
func (g *Gate) Pending(ctx context.Context, userID string) (Pending, error) {
	unlock := g.locks.Lock(userID)
	defer unlock()
	return g.live(ctx, userID)
}

// live reads the entry and removes it when it has expired.
func (g *Gate) live(ctx context.Context, userID string) (Pending, error) {
	p, err := g.store.Peek(ctx, userID)
	if err != nil {
		return Pending{}, err
	}
	if p.Expired(g.now()) {
		if err := g.store.Delete(ctx, userID); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("drop expired pending failed")
		}
		return Pending{}, ErrNoPending
	}
	return p, nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

var (
	affirmative = []string{"yes", "y", "yeah", "yep", "ok", "okay", "confirm", "confirmed", "sure", "go ahead", "do it", "proceed", "haan", "ha"}
	negative    = []string{"no", "n", "nope", "cancel", "abort", "stop", "don't", "dont", "never mind", "nevermind"}
)

// IsAffirmative reports whether a chat reply confirms a pending operation.
func IsAffirmative(text string) bool { return matchReply(text, affirmative) }

// IsNegative reports whether a chat reply cancels a pending operation.
func IsNegative(text string) bool { return matchReply(text, negative) }

func matchReply(text string, words []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, "!.👍 ")
	for _, w := range words {
		if t == w {
			return true
		}
	}
	return false
}
