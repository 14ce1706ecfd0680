// Package resolver turns human-readable relation values into record identifiers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finbot/finbot/internal/notion"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnresolved is returned when a value matches no record and is not already an identifier.
var ErrUnresolved = errors.New("resolver: value could not be resolved")

// DefaultRelations maps relation field names to the table they point at.
var DefaultRelations = map[string]string{
	"Categories":      "categories",
	"Category":        "categories",
	"Accounts":        "accounts",
	"Account":         "accounts",
	"From Account":    "accounts",
	"To Account":      "accounts",
	"Payment Account": "accounts",
	"Subscription":    "subscriptions",
	"Loan":            "loans",
}

// TitleFinder looks a record up by title. *notion.Client satisfies it.
type TitleFinder interface {
	FindByTitle(ctx context.Context, databaseID, name string) (string, error)
}

type Resolver struct {
	finder    TitleFinder
	databases map[string]string
	relations map[string]string
}

func New(finder TitleFinder, databases map[string]string) *Resolver {
	return &Resolver{finder: finder, databases: databases, relations: DefaultRelations}
}

// LooksLikeID reports whether s has the shape of a remote record identifier,
// with or without hyphens.
func LooksLikeID(s string) bool {
	if len(s) != 36 && len(s) != 32 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Target returns the table a relation field points at.
func (r *Resolver) Target(field string) (string, bool) {
	t, ok := r.relations[field]
	return t, ok
}

// Resolve maps one name to an identifier. Identifier-shaped values are returned
// unchanged. Fields outside the relation map only accept identifiers.
func (r *Resolver) Resolve(ctx context.Context, field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if LooksLikeID(value) {
		return value, nil
	}
	table, ok := r.relations[field]
	if !ok {
		return "", fmt.Errorf("%w: %s has no relation target for %q", ErrUnresolved, field, value)
	}
	dbID := r.databases[table]
	if dbID == "" {
		return "", fmt.Errorf("%w: %s table is not configured", ErrUnresolved, table)
	}
	id, err := r.finder.FindByTitle(ctx, dbID, value)
	if err != nil {
		if notion.IsNotFound(err) {
			return "", fmt.Errorf("%w: no %s named %q", ErrUnresolved, table, value)
		}
		return "", fmt.Errorf("find %s %q: %w", table, value, err)
	}
	return id, nil
}

// ResolveAll accepts a single name or a list of names. Names that match nothing
// are returned in unresolved; transport failures abort.
func (r *Resolver) ResolveAll(ctx context.Context, field string, value any) (ids, unresolved []string, err error) {
	for _, name := range names(value) {
		id, err := r.Resolve(ctx, field, name)
		switch {
		case err == nil:
			ids = append(ids, id)
		case errors.Is(err, ErrUnresolved):
			log.Warn().Str("field", field).Str("value", name).Msg("relation value not resolved")
			unresolved = append(unresolved, name)
		default:
			return nil, nil, err
		}
	}
	return ids, unresolved, nil
}

func names(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, names(e)...)
		}
		return out
	case map[string]any:
		// {"id": "..."} or {"name": "..."}
		if id, ok := t["id"].(string); ok {
			return []string{id}
		}
		if n, ok := t["name"].(string); ok {
			return []string{n}
		}
	}
	return nil
}

// RewriteFilter returns a copy of filter with relation conditions whose values
// are names replaced by identifiers.
func (r *Resolver) RewriteFilter(ctx context.Context, filter map[string]any) (map[string]any, error) {
	if len(filter) == 0 {
		return filter, nil
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = v
	}

	for _, key := range []string{"and", "or"} {
		members, ok := filter[key].([]any)
		if !ok {
			continue
		}
		rewritten := make([]any, 0, len(members))
		for _, m := range members {
			leaf, ok := m.(map[string]any)
			if !ok {
				rewritten = append(rewritten, m)
				continue
			}
			nf, err := r.RewriteFilter(ctx, leaf)
			if err != nil {
				return nil, err
			}
			rewritten = append(rewritten, nf)
		}
		out[key] = rewritten
	}

	prop, _ := filter["property"].(string)
	cond, ok := filter["relation"].(map[string]any)
	if prop == "" || !ok {
		return out, nil
	}
	nc := make(map[string]any, len(cond))
	for op, v := range cond {
		name, isStr := v.(string)
		if !isStr || LooksLikeID(name) {
			nc[op] = v
			continue
		}
		id, err := r.Resolve(ctx, prop, name)
		if err != nil {
			return nil, err
		}
		nc[op] = id
	}
	out["relation"] = nc
	return out, nil
}
