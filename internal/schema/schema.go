// Package schema caches per-table field definitions fetched from the remote store.
package schema

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/finbot/finbot/internal/notion"
)

// ErrUnknownTable is returned when a table has no configured database.
var ErrUnknownTable = errors.New("schema: table not configured")

// Schema maps field name to field kind.
type Schema map[string]notion.Kind

// Has reports whether field is declared.
func (s Schema) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// TitleField returns the name of the title field, or "" when none is declared.
func (s Schema) TitleField() string {
	for name, k := range s {
		if k == notion.KindTitle {
			return name
		}
	}
	return ""
}

// Fields returns field names in sorted order.
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s Schema) Clone() Schema {
	if s == nil {
		return Schema{}
	}
	return maps.Clone(s)
}

// Fetcher retrieves the live schema of a table.
type Fetcher interface {
	Fetch(ctx context.Context, table string) (Schema, error)
}

// DatabaseRetriever is the subset of the Notion client used for schema fetches.
type DatabaseRetriever interface {
	RetrieveDatabase(ctx context.Context, databaseID string) (*notion.Database, error)
}

// NotionFetcher reads schemas from database metadata.
type NotionFetcher struct {
	client    DatabaseRetriever
	databases map[string]string
}

func NewNotionFetcher(client DatabaseRetriever, databases map[string]string) *NotionFetcher {
	return &NotionFetcher{client: client, databases: databases}
}

func (f *NotionFetcher) Fetch(ctx context.Context, table string) (Schema, error) {
	id := f.databases[table]
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	db, err := f.client.RetrieveDatabase(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s database: %w", table, err)
	}
	s := make(Schema, len(db.Properties))
	for name, p := range db.Properties {
		s[name] = p.Type
	}
	return s, nil
}
