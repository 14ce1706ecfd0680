// Package notiontest provides an in-memory stand-in for the Notion client.
package notiontest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finbot/finbot/internal/notion"
)

// NewPage builds a page whose properties look like API output.
func NewPage(id string, props map[string]notion.FieldValue) notion.Page {
	p := notion.Page{ID: id, CreatedTime: time.Now().UTC(), Properties: map[string]json.RawMessage{}}
	for name, v := range props {
		p.Properties[name] = Raw(v)
	}
	return p
}

// Raw renders one value as an API property object, including plain_text for text kinds.
func Raw(v notion.FieldValue) json.RawMessage {
	obj := map[string]any{"type": string(v.Kind())}
	switch v := v.(type) {
	case notion.Title:
		obj["title"] = []any{map[string]any{"plain_text": string(v), "text": map[string]any{"content": string(v)}}}
	case notion.Text:
		obj["rich_text"] = []any{map[string]any{"plain_text": string(v), "text": map[string]any{"content": string(v)}}}
	case notion.Formula:
		f := map[string]any{"type": v.Type}
		if v.Type == "date" {
			f["date"] = map[string]any{"start": v.Value}
		} else {
			f[v.Type] = v.Value
		}
		obj["formula"] = f
	case notion.Rollup:
		obj["rollup"] = map[string]any{"type": v.Type, v.Type: v.Value}
	case notion.Empty:
		obj[string(v.Of)] = nil
	default:
		enc, err := notion.Encode(v)
		if err != nil {
			panic(err)
		}
		for k, e := range enc {
			obj[k] = e
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	return b
}

// Call records one write made against the fake.
type Call struct {
	Method     string
	DatabaseID string
	PageID     string
	Properties map[string]any
}

// Store is a thread-safe fake of the Notion client surface used by the bot.
type Store struct {
	mu         sync.Mutex
	pages      map[string][]notion.Page
	schemas    map[string]*notion.Database
	calls      []Call
	seq        int
	failNext   map[string]error
	failAlways map[string]error
}

func New() *Store {
	return &Store{
		pages:      map[string][]notion.Page{},
		schemas:    map[string]*notion.Database{},
		failNext:   map[string]error{},
		failAlways: map[string]error{},
	}
}

// Seed appends records to a database.
func (s *Store) Seed(databaseID string, pages ...notion.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[databaseID] = append(s.pages[databaseID], pages...)
}

// SetSchema registers a database definition for RetrieveDatabase.
func (s *Store) SetSchema(databaseID string, props map[string]notion.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := &notion.Database{ID: databaseID, Properties: map[string]notion.DatabaseProperty{}}
	for name, k := range props {
		db.Properties[name] = notion.DatabaseProperty{Name: name, Type: k}
	}
	s.schemas[databaseID] = db
}

// FailNext makes the next call to method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method] = err
}

// FailAlways makes every call to method return err.
func (s *Store) FailAlways(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAlways[method] = err
}

func (s *Store) failure(method string) error {
	if err, ok := s.failNext[method]; ok {
		delete(s.failNext, method)
		return err
	}
	return s.failAlways[method]
}

// Calls returns recorded writes.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Pages returns a copy of the live records in a database.
func (s *Store) Pages(databaseID string) []notion.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notion.Page
	for _, p := range s.pages[databaseID] {
		if !p.Archived {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure("Ping")
}

func (s *Store) RetrieveDatabase(ctx context.Context, databaseID string) (*notion.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RetrieveDatabase"); err != nil {
		return nil, err
	}
	db, ok := s.schemas[databaseID]
	if !ok {
		return nil, &notion.APIError{Status: 404, Code: "object_not_found", Message: "database " + databaseID}
	}
	cp := *db
	return &cp, nil
}

func (s *Store) Query(ctx context.Context, databaseID string, filter map[string]any) ([]notion.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("Query"); err != nil {
		return nil, err
	}
	var out []notion.Page
	for _, p := range s.pages[databaseID] {
		if !p.Archived && Match(p, filter) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) QuerySorted(ctx context.Context, databaseID string, filter map[string]any, sorts []notion.Sort) ([]notion.Page, error) {
	pages, err := s.Query(ctx, databaseID, filter)
	if err != nil {
		return nil, err
	}
	for _, so := range sorts {
		if so.Timestamp == "created_time" {
			desc := so.Direction == "descending"
			sort.SliceStable(pages, func(i, j int) bool {
				if desc {
					return pages[i].CreatedTime.After(pages[j].CreatedTime)
				}
				return pages[i].CreatedTime.Before(pages[j].CreatedTime)
			})
		}
	}
	return pages, nil
}

func (s *Store) Latest(ctx context.Context, databaseID string) (*notion.Page, error) {
	pages, err := s.QuerySorted(ctx, databaseID, nil, []notion.Sort{{Timestamp: "created_time", Direction: "descending"}})
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, notion.ErrNotFound
	}
	return &pages[0], nil
}

func (s *Store) Create(ctx context.Context, databaseID string, props map[string]any) (*notion.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Create", DatabaseID: databaseID, Properties: props})
	if err := s.failure("Create"); err != nil {
		return nil, err
	}
	s.seq++
	p := notion.Page{
		ID:          fmt.Sprintf("page-%d", s.seq),
		CreatedTime: time.Now().UTC().Add(time.Duration(s.seq) * time.Millisecond),
		Properties:  map[string]json.RawMessage{},
	}
	applyProps(&p, props)
	s.pages[databaseID] = append(s.pages[databaseID], p)
	return &p, nil
}

func (s *Store) Update(ctx context.Context, pageID string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Update", PageID: pageID, Properties: props})
	if err := s.failure("Update"); err != nil {
		return err
	}
	p := s.find(pageID)
	if p == nil {
		return &notion.APIError{Status: 404, Code: "object_not_found", Message: "page " + pageID}
	}
	applyProps(p, props)
	return nil
}

func (s *Store) Archive(ctx context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Archive", PageID: pageID})
	if err := s.failure("Archive"); err != nil {
		return err
	}
	p := s.find(pageID)
	if p == nil {
		return &notion.APIError{Status: 404, Code: "object_not_found", Message: "page " + pageID}
	}
	p.Archived = true
	return nil
}

func (s *Store) ListTitles(ctx context.Context, databaseID string) ([]string, error) {
	pages, err := s.Query(ctx, databaseID, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range pages {
		if t := p.Title(); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) FindByTitle(ctx context.Context, databaseID, name string) (string, error) {
	pages, err := s.Query(ctx, databaseID, nil)
	if err != nil {
		return "", err
	}
	p, ok := notion.MatchTitle(pages, name)
	if !ok {
		return "", fmt.Errorf("%w: %q", notion.ErrNotFound, name)
	}
	return p.ID, nil
}

func (s *Store) find(pageID string) *notion.Page {
	for db := range s.pages {
		for i := range s.pages[db] {
			if s.pages[db][i].ID == pageID {
				return &s.pages[db][i]
			}
		}
	}
	return nil
}

// applyProps stores wire-shaped properties back as API-shaped ones.
func applyProps(p *notion.Page, props map[string]any) {
	for name, v := range props {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		obj := map[string]any{}
		for k, e := range m {
			obj["type"] = k
			obj[k] = e
			if k == "title" || k == "rich_text" {
				obj[k] = withPlainText(e)
			}
		}
		b, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		p.Properties[name] = b
	}
}

func withPlainText(v any) any {
	segs, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(segs))
	for _, s := range segs {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		cp := map[string]any{}
		for k, e := range m {
			cp[k] = e
		}
		if text, ok := m["text"].(map[string]any); ok {
			cp["plain_text"] = text["content"]
		}
		out = append(out, cp)
	}
	return out
}

// Match evaluates the subset of the filter language the bot produces.
func Match(p notion.Page, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if and, ok := filter["and"].([]any); ok {
		for _, f := range and {
			if m, ok := f.(map[string]any); ok && !Match(p, m) {
				return false
			}
		}
		return true
	}
	if or, ok := filter["or"].([]any); ok {
		for _, f := range or {
			if m, ok := f.(map[string]any); ok && Match(p, m) {
				return true
			}
		}
		return false
	}

	prop, _ := filter["property"].(string)
	v, ok, err := p.Property(prop)
	if !ok || err != nil {
		return false
	}
	for key, cond := range filter {
		if key == "property" {
			continue
		}
		c, ok := cond.(map[string]any)
		if !ok {
			continue
		}
		for op, want := range c {
			if !matchCond(v.Plain(), op, want) {
				return false
			}
		}
	}
	return true
}

func matchCond(got any, op string, want any) bool {
	switch op {
	case "is_empty":
		return got == nil || got == "" || isEmptyList(got)
	case "is_not_empty":
		return !(got == nil || got == "" || isEmptyList(got))
	}
	switch g := got.(type) {
	case []string:
		w := fmt.Sprint(want)
		has := false
		for _, e := range g {
			if e == w {
				has = true
			}
		}
		if op == "does_not_contain" {
			return !has
		}
		return has
	case float64:
		var w float64
		switch n := want.(type) {
		case float64:
			w = n
		case int:
			w = float64(n)
		default:
			return false
		}
		switch op {
		case "equals":
			return g == w
		case "does_not_equal":
			return g != w
		case "greater_than":
			return g > w
		case "less_than":
			return g < w
		case "greater_than_or_equal_to":
			return g >= w
		case "less_than_or_equal_to":
			return g <= w
		}
	case bool:
		w, _ := want.(bool)
		if op == "equals" {
			return g == w
		}
		return g != w
	case string:
		w := fmt.Sprint(want)
		switch op {
		case "equals":
			return strings.EqualFold(g, w)
		case "does_not_equal":
			return !strings.EqualFold(g, w)
		case "contains":
			return strings.Contains(strings.ToLower(g), strings.ToLower(w))
		case "does_not_contain":
			return !strings.Contains(strings.ToLower(g), strings.ToLower(w))
		case "on_or_after":
			return g[:min(len(g), 10)] >= w[:min(len(w), 10)]
		case "on_or_before":
			return g[:min(len(g), 10)] <= w[:min(len(w), 10)]
		case "before":
			return g[:min(len(g), 10)] < w[:min(len(w), 10)]
		case "after":
			return g[:min(len(g), 10)] > w[:min(len(w), 10)]
		}
	}
	return false
}

func isEmptyList(v any) bool {
	l, ok := v.([]string)
	return ok && len(l) == 0
}
