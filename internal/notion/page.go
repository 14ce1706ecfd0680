package notion

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Page is one record in a database.
type Page struct {
	ID          string                     `json:"id"`
	CreatedTime time.Time                  `json:"created_time"`
	Archived    bool                       `json:"archived"`
	URL         string                     `json:"url,omitempty"`
	Properties  map[string]json.RawMessage `json:"properties"`
}

// Title returns the text of the page's title property, or "" when it has none.
func (p Page) Title() string {
	for _, raw := range p.Properties {
		r := gjson.ParseBytes(raw)
		if r.Get("type").String() == string(KindTitle) {
			return plainText(r.Get("title"))
		}
	}
	return ""
}

// Property decodes a single named property.
func (p Page) Property(name string) (FieldValue, bool, error) {
	raw, ok := p.Properties[name]
	if !ok {
		return nil, false, nil
	}
	v, err := Decode(raw)
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}

// Flatten projects every decodable property to its plain value and adds the record id.
// Properties that fail to decode are skipped.
func (p Page) Flatten() map[string]any {
	out := make(map[string]any, len(p.Properties)+1)
	for name, raw := range p.Properties {
		v, err := Decode(raw)
		if err != nil {
			continue
		}
		out[name] = v.Plain()
	}
	out["id"] = p.ID
	return out
}

// Number is a convenience accessor for numeric properties, including numeric formulas and rollups.
func (p Page) Number(name string) (float64, bool) {
	v, ok, err := p.Property(name)
	if !ok || err != nil {
		return 0, false
	}
	switch v := v.(type) {
	case Number:
		return float64(v), true
	case Formula:
		f, ok := v.Value.(float64)
		return f, ok
	case Rollup:
		f, ok := v.Value.(float64)
		return f, ok
	}
	return 0, false
}

// Database is the metadata for one database, including its property schema.
type Database struct {
	ID         string                      `json:"id"`
	Title      []TextSegment               `json:"title"`
	Properties map[string]DatabaseProperty `json:"properties"`
}

type TextSegment struct {
	PlainText string `json:"plain_text"`
}

type DatabaseProperty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Kind   `json:"type"`
}

func (d Database) Name() string {
	parts := make([]string, 0, len(d.Title))
	for _, t := range d.Title {
		parts = append(parts, t.PlainText)
	}
	return strings.Join(parts, "")
}

// PropertyNames returns property names in sorted order.
func (d Database) PropertyNames() []string {
	names := make([]string, 0, len(d.Properties))
	for n := range d.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sort is a query sort clause.
type Sort struct {
	Property  string `json:"property,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Direction string `json:"direction"`
}
