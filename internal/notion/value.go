package notion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is a remote property type as it appears on the wire.
type Kind string

const (
	KindTitle       Kind = "title"
	KindNumber      Kind = "number"
	KindDate        Kind = "date"
	KindCheckbox    Kind = "checkbox"
	KindSelect      Kind = "select"
	KindMultiSelect Kind = "multi_select"
	KindRelation    Kind = "relation"
	KindFormula     Kind = "formula"
	KindRollup      Kind = "rollup"
	KindText        Kind = "rich_text"
	KindURL         Kind = "url"
	KindEmail       Kind = "email"
	KindPhone       Kind = "phone_number"
)

var (
	ErrReadOnly        = errors.New("notion: property kind is read-only")
	ErrUnsupportedKind = errors.New("notion: unsupported property kind")
)

// NormalizeKind maps the short aliases used in prompts and fallback tables onto wire kinds.
func NormalizeKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return KindText
	case "phone":
		return KindPhone
	case "multiselect":
		return KindMultiSelect
	}
	return Kind(strings.ToLower(strings.TrimSpace(s)))
}

// Writable reports whether values of this kind can be sent on create or update.
func (k Kind) Writable() bool {
	switch k {
	case KindTitle, KindNumber, KindDate, KindCheckbox, KindSelect, KindMultiSelect,
		KindRelation, KindText, KindURL, KindEmail, KindPhone:
		return true
	}
	return false
}

// FieldValue is a typed property value. The set of implementations is closed.
type FieldValue interface {
	Kind() Kind
	// Plain is the flat projection used in query results.
	Plain() any
	isFieldValue()
}

type (
	Title       string
	Number      float64
	Date        string
	Checkbox    bool
	Select      string
	MultiSelect []string
	Relation    []string
	Text        string
	URL         string
	Email       string
	Phone       string
)

// Formula is a computed value; Type is the formula result type (number, string, boolean, date).
type Formula struct {
	Type  string
	Value any
}

// Rollup is an aggregated value; array rollups project to their length.
type Rollup struct {
	Type  string
	Value any
}

// Empty is a property that is present on the record but holds no value.
type Empty struct{ Of Kind }

func (Title) Kind() Kind       { return KindTitle }
func (Number) Kind() Kind      { return KindNumber }
func (Date) Kind() Kind        { return KindDate }
func (Checkbox) Kind() Kind    { return KindCheckbox }
func (Select) Kind() Kind      { return KindSelect }
func (MultiSelect) Kind() Kind { return KindMultiSelect }
func (Relation) Kind() Kind    { return KindRelation }
func (Text) Kind() Kind        { return KindText }
func (URL) Kind() Kind         { return KindURL }
func (Email) Kind() Kind       { return KindEmail }
func (Phone) Kind() Kind       { return KindPhone }
func (Formula) Kind() Kind     { return KindFormula }
func (Rollup) Kind() Kind      { return KindRollup }
func (e Empty) Kind() Kind     { return e.Of }

func (v Title) Plain() any       { return string(v) }
func (v Number) Plain() any      { return float64(v) }
func (v Date) Plain() any        { return string(v) }
func (v Checkbox) Plain() any    { return bool(v) }
func (v Select) Plain() any      { return string(v) }
func (v MultiSelect) Plain() any { return []string(v) }
func (v Relation) Plain() any    { return []string(v) }
func (v Text) Plain() any        { return string(v) }
func (v URL) Plain() any         { return string(v) }
func (v Email) Plain() any       { return string(v) }
func (v Phone) Plain() any       { return string(v) }
func (v Formula) Plain() any     { return v.Value }
func (v Rollup) Plain() any      { return v.Value }
func (Empty) Plain() any         { return nil }

func (Title) isFieldValue()       {}
func (Number) isFieldValue()      {}
func (Date) isFieldValue()        {}
func (Checkbox) isFieldValue()    {}
func (Select) isFieldValue()      {}
func (MultiSelect) isFieldValue() {}
func (Relation) isFieldValue()    {}
func (Text) isFieldValue()        {}
func (URL) isFieldValue()         {}
func (Email) isFieldValue()       {}
func (Phone) isFieldValue()       {}
func (Formula) isFieldValue()     {}
func (Rollup) isFieldValue()      {}
func (Empty) isFieldValue()       {}

// Encode renders a value in the shape the pages endpoints expect.
func Encode(v FieldValue) (map[string]any, error) {
	switch v := v.(type) {
	case Title:
		return map[string]any{"title": richText(string(v))}, nil
	case Text:
		return map[string]any{"rich_text": richText(string(v))}, nil
	case Number:
		return map[string]any{"number": float64(v)}, nil
	case Date:
		return map[string]any{"date": map[string]any{"start": string(v)}}, nil
	case Checkbox:
		return map[string]any{"checkbox": bool(v)}, nil
	case Select:
		return map[string]any{"select": map[string]any{"name": string(v)}}, nil
	case MultiSelect:
		opts := make([]any, 0, len(v))
		for _, name := range v {
			opts = append(opts, map[string]any{"name": name})
		}
		return map[string]any{"multi_select": opts}, nil
	case Relation:
		refs := make([]any, 0, len(v))
		for _, id := range v {
			refs = append(refs, map[string]any{"id": id})
		}
		return map[string]any{"relation": refs}, nil
	case URL:
		return map[string]any{"url": string(v)}, nil
	case Email:
		return map[string]any{"email": string(v)}, nil
	case Phone:
		return map[string]any{"phone_number": string(v)}, nil
	case Formula, Rollup:
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, v.Kind())
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedKind, v)
}

func richText(s string) []any {
	return []any{map[string]any{"text": map[string]any{"content": s}}}
}

// Decode parses a single property object as returned on a page.
func Decode(raw []byte) (FieldValue, error) {
	r := gjson.ParseBytes(raw)
	kind := Kind(r.Get("type").String())

	switch kind {
	case KindTitle:
		return Title(plainText(r.Get("title"))), nil
	case KindText:
		return Text(plainText(r.Get("rich_text"))), nil
	case KindNumber:
		n := r.Get("number")
		if !n.Exists() || n.Type == gjson.Null {
			return Empty{Of: kind}, nil
		}
		return Number(n.Float()), nil
	case KindDate:
		d := r.Get("date.start")
		if !d.Exists() || d.Type == gjson.Null {
			return Empty{Of: kind}, nil
		}
		return Date(d.String()), nil
	case KindCheckbox:
		return Checkbox(r.Get("checkbox").Bool()), nil
	case KindSelect:
		s := r.Get("select.name")
		if !s.Exists() {
			return Empty{Of: kind}, nil
		}
		return Select(s.String()), nil
	case KindMultiSelect:
		return MultiSelect(stringList(r.Get("multi_select.#.name"))), nil
	case KindRelation:
		return Relation(stringList(r.Get("relation.#.id"))), nil
	case KindURL, KindEmail, KindPhone:
		s := r.Get(string(kind))
		if !s.Exists() || s.Type == gjson.Null {
			return Empty{Of: kind}, nil
		}
		switch kind {
		case KindURL:
			return URL(s.String()), nil
		case KindEmail:
			return Email(s.String()), nil
		}
		return Phone(s.String()), nil
	case KindFormula:
		return decodeFormula(r.Get("formula"))
	case KindRollup:
		return decodeRollup(r.Get("rollup"))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}

func decodeFormula(f gjson.Result) (FieldValue, error) {
	typ := f.Get("type").String()
	switch typ {
	case "number", "string", "boolean":
		return Formula{Type: typ, Value: f.Get(typ).Value()}, nil
	case "date":
		return Formula{Type: typ, Value: f.Get("date.start").Value()}, nil
	}
	return nil, fmt.Errorf("%w: formula type %q", ErrUnsupportedKind, typ)
}

func decodeRollup(r gjson.Result) (FieldValue, error) {
	typ := r.Get("type").String()
	switch typ {
	case "number":
		return Rollup{Type: typ, Value: r.Get("number").Value()}, nil
	case "date":
		return Rollup{Type: typ, Value: r.Get("date.start").Value()}, nil
	case "array":
		return Rollup{Type: typ, Value: int(r.Get("array.#").Int())}, nil
	}
	return nil, fmt.Errorf("%w: rollup type %q", ErrUnsupportedKind, typ)
}

// plainText joins rich text segments, preferring plain_text and falling back to text.content.
func plainText(segments gjson.Result) string {
	var b strings.Builder
	for _, seg := range segments.Array() {
		if p := seg.Get("plain_text"); p.Exists() {
			b.WriteString(p.String())
			continue
		}
		b.WriteString(seg.Get("text.content").String())
	}
	return b.String()
}

func stringList(r gjson.Result) []string {
	arr := r.Array()
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		out = append(out, e.String())
	}
	return out
}
