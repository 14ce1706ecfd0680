package notion_test

import (
	"encoding/json"
	"testing"

	"github.com/finbot/finbot/internal/notion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Projection(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"title joins segments", `{"type":"title","title":[{"plain_text":"Lun"},{"plain_text":"ch"}]}`, "Lunch"},
		{"number", `{"type":"number","number":150}`, 150.0},
		{"null number", `{"type":"number","number":null}`, nil},
		{"date start", `{"type":"date","date":{"start":"2024-05-01","end":null}}`, "2024-05-01"},
		{"checkbox", `{"type":"checkbox","checkbox":true}`, true},
		{"select name", `{"type":"select","select":{"name":"Credit Card"}}`, "Credit Card"},
		{"empty select", `{"type":"select","select":null}`, nil},
		{"multi select", `{"type":"multi_select","multi_select":[{"name":"a"},{"name":"b"}]}`, []string{"a", "b"}},
		{"relation ids", `{"type":"relation","relation":[{"id":"F1"},{"id":"F2"}]}`, []string{"F1", "F2"}},
		{"formula number", `{"type":"formula","formula":{"type":"number","number":42.5}}`, 42.5},
		{"formula string", `{"type":"formula","formula":{"type":"string","string":"75%"}}`, "75%"},
		{"formula date", `{"type":"formula","formula":{"type":"date","date":{"start":"2024-01-01"}}}`, "2024-01-01"},
		{"rollup array counts", `{"type":"rollup","rollup":{"type":"array","array":[{},{},{}]}}`, 3},
		{"rich text falls back to content", `{"type":"rich_text","rich_text":[{"text":{"content":"note"}}]}`, "note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := notion.Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Plain())
		})
	}
}

func TestDecode_UnsupportedKind(t *testing.T) {
	_, err := notion.Decode([]byte(`{"type":"people","people":[]}`))
	assert.ErrorIs(t, err, notion.ErrUnsupportedKind)
}

func TestEncode_WireShapes(t *testing.T) {
	got, err := notion.Encode(notion.Relation{"F1"})
	require.NoError(t, err)
	b, _ := json.Marshal(got)
	assert.JSONEq(t, `{"relation":[{"id":"F1"}]}`, string(b))

	got, err = notion.Encode(notion.Title("Lunch"))
	require.NoError(t, err)
	b, _ = json.Marshal(got)
	assert.JSONEq(t, `{"title":[{"text":{"content":"Lunch"}}]}`, string(b))

	_, err = notion.Encode(notion.Formula{Type: "number", Value: 1.0})
	assert.ErrorIs(t, err, notion.ErrReadOnly)
}

func TestPage_FlattenSkipsUndecodable(t *testing.T) {
	p := notion.Page{
		ID: "p1",
		Properties: map[string]json.RawMessage{
			"Name":   titleProp("Lunch"),
			"Amount": json.RawMessage(`{"type":"number","number":150}`),
			"Owner":  json.RawMessage(`{"type":"people","people":[]}`),
		},
	}
	flat := p.Flatten()
	assert.Equal(t, "p1", flat["id"])
	assert.Equal(t, "Lunch", flat["Name"])
	assert.Equal(t, 150.0, flat["Amount"])
	_, has := flat["Owner"]
	assert.False(t, has)
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, notion.KindText, notion.NormalizeKind("text"))
	assert.Equal(t, notion.KindPhone, notion.NormalizeKind("Phone"))
	assert.Equal(t, notion.KindRelation, notion.NormalizeKind("relation"))
	assert.False(t, notion.KindFormula.Writable())
	assert.True(t, notion.KindRelation.Writable())
}
