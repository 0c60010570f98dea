package rewrite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
)

func testSchema(t *testing.T) *entity.Schema {
	t.Helper()
	s := &entity.Schema{
		Name:  "Doc",
		Shape: entity.ShapeBlob,
		Fields: []entity.Field{
			{Name: "status", Kind: ir.KindString, Tag: "st"},
			{Name: "size", Kind: ir.KindInt, Tag: "size"},
			{Name: "at", Kind: ir.KindTime, Tag: "at"},
			{Name: "title", Kind: ir.KindString},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

func TestForTags(t *testing.T) {
	s := testSchema(t)
	F, Str, Int := queryir.F, queryir.Str, queryir.Int

	tests := []struct {
		name     string
		body     queryir.Expr
		expected string
		pure     bool
	}{
		{
			name:     "string tag",
			body:     queryir.Eq(F("status"), Str("a")),
			expected: `tags["st"] == "a"`,
			pure:     true,
		},
		{
			name:     "int tag encodes literal",
			body:     queryir.Gt(F("size"), Int(-1)),
			expected: `tags["size"] > "09223372036854775807"`,
			pure:     true,
		},
		{
			name:     "flipped literal",
			body:     queryir.Gt(Int(2), F("size")),
			expected: `tags["size"] < "09223372036854775810"`,
			pure:     true,
		},
		{
			name:     "null literal",
			body:     queryir.Eq(F("size"), queryir.C(ir.IRNull{})),
			expected: `tags["size"] == null`,
			pure:     true,
		},
		{
			name:     "untagged field becomes placeholder",
			body:     queryir.AndOf(queryir.Eq(F("status"), Str("a")), queryir.Eq(F("title"), Str("x"))),
			expected: `tags["st"] == "a" && _.title == "x"`,
		},
		{
			name:     "string call keeps tag",
			body:     queryir.CallOf(queryir.MethodStartsWith, F("status"), Str("a")),
			expected: `tags["st"].startsWith("a")`,
			pure:     true,
		},
		{
			name:     "int call needs body",
			body:     queryir.Eq(queryir.CallOf(queryir.MethodSize, F("title")), F("size")),
			expected: `_.title.size() == _.size`,
		},
		{
			name:     "kind mismatch needs body",
			body:     queryir.Eq(F("size"), Str("3")),
			expected: `_.size == "3"`,
		},
		{
			name:     "negation",
			body:     queryir.NotOf(queryir.Lt(F("at"), queryir.C(ir.NewIRTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))),
			expected: `!(tags["at"] < "2024-01-01T00:00:00.000000000Z")`,
			pure:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := queryir.Where(tt.body)
			before := pred.String()

			got, err := ForTags(pred, s, true)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, queryir.Render(got.Body))
			assert.Equal(t, tt.pure, IsPureTag(got))
			assert.Equal(t, before, pred.String())
		})
	}
}

func TestForTagsDisabled(t *testing.T) {
	_, err := ForTags(queryir.Where(queryir.Bool(true)), testSchema(t), false)
	require.Error(t, err)
	assert.True(t, queryerr.IsConfigMisuse(err))
}

func TestForTagsNil(t *testing.T) {
	got, err := ForTags(nil, testSchema(t), true)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestForTagsIsSoundPreFilter checks that tag-only evaluation never
// contradicts evaluation of the original predicate on the full entity.
func TestForTagsIsSoundPreFilter(t *testing.T) {
	s := testSchema(t)
	F, Str, Int := queryir.F, queryir.Str, queryir.Int
	jan := queryir.C(ir.NewIRTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	preds := []queryir.Expr{
		queryir.Eq(F("status"), Str("a")),
		queryir.Ge(F("size"), Int(0)),
		queryir.Lt(F("size"), Int(-3)),
		queryir.NotOf(queryir.Gt(F("size"), Int(5))),
		queryir.OrOf(queryir.Eq(F("status"), Str("b")), queryir.CallOf(queryir.MethodContains, F("title"), Str("x"))),
		queryir.AndOf(queryir.Ge(F("at"), jan), queryir.Eq(F("title"), Str("x"))),
		queryir.Eq(F("size"), queryir.C(ir.IRNull{})),
		queryir.Ne(F("status"), Str("a")),
	}

	var ents []*entity.Entity
	for i, fields := range []ir.IRObject{
		{"status": ir.IRString("a"), "size": ir.IRInt(-5), "title": ir.IRString("x")},
		{"status": ir.IRString("b"), "size": ir.IRInt(0), "at": ir.NewIRTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))},
		{"size": ir.IRInt(7), "title": ir.IRString("box")},
		{"status": ir.IRString("c"), "at": ir.NewIRTime(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)), "title": ir.IRString("x")},
	} {
		e, err := entity.New(s, entity.BlobLocator(string(rune('a'+i))), fields)
		require.NoError(t, err)
		ents = append(ents, e)
	}

	for _, body := range preds {
		pred := queryir.Where(body)
		rewritten, err := ForTags(pred, s, true)
		require.NoError(t, err)
		pure := IsPureTag(rewritten)

		for _, e := range ents {
			want, err := queryir.Eval(pred, e)
			require.NoError(t, err)
			tri, err := queryir.EvalTri(rewritten.Body, queryir.Bindings{Tags: e.Tags})
			require.NoError(t, err)

			switch tri {
			case queryir.False:
				assert.False(t, want, "%s rejected %s by tags", pred, e.Locator)
			case queryir.True:
				if pure {
					assert.True(t, want, "%s accepted %s by tags", pred, e.Locator)
				}
			}
		}
	}
}
