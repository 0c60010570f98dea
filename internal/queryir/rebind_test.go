package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	orig := And{
		Left:  Eq(Field{Param: "x", Name: "a"}, Int(1)),
		Right: CallOf(MethodContains, Field{Param: "x", Name: "b"}, Str("q")),
	}

	got := Rebind(orig, "x", "e")

	assert.Equal(t, `e.a == 1 && e.b.contains("q")`, Render(got))
	assert.Equal(t, `x.a == 1 && x.b.contains("q")`, Render(orig), "input must not be modified")
	assert.Equal(t, orig, Rebind(orig, "x", "x"))
}

func TestRebindLeavesOtherParams(t *testing.T) {
	orig := Eq(Field{Param: PlaceholderParam, Name: "a"}, Field{Param: "x", Name: "b"})
	assert.Equal(t, `_.a == e.b`, Render(Rebind(orig, "x", "e")))
}

func TestConjoin(t *testing.T) {
	a := &Predicate{Param: "e", Body: Eq(F("status"), Str("a"))}
	b := &Predicate{Param: "o", Body: Gt(Field{Param: "o", Name: "id"}, Int(1))}

	got := Conjoin(a, b)
	require.NoError(t, Validate(got))
	assert.Equal(t, `e => e.status == "a" && e.id > 1`, got.String())
	assert.Equal(t, []string{"e"}, Params(got.Body))

	assert.Same(t, a, Conjoin(a, nil))
	assert.Same(t, b, Conjoin(nil, b))
}

func TestConjoinIsIntersection(t *testing.T) {
	a := &Predicate{Param: "e", Body: Eq(F("status"), Str("a"))}
	b := &Predicate{Param: "o", Body: Gt(Field{Param: "o", Name: "id"}, Int(1))}
	joined := Conjoin(a, b)

	rows := []row{
		{"status": Str("a").Value, "id": Int(1).Value},
		{"status": Str("a").Value, "id": Int(3).Value},
		{"status": Str("b").Value, "id": Int(3).Value},
	}
	for _, r := range rows {
		wa, err := Eval(a, r)
		require.NoError(t, err)
		wb, err := Eval(b, r)
		require.NoError(t, err)
		got, err := Eval(joined, r)
		require.NoError(t, err)
		assert.Equal(t, wa && wb, got)
	}
}

func TestFieldNames(t *testing.T) {
	e := OrOf(
		Eq(F("b"), Int(1)),
		AndOf(Eq(F("a"), Int(1)), CallOf(MethodContains, F("b"), Str("x"))),
		Eq(TagRef{Tag: "t"}, Str("1")),
	)
	assert.Equal(t, []string{"a", "b"}, FieldNames(e))
	assert.Empty(t, FieldNames(Param{Name: "e"}))

	proj := &Projection{Param: "e", Exprs: []Expr{F("z"), F("a"), F("z")}}
	assert.Equal(t, []string{"a", "z"}, proj.FieldNames())
}

func TestAndOfOrOf(t *testing.T) {
	assert.Nil(t, AndOf())
	assert.Equal(t, F("a"), AndOf(F("a")))
	assert.Equal(t, Or{Left: Or{Left: F("a"), Right: F("b")}, Right: F("c")}, OrOf(F("a"), F("b"), F("c")))
}
