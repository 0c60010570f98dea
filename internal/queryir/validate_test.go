package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
)

func TestValidate_Valid(t *testing.T) {
	preds := []*Predicate{
		Where(Eq(F("status"), Str("a"))),
		Where(F("active")),
		Where(Bool(true)),
		Where(NotOf(OrOf(Lt(F("a"), Int(1)), Ge(F("b"), C(ir.IRNull{}))))),
		Where(CallOf(MethodEndsWith, CallOf(MethodUpper, F("n")), Str("X"))),
		Where(Gt(CallOf(MethodSize, F("n")), Int(2))),
	}
	for _, p := range preds {
		t.Run(p.String(), func(t *testing.T) {
			assert.NoError(t, Validate(p))
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		pred   *Predicate
		errMsg string
	}{
		{"nil", nil, "nil predicate"},
		{"no param", &Predicate{Body: Bool(true)}, "no parameter"},
		{"no body", &Predicate{Param: "e"}, "no body"},
		{"free param", Where(Eq(Field{Param: "x", Name: "a"}, Int(1))), `free parameter "x"`},
		{"string condition", Where(Str("yes")), "used as a condition"},
		{"bad op", Where(Compare{Op: "=~", Left: F("a"), Right: Str("x")}), "unknown comparison operator"},
		{"unknown method", Where(CallOf("matches", F("a"), Str("x"))), `unsupported method "matches"`},
		{"arity", Where(CallOf(MethodContains, F("a"))), "takes 1 argument(s), got 0"},
		{"value call as condition", Where(CallOf(MethodLower, F("a"))), "returns string, not a condition"},
		{"param value", Where(Eq(Param{Name: "e"}, Int(1))), "parameter e used as a value"},
		{"compare of compare", Where(Eq(Eq(F("a"), Int(1)), Bool(true))), "is not a value"},
		{"composite literal", Where(Eq(F("a"), C(ir.IRArray{}))), "composite literal"},
		{"missing operand", Where(And{Left: F("a")}), "missing operand"},
		{"reserved param", &Predicate{Param: PlaceholderParam, Body: Eq(Field{Param: PlaceholderParam, Name: "a"}, Int(1))}, `parameter name "_" is reserved`},
		{"placeholder field", Where(Eq(Field{Param: PlaceholderParam, Name: "a"}, Int(1))), `free parameter "_"`},
		{"tag reference", Where(Eq(TagRef{Tag: "status"}, Str("a"))), "not allowed in a predicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pred)
			require.Error(t, err)
			assert.True(t, queryerr.IsUnsupportedExpression(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateRewritten(t *testing.T) {
	mixed := Where(AndOf(
		Eq(TagRef{Tag: "status"}, Str("a")),
		Eq(Field{Param: PlaceholderParam, Name: "title"}, Str("x")),
	))
	assert.NoError(t, ValidateRewritten(mixed))
	assert.Error(t, Validate(mixed))

	err := ValidateRewritten(Where(Eq(TagRef{}, Str("a"))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty tag reference")

	err = ValidateRewritten(Where(Eq(Field{Param: "x", Name: "a"}, Int(1))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `free parameter "x"`)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	err := Validate(Where(AndOf(Str("x"), CallOf("nope", F("a")))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "used as a condition")
	assert.Contains(t, err.Error(), `unsupported method "nope"`)
}

func TestValidateProjection(t *testing.T) {
	assert.NoError(t, ValidateProjection(&Projection{Param: "e", Exprs: []Expr{F("a"), Param{Name: "e"}}}))
	assert.NoError(t, ValidateProjection(&Projection{Param: "e"}))

	err := ValidateProjection(&Projection{Param: "e", Exprs: []Expr{Param{Name: "x"}}})
	assert.True(t, queryerr.IsUnsupportedExpression(err))

	err = ValidateProjection(&Projection{Param: PlaceholderParam, Exprs: []Expr{Field{Param: PlaceholderParam, Name: "a"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is reserved")

	err = ValidateProjection(&Projection{Param: "e", Exprs: []Expr{TagRef{Tag: "status"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	err = ValidateProjection(nil)
	assert.Equal(t, queryerr.CodeUnsupportedProjection, queryerr.CodeOf(err))
}
